// This file implements a UPnP Internet Gateway Device client for automatic
// port mapping.
package transport

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const wanIPConnection = "urn:schemas-upnp-org:service:WANIPConnection:1"

// maxMappingEntries bounds the GetGenericPortMappingEntry scan.
const maxMappingEntries = 128

// UPnPClient provides UPnP-based automatic port mapping functionality
type UPnPClient struct {
	mu            sync.Mutex
	timeout       time.Duration
	lease         time.Duration
	gatewayURL    string
	controlURL    string
	serviceType   string
	discoveryDone bool
}

// NewUPnPClient creates a new UPnP client
func NewUPnPClient() *UPnPClient {
	return &UPnPClient{
		timeout: 10 * time.Second,
		lease:   time.Hour,
	}
}

// Protocol implements PortMapper.
func (uc *UPnPClient) Protocol() string {
	return "upnp"
}

// SetTimeout sets the timeout for UPnP operations
func (uc *UPnPClient) SetTimeout(timeout time.Duration) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.timeout = timeout
}

// DiscoverGateway discovers the UPnP gateway and its WANIPConnection
// control URL. The result is cached.
func (uc *UPnPClient) DiscoverGateway(ctx context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.controlURL != "" {
		return nil
	}

	if !uc.discoveryDone {
		gatewayURL, err := uc.ssdpDiscover(ctx, "urn:schemas-upnp-org:device:InternetGatewayDevice:1")
		if err != nil {
			gatewayURL, err = uc.ssdpDiscover(ctx, wanIPConnection)
			if err != nil {
				return fmt.Errorf("failed to discover UPnP gateway: %w", err)
			}
		}
		uc.gatewayURL = gatewayURL
		uc.discoveryDone = true
	}

	return uc.fetchDeviceDescription(ctx)
}

// ssdpDiscover performs an SSDP M-SEARCH and returns the LOCATION header.
func (uc *UPnPClient) ssdpDiscover(ctx context.Context, serviceType string) (string, error) {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{
		IP:   net.IPv4(239, 255, 255, 250),
		Port: 1900,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create UDP connection: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(uc.timeout))
	}

	searchRequest := fmt.Sprintf(
		"M-SEARCH * HTTP/1.1\r\n"+
			"HOST: 239.255.255.250:1900\r\n"+
			"ST: %s\r\n"+
			"MAN: \"ssdp:discover\"\r\n"+
			"MX: 2\r\n\r\n",
		serviceType)

	if _, err := conn.Write([]byte(searchRequest)); err != nil {
		return "", fmt.Errorf("failed to send SSDP request: %w", err)
	}

	buffer := make([]byte, 2048)
	n, err := conn.Read(buffer)
	if err != nil {
		return "", fmt.Errorf("failed to read SSDP response: %w", err)
	}

	return parseLocationFromSSDPResponse(string(buffer[:n]))
}

// parseLocationFromSSDPResponse extracts the LOCATION URL from SSDP response
func parseLocationFromSSDPResponse(response string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(response))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(strings.ToUpper(line), "LOCATION:") {
			parts := strings.SplitN(line, ":", 2)
			if location := strings.TrimSpace(parts[1]); location != "" {
				return location, nil
			}
		}
	}
	return "", errors.New("LOCATION header not found in SSDP response")
}

type deviceDescription struct {
	Services []struct {
		ServiceType string `xml:"serviceType"`
		ControlURL  string `xml:"controlURL"`
	} `xml:"device>deviceList>device>deviceList>device>serviceList>service"`
	RootServices []struct {
		ServiceType string `xml:"serviceType"`
		ControlURL  string `xml:"controlURL"`
	} `xml:"device>serviceList>service"`
}

// fetchDeviceDescription loads the description XML and resolves the control
// URL. Callers hold uc.mu.
func (uc *UPnPClient) fetchDeviceDescription(ctx context.Context) error {
	if uc.gatewayURL == "" {
		return errors.New("gateway URL not set")
	}

	body, err := uc.httpGet(ctx, uc.gatewayURL)
	if err != nil {
		return err
	}
	return uc.parseDeviceDescription(body)
}

func (uc *UPnPClient) parseDeviceDescription(body []byte) error {
	var desc deviceDescription
	if err := xml.Unmarshal(body, &desc); err != nil {
		return fmt.Errorf("parse device description: %w", err)
	}

	services := append(desc.Services, desc.RootServices...)
	for _, svc := range services {
		if !strings.Contains(svc.ServiceType, "WANIPConnection") {
			continue
		}
		base, err := url.Parse(uc.gatewayURL)
		if err != nil {
			return fmt.Errorf("invalid gateway URL: %w", err)
		}
		control, err := base.Parse(strings.TrimSpace(svc.ControlURL))
		if err != nil {
			return fmt.Errorf("invalid control URL: %w", err)
		}
		uc.controlURL = control.String()
		uc.serviceType = strings.TrimSpace(svc.ServiceType)
		return nil
	}

	return errors.New("WANIPConnection service not found in device description")
}

func (uc *UPnPClient) httpGet(ctx context.Context, target string) ([]byte, error) {
	client := &http.Client{Timeout: uc.timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device description: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// FindMapping implements PortMapper by scanning the gateway's mapping table
// for a UDP entry with our description pointing at this host.
func (uc *UPnPClient) FindMapping(ctx context.Context, description string) (Mapping, error) {
	if err := uc.DiscoverGateway(ctx); err != nil {
		return Mapping{}, err
	}

	localIP, err := uc.localIP()
	if err != nil {
		return Mapping{}, err
	}

	for i := 0; i < maxMappingEntries; i++ {
		fields, err := uc.soap(ctx, "GetGenericPortMappingEntry",
			fmt.Sprintf("<NewPortMappingIndex>%d</NewPortMappingIndex>", i),
			"NewExternalPort", "NewProtocol", "NewInternalPort", "NewInternalClient", "NewPortMappingDescription")
		if err != nil {
			// Gateways answer SpecifiedArrayIndexInvalid past the last entry.
			break
		}

		if !strings.EqualFold(fields["NewProtocol"], "UDP") ||
			fields["NewPortMappingDescription"] != description ||
			!net.ParseIP(fields["NewInternalClient"]).Equal(localIP) {
			continue
		}

		external, err1 := strconv.Atoi(fields["NewExternalPort"])
		internal, err2 := strconv.Atoi(fields["NewInternalPort"])
		if err1 != nil || err2 != nil {
			continue
		}
		return Mapping{InternalPort: internal, ExternalPort: external}, nil
	}

	return Mapping{}, ErrNoMapping
}

// AddMapping implements PortMapper, asking for the same external port.
func (uc *UPnPClient) AddMapping(ctx context.Context, internalPort int, description string) (Mapping, error) {
	if err := uc.DiscoverGateway(ctx); err != nil {
		return Mapping{}, err
	}

	localIP, err := uc.localIP()
	if err != nil {
		return Mapping{}, err
	}

	args := fmt.Sprintf(
		"<NewRemoteHost></NewRemoteHost>"+
			"<NewExternalPort>%d</NewExternalPort>"+
			"<NewProtocol>UDP</NewProtocol>"+
			"<NewInternalPort>%d</NewInternalPort>"+
			"<NewInternalClient>%s</NewInternalClient>"+
			"<NewEnabled>1</NewEnabled>"+
			"<NewPortMappingDescription>%s</NewPortMappingDescription>"+
			"<NewLeaseDuration>%d</NewLeaseDuration>",
		internalPort, internalPort, localIP, xmlEscape(description), int(uc.lease.Seconds()))

	if _, err := uc.soap(ctx, "AddPortMapping", args); err != nil {
		return Mapping{}, err
	}
	return Mapping{InternalPort: internalPort, ExternalPort: internalPort}, nil
}

// DeleteMapping implements PortMapper.
func (uc *UPnPClient) DeleteMapping(ctx context.Context, mapping Mapping) error {
	return uc.DeletePortMapping(ctx, mapping.ExternalPort)
}

// DeletePortMapping removes an existing UDP port mapping.
func (uc *UPnPClient) DeletePortMapping(ctx context.Context, externalPort int) error {
	if err := uc.DiscoverGateway(ctx); err != nil {
		return err
	}
	args := fmt.Sprintf(
		"<NewRemoteHost></NewRemoteHost>"+
			"<NewExternalPort>%d</NewExternalPort>"+
			"<NewProtocol>UDP</NewProtocol>",
		externalPort)
	_, err := uc.soap(ctx, "DeletePortMapping", args)
	return err
}

func (uc *UPnPClient) localIP() (net.IP, error) {
	u, err := url.Parse(uc.controlURL)
	if err != nil {
		return nil, fmt.Errorf("invalid control URL: %w", err)
	}
	ip, err := localIPFor(u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("determine local address: %w", err)
	}
	return ip, nil
}

// soap invokes action on the WANIPConnection service and returns the
// requested response fields.
func (uc *UPnPClient) soap(ctx context.Context, action, args string, fields ...string) (map[string]string, error) {
	uc.mu.Lock()
	controlURL, serviceType, timeout := uc.controlURL, uc.serviceType, uc.timeout
	uc.mu.Unlock()

	if controlURL == "" {
		return nil, errors.New("control URL not set - call DiscoverGateway first")
	}
	if serviceType == "" {
		serviceType = wanIPConnection
	}

	body := fmt.Sprintf(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body><u:%s xmlns:u="%s">%s</u:%s></s:Body>
</s:Envelope>`, action, serviceType, args, action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create SOAP request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+serviceType+"#"+action+`"`)

	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send SOAP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read SOAP response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SOAP %s failed: %s", action, resp.Status)
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v, err := soapValue(string(respBody), f)
		if err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, nil
}

// soapValue extracts the text of the first <tag> element in a response.
func soapValue(response, tag string) (string, error) {
	open := "<" + tag + ">"
	start := strings.Index(response, open)
	if start == -1 {
		return "", fmt.Errorf("%s not found in response", tag)
	}
	start += len(open)

	end := strings.Index(response[start:], "</"+tag+">")
	if end == -1 {
		return "", fmt.Errorf("malformed %s in response", tag)
	}
	return strings.TrimSpace(response[start : start+end]), nil
}

func xmlEscape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
