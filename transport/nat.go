package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNoMapping indicates that a mapper found no reusable port mapping.
var ErrNoMapping = errors.New("no existing port mapping")

// DefaultMappingDescription tags the port mappings this program creates so
// later runs can find and reuse them.
const DefaultMappingDescription = "vock"

// Mapping is a port forwarded on the gateway.
type Mapping struct {
	InternalPort int
	ExternalPort int
}

// PortMapper asks a NAT gateway to forward a UDP port.
type PortMapper interface {
	// Protocol names the mapping protocol ("upnp", "natpmp").
	Protocol() string

	// FindMapping returns an existing mapping created with description, or
	// ErrNoMapping.
	FindMapping(ctx context.Context, description string) (Mapping, error)

	// AddMapping forwards internalPort and returns the external port.
	AddMapping(ctx context.Context, internalPort int, description string) (Mapping, error)

	// DeleteMapping removes a mapping previously returned by AddMapping.
	DeleteMapping(ctx context.Context, mapping Mapping) error
}

// createdMapping is a mapping this process added and must remove on close.
type createdMapping struct {
	mapper  PortMapper
	mapping Mapping
}

// DefaultPortMappers returns the mappers tried when port mapping is on.
func DefaultPortMappers() []PortMapper {
	return []PortMapper{NewUPnPClient(), NewNATPMPMapper()}
}

// findExistingMapping asks each mapper in turn for a reusable mapping.
func findExistingMapping(ctx context.Context, mappers []PortMapper, description string) (PortMapper, Mapping, bool) {
	for _, m := range mappers {
		mapping, err := m.FindMapping(ctx, description)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "findExistingMapping",
				"protocol": m.Protocol(),
				"error":    err.Error(),
			}).Debug("No reusable port mapping")
			continue
		}
		return m, mapping, true
	}
	return nil, Mapping{}, false
}

// mapPort runs every mapper concurrently and hands each success to created.
func mapPort(ctx context.Context, mappers []PortMapper, port int, description string, created func(PortMapper, Mapping)) {
	var wg sync.WaitGroup
	for _, m := range mappers {
		wg.Add(1)
		go func(m PortMapper) {
			defer wg.Done()

			mapping, err := m.AddMapping(ctx, port, description)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "mapPort",
					"protocol": m.Protocol(),
					"port":     port,
					"error":    err.Error(),
				}).Debug("Port mapping failed")
				return
			}

			logrus.WithFields(logrus.Fields{
				"function":      "mapPort",
				"protocol":      m.Protocol(),
				"internal_port": mapping.InternalPort,
				"external_port": mapping.ExternalPort,
			}).Info("Port mapping created")
			created(m, mapping)
		}(m)
	}
	wg.Wait()
}

// unmapPorts removes mappings concurrently, giving up when ctx ends.
func unmapPorts(ctx context.Context, mappings []createdMapping) {
	var wg sync.WaitGroup
	for _, c := range mappings {
		wg.Add(1)
		go func(c createdMapping) {
			defer wg.Done()
			if err := c.mapper.DeleteMapping(ctx, c.mapping); err != nil {
				logrus.WithFields(logrus.Fields{
					"function":      "unmapPorts",
					"protocol":      c.mapper.Protocol(),
					"external_port": c.mapping.ExternalPort,
					"error":         err.Error(),
				}).Warn("Failed to remove port mapping")
				return
			}
			logrus.WithFields(logrus.Fields{
				"function":      "unmapPorts",
				"protocol":      c.mapper.Protocol(),
				"external_port": c.mapping.ExternalPort,
			}).Info("Port mapping removed")
		}(c)
	}
	wg.Wait()
}

// localIPFor returns the local address used to reach host.
func localIPFor(host string) (net.IP, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(host, "9"))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
