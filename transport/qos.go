package transport

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// dscpEF is the Expedited Forwarding code point used for voice.
const dscpEF = 46

// applyVoiceQoS marks outgoing datagrams DSCP EF with ECN bits cleared.
func applyVoiceQoS(conn *net.UDPConn) error {
	if conn == nil {
		return fmt.Errorf("udp socket is nil")
	}

	tos := dscpEF << 2
	ipErr := ipv4.NewConn(conn).SetTOS(tos)
	ipv6Err := ipv6.NewConn(conn).SetTrafficClass(tos)
	if ipErr != nil && ipv6Err != nil {
		return fmt.Errorf("set traffic class failed for both IPv4 and IPv6 (ip=%v, ipv6=%v)", ipErr, ipv6Err)
	}
	return nil
}
