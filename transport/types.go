package transport

import (
	"net"

	"github.com/opd-ai/vock/wire"
)

// PacketHandler processes an inbound packet. relayed is true when the
// packet was unwrapped from a relay envelope forwarded by the server; from
// is then the original sender.
type PacketHandler func(packet *wire.Packet, from *net.UDPAddr, relayed bool)

// Transport defines the datagram operations sessions and the rendezvous
// client rely on. Send and Relay never fail into the caller: errors are
// reported through the socket's error callback.
type Transport interface {
	// Send transmits a packet directly to addr.
	Send(packet *wire.Packet, addr *net.UDPAddr)

	// Relay transmits a packet to addr through the rendezvous server.
	Relay(packet *wire.Packet, roomID string, addr *net.UDPAddr)

	// Handle registers a handler for a protocol tag ("" for peer packets).
	Handle(protocol string, handler PacketHandler)

	// Server returns the rendezvous server address, if any.
	Server() *net.UDPAddr

	// Close shuts down the transport.
	Close() error
}
