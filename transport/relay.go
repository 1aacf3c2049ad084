package transport

import (
	"errors"
	"fmt"
	"net"

	"github.com/opd-ai/vock/wire"
)

var (
	// ErrNotRelay indicates a packet that is not a relay envelope.
	ErrNotRelay = errors.New("not a relay envelope")
	// ErrNoBody indicates a relay envelope without an inner packet.
	ErrNoBody = errors.New("relay envelope has no body")
)

// WrapRelay builds the envelope asking the server to forward packet to addr
// on behalf of room roomID.
func WrapRelay(packet *wire.Packet, seq uint64, roomID string, addr *net.UDPAddr) *wire.Packet {
	to := wire.AddrFromUDP(addr)
	return &wire.Packet{
		Protocol: wire.ProtocolRelay,
		Seq:      seq,
		ID:       roomID,
		To:       &to,
		Body:     packet,
		Version:  wire.Version,
	}
}

// UnwrapRelay extracts the inner packet and the peer address from an
// envelope. For envelopes forwarded by the server the peer is the From
// address; for envelopes built with WrapRelay it is the To address.
func UnwrapRelay(envelope *wire.Packet) (*wire.Packet, *net.UDPAddr, error) {
	if envelope == nil || envelope.Protocol != wire.ProtocolRelay {
		return nil, nil, ErrNotRelay
	}
	if envelope.Body == nil {
		return nil, nil, ErrNoBody
	}

	peer := envelope.From
	if peer == nil {
		peer = envelope.To
	}
	if peer == nil {
		return nil, nil, fmt.Errorf("%w: no peer address", ErrNotRelay)
	}

	addr, err := peer.UDPAddr()
	if err != nil {
		return nil, nil, fmt.Errorf("relay peer address: %w", err)
	}
	return envelope.Body, addr, nil
}

// sameAddr compares two UDP endpoints by IP and port.
func sameAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
