package wire

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Group is a logical channel group. Sequence numbers are counted per group.
type Group uint8

const (
	// GroupHandshake carries helo, wait, acpt, ping, pong and clse.
	GroupHandshake Group = iota
	// GroupVoice carries voic packets.
	GroupVoice
	// GroupText carries reliable text packets.
	GroupText
	// GroupAck carries ackn packets for the reliable sub-channel.
	GroupAck
)

// NumGroups is the number of channel groups.
const NumGroups = 4

// String returns the group name.
func (g Group) String() string {
	switch g {
	case GroupHandshake:
		return "handshake"
	case GroupVoice:
		return "voice"
	case GroupText:
		return "text"
	case GroupAck:
		return "ack"
	default:
		return "group(" + strconv.Itoa(int(g)) + ")"
	}
}

// Peer packet type tags.
const (
	TypeHello  = "helo"
	TypeWait   = "wait"
	TypeAccept = "acpt"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeVoice  = "voic"
	TypeText   = "text"
	TypeAck    = "ackn"
	TypeClose  = "clse"
)

// Protocol tags for non-peer traffic.
const (
	ProtocolRelay = "relay"
	ProtocolAPI   = "api"
)

// Rendezvous API message types.
const (
	TypeCreate  = "create"
	TypeConnect = "connect"
	TypeInfo    = "info"
	TypeError   = "error"
)

// Version is the protocol version announced in helo packets.
var Version = []uint32{0, 1}

var (
	// ErrPacketEmpty indicates a datagram with no recognizable content.
	ErrPacketEmpty = errors.New("empty packet")
	// ErrMalformed indicates a datagram that could not be decoded.
	ErrMalformed = errors.New("malformed packet")
)

// Addr is a network endpoint as carried inside relay envelopes and
// rendezvous replies.
type Addr struct {
	Address string
	Port    int
}

// AddrFromUDP converts a UDP address.
func AddrFromUDP(addr *net.UDPAddr) Addr {
	if addr == nil {
		return Addr{}
	}
	return Addr{Address: addr.IP.String(), Port: addr.Port}
}

// UDPAddr resolves the address into a *net.UDPAddr.
func (a Addr) UDPAddr() (*net.UDPAddr, error) {
	ip := net.ParseIP(a.Address)
	if ip == nil {
		return nil, fmt.Errorf("invalid address %q", a.Address)
	}
	if a.Port <= 0 || a.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", a.Port)
	}
	return &net.UDPAddr{IP: ip, Port: a.Port}, nil
}

// Key returns the "address#port" identity used to key peer sessions.
func (a Addr) Key() string {
	return a.Address + "#" + strconv.Itoa(a.Port)
}

// String returns host:port.
func (a Addr) String() string {
	return net.JoinHostPort(a.Address, strconv.Itoa(a.Port))
}

// Packet is a single datagram. Which fields are meaningful depends on Type
// (peer packets), Box (encrypted peer packets) or Protocol (relay envelopes
// and API messages).
type Packet struct {
	Type  string
	Group Group
	Seq   uint64

	RoomID  string
	Version []uint32
	Public  []byte
	DH      []byte
	Data    []byte
	Text    string
	RSeq    uint64
	Reason  string

	// Box holds an encrypted, serialized inner Packet.
	Box []byte

	Protocol string
	ID       string
	To       *Addr
	From     *Addr
	Body     *Packet
	Members  []Addr
}

// Sealed reports whether the packet is an encrypted peer packet.
func (p *Packet) Sealed() bool {
	return len(p.Box) > 0
}

// Reliable reports whether the packet carries a reliable-sequence number.
func (p *Packet) Reliable() bool {
	return p.RSeq != 0
}

// String returns a short description for logging.
func (p *Packet) String() string {
	switch {
	case p == nil:
		return "<nil>"
	case p.Protocol != "":
		return fmt.Sprintf("%s/%s seq=%d", p.Protocol, p.Type, p.Seq)
	case p.Sealed():
		return fmt.Sprintf("sealed(%d bytes)", len(p.Box))
	default:
		return fmt.Sprintf("%s group=%s seq=%d", p.Type, p.Group, p.Seq)
	}
}
