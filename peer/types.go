package peer

import (
	"strconv"

	"github.com/opd-ai/vock/crypto"
	"github.com/opd-ai/vock/wire"
)

// State is the protocol state of a session.
type State int32

const (
	// StateInit means the identity key is still loading.
	StateInit State = iota
	// StateIdle means ready but without a secure channel.
	StateIdle
	// StateAccepted means the key exchange completed.
	StateAccepted
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIdle:
		return "idle"
	case StateAccepted:
		return "accepted"
	case StateClosed:
		return "closed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Mode selects how outbound packets reach the peer.
type Mode int32

const (
	// ModeDirect sends packets straight to the peer.
	ModeDirect Mode = iota
	// ModeRelay sends packets through the rendezvous server.
	ModeRelay
)

func (m Mode) String() string {
	if m == ModeRelay {
		return "relay"
	}
	return "direct"
}

// Close reasons.
const (
	ReasonReset    = "reset"
	ReasonTimeout  = "timeout"
	ReasonExternal = "external"
	ReasonError    = "error"
)

// IdentitySource resolves the long-lived identity, possibly in the
// background. *crypto.PendingIdentity implements it.
type IdentitySource interface {
	Done() <-chan struct{}
	Result() (*crypto.Identity, error)
}

// Handler receives session events. Methods are called from the session's
// goroutine and must not block.
type Handler interface {
	// OnData is called for every outbound packet. The handler delivers it
	// directly or through the relay depending on Session.Mode.
	OnData(s *Session, packet *wire.Packet)
	// OnConnect is called once when the session is accepted.
	OnConnect(s *Session)
	// OnVoice delivers a voice frame. A nil frame marks lost packets.
	OnVoice(s *Session, frame []byte)
	// OnText delivers a text message.
	OnText(s *Session, text string)
	// OnAuthorize asks whether fingerprint may connect. reply may be called
	// later from any goroutine; only the first call counts.
	OnAuthorize(s *Session, fingerprint string, reply func(ok bool))
	// OnClose is called once when the session closes.
	OnClose(s *Session, reason string)
	// OnUndelivered reports a reliable packet abandoned without an ack.
	OnUndelivered(s *Session, packet *wire.Packet)
	// OnError reports a non-fatal error.
	OnError(s *Session, err error)
}

// NopHandler ignores every event and denies authorization. Embed it to
// implement only part of Handler.
type NopHandler struct{}

func (NopHandler) OnData(*Session, *wire.Packet)        {}
func (NopHandler) OnConnect(*Session)                   {}
func (NopHandler) OnVoice(*Session, []byte)             {}
func (NopHandler) OnText(*Session, string)              {}
func (NopHandler) OnClose(*Session, string)             {}
func (NopHandler) OnUndelivered(*Session, *wire.Packet) {}
func (NopHandler) OnError(*Session, error)              {}

func (NopHandler) OnAuthorize(_ *Session, _ string, reply func(bool)) {
	reply(false)
}
