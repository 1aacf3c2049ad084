package peer

import (
	"errors"
	"fmt"

	"github.com/opd-ai/vock/crypto"
	"github.com/opd-ai/vock/wire"
)

// errBoxedControl reports a sealed packet carrying another box or a
// handshake packet, which no honest peer sends.
var errBoxedControl = fmt.Errorf("%w: unexpected packet inside box", wire.ErrMalformed)

// receive decrypts an inbound packet and feeds it to the jitter buffer.
func (s *Session) receive(p *wire.Packet, relayed bool) {
	switch s.State() {
	case StateInit:
		s.initQueue = append(s.initQueue, func() { s.receive(p, relayed) })
		return
	case StateClosed:
		// The peer still thinks we are talking; tell it otherwise.
		if p.Type != wire.TypeClose {
			s.write(wire.GroupHandshake, &wire.Packet{Type: wire.TypeClose, Reason: ReasonReset})
		}
		return
	}

	if relayed {
		s.setMode(ModeRelay)
	}

	if p.Sealed() {
		if s.secret == nil {
			s.log("Session.receive").Debug("Encrypted packet before key exchange, dropping")
			return
		}
		inner, err := s.open(p)
		if errors.Is(err, errBoxedControl) {
			s.log("Session.receive").WithField("error", err.Error()).Warn("Protocol violation, resetting")
			s.reset()
			return
		}
		if err != nil {
			s.log("Session.receive").WithField("error", err.Error()).Warn("Dropping undecryptable packet")
			return
		}
		p = inner
	} else if p.Group != wire.GroupHandshake {
		s.log("Session.receive").WithField("packet", p.String()).Debug("Unencrypted non-handshake packet, dropping")
		return
	}

	if int(p.Group) >= wire.NumGroups {
		s.handler.OnError(s, fmt.Errorf("%w: unknown group %d", wire.ErrMalformed, p.Group))
		return
	}
	s.jitter.Write(p)
}

func (s *Session) open(p *wire.Packet) (*wire.Packet, error) {
	plain, err := crypto.Open(s.secret, p.Box)
	if err != nil {
		return nil, err
	}
	inner, err := wire.Unmarshal(plain)
	if err != nil {
		return nil, err
	}
	if inner.Sealed() || inner.Group == wire.GroupHandshake {
		return nil, errBoxedControl
	}
	return inner, nil
}

// process handles a packet released by the jitter buffer.
func (s *Session) process(p *wire.Packet) {
	if s.State() == StateClosed {
		return
	}

	g := p.Group
	reliable := p.Reliable() && p.Type != wire.TypeAck
	prev := s.recSeqs[g]
	if int64(p.Seq) <= prev && !reliable {
		s.log("Session.process").WithField("packet", p.String()).Debug("Stale packet, dropping")
		return
	}
	if int64(p.Seq) > prev {
		s.recSeqs[g] = int64(p.Seq)
	}
	s.armDeath()

	if reliable {
		s.write(wire.GroupAck, &wire.Packet{Type: wire.TypeAck, RSeq: p.RSeq})
		if !s.seen.checkAndStore(p.RSeq) {
			s.log("Session.process").WithField("rseq", p.RSeq).Debug("Duplicate reliable packet")
			return
		}
	}

	switch p.Type {
	case wire.TypeHello:
		s.handleHello(p)
	case wire.TypeWait:
		s.handleWait()
	case wire.TypeAccept:
		s.handleAccept(p)
	case wire.TypePing:
		s.write(wire.GroupHandshake, &wire.Packet{Type: wire.TypePong})
	case wire.TypePong:
	case wire.TypeVoice:
		s.handleVoice(p, prev)
	case wire.TypeText:
		if s.State() == StateAccepted {
			s.handler.OnText(s, p.Text)
		}
	case wire.TypeAck:
		s.handleAck(p.RSeq)
	case wire.TypeClose:
		s.handleClose(p)
	default:
		s.log("Session.process").WithField("type", p.Type).Debug("Unknown packet type")
	}
}

func (s *Session) handleVoice(p *wire.Packet, prev int64) {
	if s.State() != StateAccepted {
		return
	}
	if int64(p.Seq) > prev+1 {
		s.handler.OnVoice(s, nil)
	}
	s.handler.OnVoice(s, p.Data)
}
