package peer

import (
	"sync"

	"github.com/opd-ai/vock/crypto"
	"github.com/opd-ai/vock/wire"
)

func (s *Session) connect(roomID string) {
	switch s.State() {
	case StateInit:
		s.initQueue = append(s.initQueue, func() { s.connect(roomID) })
		return
	case StateAccepted, StateClosed:
		return
	}
	if s.connecting {
		return
	}

	current := s.RoomID()
	switch {
	case current == "":
		s.setRoomID(roomID)
	case roomID != "" && roomID != current:
		s.log("Session.connect").WithField("room", roomID).Warn("Room id mismatch, resetting")
		s.reset()
		return
	}

	s.connecting = true
	s.log("Session.connect").WithField("room", s.RoomID()).Info("Starting handshake")
	s.sendHello()
	s.armRetry()
	s.schedule(timerConnect, s.connectTimeout, s.onConnectTimeout)
}

func (s *Session) sendHello() {
	s.heloSent = true
	s.write(wire.GroupHandshake, &wire.Packet{
		Type:    wire.TypeHello,
		RoomID:  s.RoomID(),
		Version: wire.Version,
		Public:  append([]byte(nil), s.identity.Public[:]...),
	})
}

func (s *Session) armRetry() {
	s.schedule(timerRetry, s.cfg.HandshakeInterval, func() {
		if !s.connecting {
			return
		}
		s.sendHello()
		s.armRetry()
	})
}

// onConnectTimeout falls back from direct to relay delivery once, then
// gives up.
func (s *Session) onConnectTimeout() {
	if !s.connecting {
		return
	}
	if s.Mode() == ModeDirect {
		s.setMode(ModeRelay)
		s.connectTimeout *= 2
		s.log("Session.onConnectTimeout").WithField("timeout", s.connectTimeout).Info("No answer, retrying through relay")
		s.sendHello()
		s.armRetry()
		s.schedule(timerConnect, s.connectTimeout, s.onConnectTimeout)
		return
	}

	s.log("Session.onConnectTimeout").Info("Handshake timed out")
	s.terminate(ReasonTimeout, ReasonTimeout)
}

func (s *Session) handleHello(p *wire.Packet) {
	if len(p.Public) != crypto.KeySize {
		s.log("Session.handleHello").Warn("Hello without identity key, resetting")
		s.reset()
		return
	}

	current := s.RoomID()
	switch {
	case current == "":
		s.setRoomID(p.RoomID)
	case p.RoomID != current:
		s.log("Session.handleHello").WithField("room", p.RoomID).Warn("Room id mismatch, resetting")
		s.reset()
		return
	}

	fp := crypto.Fingerprint(p.Public)
	if known := s.Fingerprint(); known != "" && known != fp {
		s.log("Session.handleHello").Warn("Peer identity changed, resetting")
		s.reset()
		return
	}
	s.setFingerprint(fp)
	s.remotePublic = append(s.remotePublic[:0], p.Public...)

	if s.authorizing {
		return
	}
	s.authorizing = true
	s.armWait()

	var once sync.Once
	s.handler.OnAuthorize(s, fp, func(ok bool) {
		once.Do(func() {
			s.post(func() { s.onAuthorized(ok) })
		})
	})
}

// armWait keeps the initiator's connect-timeout from firing while the
// authorization decision is pending.
func (s *Session) armWait() {
	s.schedule(timerWait, s.cfg.WaitInterval, func() {
		if !s.authorizing {
			return
		}
		s.write(wire.GroupHandshake, &wire.Packet{Type: wire.TypeWait})
		s.armWait()
	})
}

func (s *Session) onAuthorized(ok bool) {
	s.authorizing = false
	s.cancel(timerWait)
	if s.State() == StateClosed {
		return
	}

	if !ok {
		s.log("Session.onAuthorized").WithField("fingerprint", s.Fingerprint()).Info("Peer not authorized")
		return
	}

	dh, err := crypto.SealTo(s.remotePublic, s.ephemeral.Public())
	if err != nil {
		s.handler.OnError(s, err)
		return
	}
	s.write(wire.GroupHandshake, &wire.Packet{Type: wire.TypeAccept, DH: dh})

	if s.State() != StateAccepted {
		s.connect(s.RoomID())
	}
}

func (s *Session) handleWait() {
	if !s.connecting {
		return
	}
	s.schedule(timerConnect, s.connectTimeout, s.onConnectTimeout)
}

func (s *Session) handleAccept(p *wire.Packet) {
	if s.State() == StateAccepted {
		return
	}
	if !s.heloSent {
		s.log("Session.handleAccept").Warn("Accept before hello, resetting")
		s.reset()
		return
	}
	if len(p.DH) == 0 {
		s.log("Session.handleAccept").Warn("Accept without key-exchange value, resetting")
		s.reset()
		return
	}

	remote, err := s.identity.Open(p.DH)
	if err == nil {
		s.secret, err = s.ephemeral.SharedSecret(remote)
	}
	if err != nil {
		s.log("Session.handleAccept").WithField("error", err.Error()).Warn("Key exchange failed, resetting")
		s.reset()
		return
	}

	s.state.Store(int32(StateAccepted))
	s.connecting = false
	s.cancel(timerRetry)
	s.cancel(timerConnect)
	s.armPing()
	s.armDeath()

	s.log("Session.handleAccept").WithField("mode", s.Mode().String()).Info("Session accepted")
	s.handler.OnConnect(s)
}

func (s *Session) armPing() {
	s.schedule(timerPing, s.cfg.PingInterval, func() {
		s.write(wire.GroupHandshake, &wire.Packet{Type: wire.TypePing})
		s.armPing()
	})
}

func (s *Session) armDeath() {
	s.schedule(timerDeath, s.cfg.DeathTimeout, func() {
		s.log("Session.death").Info("Peer went silent")
		s.reset()
	})
}

func (s *Session) handleClose(p *wire.Packet) {
	if s.State() != StateAccepted {
		if p.Reason != ReasonReset {
			s.reset()
		}
		return
	}
	s.log("Session.handleClose").WithField("reason", p.Reason).Info("Peer closed session")
	s.terminate(ReasonReset, ReasonExternal)
}
