package vock

import (
	"fmt"

	"github.com/opd-ai/vock/audio"
	"github.com/opd-ai/vock/peer"
	"github.com/opd-ai/vock/wire"
	"github.com/sirupsen/logrus"
)

// sessionHandler connects one session to the manager. Sessions created
// without a mixing slot have no decoder and drop voice.
type sessionHandler struct {
	m       *Manager
	entry   *entry
	decoder *audio.Decoder
}

var _ peer.Handler = (*sessionHandler)(nil)

func (h *sessionHandler) OnData(s *peer.Session, packet *wire.Packet) {
	h.m.deliver(s, packet)
}

func (h *sessionHandler) OnConnect(s *peer.Session) {
	h.m.cbMu.RLock()
	cb := h.m.peerConnectCb
	h.m.cbMu.RUnlock()
	if cb != nil {
		cb(s, s.Mode())
	}
}

func (h *sessionHandler) OnVoice(s *peer.Session, frame []byte) {
	if h.decoder == nil {
		return
	}
	h.m.mu.Lock()
	slot := h.entry.slot
	h.m.mu.Unlock()
	if slot < 0 {
		return
	}

	var pcm []int16
	if frame != nil {
		var err error
		if pcm, err = h.decoder.Decode(frame); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "sessionHandler.OnVoice",
				"session":  s.ID(),
				"error":    err.Error(),
			}).Debug("Dropping undecodable voice frame")
			return
		}
	}
	if err := h.m.mixer.Play(slot, pcm); err != nil {
		h.m.emitError(err)
	}
}

func (h *sessionHandler) OnText(s *peer.Session, text string) {
	h.m.cbMu.RLock()
	cb := h.m.peerTextCb
	h.m.cbMu.RUnlock()
	if cb != nil {
		cb(s.Fingerprint(), text)
	}
}

func (h *sessionHandler) OnAuthorize(_ *peer.Session, fingerprint string, reply func(bool)) {
	h.m.IsAuthorized(fingerprint, reply)
}

func (h *sessionHandler) OnClose(s *peer.Session, reason string) {
	h.m.release(h.entry)

	h.m.cbMu.RLock()
	cb := h.m.peerCloseCb
	h.m.cbMu.RUnlock()
	if cb != nil {
		cb(s, reason)
	}
}

func (h *sessionHandler) OnUndelivered(s *peer.Session, packet *wire.Packet) {
	h.m.cbMu.RLock()
	cb := h.m.peerUndeliveredCb
	h.m.cbMu.RUnlock()
	if cb != nil {
		cb(s, packet)
	}
}

func (h *sessionHandler) OnError(s *peer.Session, err error) {
	h.m.emitError(fmt.Errorf("session %d (%s): %w", s.ID(), s.Addr(), err))
}
