package peer

import (
	"time"

	"github.com/opd-ai/vock/wire"
)

// outboundReliable is a reliable packet awaiting its ack.
type outboundReliable struct {
	packet *wire.Packet
	sealed *wire.Packet
	sent   time.Time
	timer  *time.Timer
}

// sendReliable sends packet with the next reliable sequence number and
// retransmits the same datagram until it is acknowledged or ReliableGiveUp
// elapses.
func (s *Session) sendReliable(group wire.Group, packet *wire.Packet) {
	s.rseq++
	packet.RSeq = s.rseq

	sealed := s.write(group, packet)
	if sealed == nil {
		return
	}

	o := &outboundReliable{
		packet: packet,
		sealed: sealed,
		sent:   s.cfg.TimeProvider.Now(),
	}
	s.outstanding[packet.RSeq] = o
	s.armRetransmit(packet.RSeq, o)
}

func (s *Session) armRetransmit(rseq uint64, o *outboundReliable) {
	o.timer = time.AfterFunc(s.cfg.ReliableRetry, func() {
		s.post(func() {
			if s.outstanding[rseq] != o || s.State() == StateClosed {
				return
			}
			s.retransmit(rseq, o)
		})
	})
}

func (s *Session) retransmit(rseq uint64, o *outboundReliable) {
	if s.cfg.TimeProvider.Since(o.sent) >= s.cfg.ReliableGiveUp {
		delete(s.outstanding, rseq)
		s.log("Session.retransmit").WithField("rseq", rseq).Warn("Reliable packet not acknowledged, giving up")
		s.handler.OnUndelivered(s, o.packet)
		return
	}

	s.handler.OnData(s, o.sealed)
	s.armRetransmit(rseq, o)
}

func (s *Session) handleAck(rseq uint64) {
	o, ok := s.outstanding[rseq]
	if !ok {
		return
	}
	o.timer.Stop()
	delete(s.outstanding, rseq)
}
