// Package jitter implements the per-session jitter buffer: inbound packets
// are held for a fixed delay and released lowest (group, seq) first, so a
// burst of reordered datagrams drains in sequence. Every write schedules
// exactly one release, so the buffer drains as fast as it fills.
//
// The buffer reorders but never discards. Late arrivals are still emitted;
// dropping stale packets is left to the session's sequence checks.
package jitter

import (
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/vock/wire"
	"github.com/sirupsen/logrus"
)

// DefaultDelay is the playout delay used by sessions, roughly one and a
// half 20ms audio frames.
const DefaultDelay = 33 * time.Millisecond

// Buffer reorders and time-delays packets. It is safe for concurrent use.
// The data callback is always invoked from a timer goroutine, never from
// Write, and never concurrently with itself.
type Buffer struct {
	mu      sync.Mutex
	packets []*wire.Packet
	due     []time.Time
	delay   time.Duration
	timer   *time.Timer
	armed   bool
	stopped bool
	onData  func(*wire.Packet)
}

// New creates a buffer releasing packets to onData after delay.
func New(delay time.Duration, onData func(*wire.Packet)) *Buffer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Buffer{
		delay:  delay,
		onData: onData,
	}
}

// less orders packets by group, then sequence number.
func less(a, b *wire.Packet) bool {
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Seq < b.Seq
}

// Write queues a packet and arms the delay timer if it is not pending.
func (b *Buffer) Write(packet *wire.Packet) {
	if packet == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	// Insert after any equal key so ties keep arrival order.
	i := sort.Search(len(b.packets), func(i int) bool {
		return less(packet, b.packets[i])
	})
	b.packets = append(b.packets, nil)
	copy(b.packets[i+1:], b.packets[i:])
	b.packets[i] = packet
	b.due = append(b.due, time.Now().Add(b.delay))

	b.armLocked()
}

func (b *Buffer) armLocked() {
	if b.armed || len(b.due) == 0 {
		return
	}
	b.armed = true
	wait := time.Until(b.due[0])
	if wait < 0 {
		wait = 0
	}
	b.timer = time.AfterFunc(wait, b.fire)
}

// fire releases one lowest packet for every write whose delay has elapsed,
// then re-arms for the next deadline.
func (b *Buffer) fire() {
	b.mu.Lock()
	if b.stopped || len(b.packets) == 0 {
		b.armed = false
		b.mu.Unlock()
		return
	}
	now := time.Now()
	n := 0
	for n < len(b.due) && !b.due[n].After(now) {
		n++
	}
	if n > len(b.packets) {
		n = len(b.packets)
	}
	ready := make([]*wire.Packet, n)
	copy(ready, b.packets[:n])
	for i := 0; i < n; i++ {
		b.packets[i] = nil
	}
	b.packets = b.packets[n:]
	b.due = b.due[n:]
	b.mu.Unlock()

	for _, packet := range ready {
		logrus.WithFields(logrus.Fields{
			"function": "Buffer.fire",
			"group":    packet.Group,
			"seq":      packet.Seq,
		}).Debug("Releasing packet from jitter buffer")

		if b.onData != nil {
			b.onData(packet)
		}
	}

	b.mu.Lock()
	b.armed = false
	if !b.stopped {
		b.armLocked()
	}
	b.mu.Unlock()
}

// Len returns the number of pending packets.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.packets)
}

// Pending reports whether a release is scheduled.
func (b *Buffer) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.armed
}

// Stop cancels the pending release and drops queued packets. Writes after
// Stop are ignored.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	b.packets = nil
	b.due = nil
	if b.timer != nil {
		b.timer.Stop()
	}
	b.armed = false
}
