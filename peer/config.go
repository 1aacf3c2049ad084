package peer

import (
	"time"

	"github.com/opd-ai/vock/jitter"
)

// Config holds the protocol timers of a session.
type Config struct {
	// PingInterval is the keepalive period while accepted.
	PingInterval time.Duration
	// HandshakeInterval is the helo retransmission period.
	HandshakeInterval time.Duration
	// DeathTimeout closes a session that received nothing for this long.
	DeathTimeout time.Duration
	// ConnectTimeout bounds a handshake attempt. It is doubled when the
	// session falls back to relay mode.
	ConnectTimeout time.Duration
	// WaitInterval is the wait packet period while authorization is pending.
	WaitInterval time.Duration
	// JitterDelay is the reorder window of the inbound jitter buffer.
	JitterDelay time.Duration
	// ReliableRetry is the retransmission period of unacknowledged packets.
	ReliableRetry time.Duration
	// ReliableGiveUp abandons a reliable packet after this long.
	ReliableGiveUp time.Duration
	// ReliableWindow is how long a received reliable sequence number is
	// remembered for de-duplication.
	ReliableWindow time.Duration

	// TimeProvider is used for reliable-channel bookkeeping. nil means
	// wall-clock time.
	TimeProvider TimeProvider
}

// DefaultConfig returns the standard protocol timers.
func DefaultConfig() Config {
	return Config{
		PingInterval:      3 * time.Second,
		HandshakeInterval: time.Second,
		DeathTimeout:      15 * time.Second,
		ConnectTimeout:    3 * time.Second,
		WaitInterval:      time.Second,
		JitterDelay:       jitter.DefaultDelay,
		ReliableRetry:     500 * time.Millisecond,
		ReliableGiveUp:    10 * time.Second,
		ReliableWindow:    30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&c.PingInterval, d.PingInterval)
	fill(&c.HandshakeInterval, d.HandshakeInterval)
	fill(&c.DeathTimeout, d.DeathTimeout)
	fill(&c.ConnectTimeout, d.ConnectTimeout)
	fill(&c.WaitInterval, d.WaitInterval)
	fill(&c.JitterDelay, d.JitterDelay)
	fill(&c.ReliableRetry, d.ReliableRetry)
	fill(&c.ReliableGiveUp, d.ReliableGiveUp)
	fill(&c.ReliableWindow, d.ReliableWindow)
	if c.TimeProvider == nil {
		c.TimeProvider = DefaultTimeProvider{}
	}
	return c
}
