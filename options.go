package vock

import (
	"errors"
	"fmt"
	"os"

	"github.com/opd-ai/vock/audio"
	"github.com/opd-ai/vock/peer"
	"github.com/opd-ai/vock/rendezvous"
)

// Environment variables read by ApplyEnv.
const (
	EnvKeyFile     = "VOCK_KEY_FILE"
	EnvKeyPassword = "VOCK_KEY_PASSWORD"
)

// DefaultListenPort is the preferred local UDP port.
const DefaultListenPort = 44123

// Options contains configuration options for creating a Manager.
type Options struct {
	// Server is the rendezvous server as host:port. Empty disables rooms
	// and relaying.
	Server string

	ListenHost string
	ListenPort int

	// KeyFile stores the identity. Empty generates a throwaway identity.
	KeyFile     string
	KeyPassword string

	Muted bool
	// AutoAccept answers authorization requests when no OnAuthorize
	// callback is registered.
	AutoAccept bool

	SampleRate uint32
	// Slots bounds the number of concurrently mixed peers.
	Slots int

	PortMapping bool
	QoS         bool

	Peer       peer.Config
	Rendezvous rendezvous.ClientOptions

	// Capture and Playback are optional audio devices.
	Capture  audio.Source
	Playback audio.Sink
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		ListenPort:  DefaultListenPort,
		SampleRate:  audio.DefaultSampleRate,
		Slots:       audio.DefaultSlots,
		PortMapping: true,
		QoS:         true,
		Peer:        peer.DefaultConfig(),
		Rendezvous:  rendezvous.DefaultClientOptions(),
	}
}

// ApplyEnv overrides the key file settings from the environment.
func (o *Options) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvKeyFile); ok {
		o.KeyFile = v
	}
	if v, ok := os.LookupEnv(EnvKeyPassword); ok {
		o.KeyPassword = v
	}
}

// Validate checks the options for values a Manager cannot run with.
func (o *Options) Validate() error {
	if o.ListenPort < 0 || o.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", o.ListenPort)
	}
	if o.Slots <= 0 {
		return errors.New("at least one mixing slot is required")
	}
	if o.SampleRate < 8000 || o.SampleRate%50 != 0 {
		return fmt.Errorf("unsupported sample rate %d", o.SampleRate)
	}
	return nil
}
