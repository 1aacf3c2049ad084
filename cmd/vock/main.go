// Package main provides the vock command: create or join a room and talk
// to whoever else is in it.
//
// Audio is raw 16-bit little-endian mono PCM read from -capture and
// written to -playback, so any recorder or player that speaks raw PCM can
// be piped in. Lines typed on stdin are sent as text messages; "/mute"
// toggles the microphone and "/quit" exits.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/opd-ai/vock"
	"github.com/opd-ai/vock/audio"
	"github.com/opd-ai/vock/peer"
	"github.com/opd-ai/vock/wire"
	"github.com/sirupsen/logrus"
)

// CLIConfig holds the parsed command line.
type CLIConfig struct {
	server      string
	listenPort  int
	keyFile     string
	capture     string
	playback    string
	sampleRate  uint
	muted       bool
	portMapping bool
	qos         bool
	logLevel    string
	command     string
	roomID      string
}

func parseCLIFlags() *CLIConfig {
	config := &CLIConfig{}
	flag.StringVar(&config.server, "server", "localhost:43210", "Rendezvous server host:port")
	flag.IntVar(&config.listenPort, "port", vock.DefaultListenPort, "Local UDP port")
	flag.StringVar(&config.keyFile, "key", "", "Identity key file (default: $"+vock.EnvKeyFile+" or a throwaway key)")
	flag.StringVar(&config.capture, "capture", "", "Raw PCM capture file or pipe")
	flag.StringVar(&config.playback, "playback", "", "Raw PCM playback file or pipe")
	flag.UintVar(&config.sampleRate, "rate", audio.DefaultSampleRate, "Sample rate of capture and playback")
	flag.BoolVar(&config.muted, "mute", false, "Start muted")
	flag.BoolVar(&config.portMapping, "nat", true, "Map the local port with UPnP or NAT-PMP")
	flag.BoolVar(&config.qos, "qos", true, "Mark voice traffic for expedited forwarding")
	flag.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	config.command = flag.Arg(0)
	config.roomID = flag.Arg(1)
	return config
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintf(os.Stderr, "  %s [options] create\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s [options] connect <room id>\n", os.Args[0])
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Options:")
	flag.PrintDefaults()
}

func validateCLIConfig(config *CLIConfig) error {
	switch config.command {
	case "create":
	case "connect":
		if config.roomID == "" {
			return fmt.Errorf("connect requires a room id")
		}
	default:
		return fmt.Errorf("unknown command %q", config.command)
	}
	if config.server == "" {
		return fmt.Errorf("a rendezvous server is required")
	}
	return nil
}

func buildOptions(config *CLIConfig) (*vock.Options, []io.Closer, error) {
	options := vock.NewOptions()
	options.ApplyEnv()
	options.Server = config.server
	options.ListenPort = config.listenPort
	options.SampleRate = uint32(config.sampleRate)
	options.Muted = config.muted
	options.PortMapping = config.portMapping
	options.QoS = config.qos
	if config.keyFile != "" {
		options.KeyFile = config.keyFile
	}

	var closers []io.Closer
	if config.capture != "" {
		f, err := os.Open(config.capture)
		if err != nil {
			return nil, nil, fmt.Errorf("open capture: %w", err)
		}
		closers = append(closers, f)
		options.Capture = audio.NewReaderSource(f, audio.FrameSamples(options.SampleRate))
	}
	if config.playback != "" {
		f, err := os.OpenFile(config.playback, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, closers, fmt.Errorf("open playback: %w", err)
		}
		closers = append(closers, f)
		options.Playback = audio.NewWriterSink(f)
	}
	return options, closers, nil
}

// console multiplexes stdin between authorization questions and text
// messages.
type console struct {
	m *vock.Manager

	mu      sync.Mutex
	pending []func(bool)
}

func (c *console) authorize(fingerprint string, reply func(bool)) {
	c.mu.Lock()
	c.pending = append(c.pending, reply)
	c.mu.Unlock()
	fmt.Printf("Peer %s wants to talk. Accept? [y/n] ", fingerprint)
}

func (c *console) run(ctx context.Context, cancel context.CancelFunc, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		c.mu.Lock()
		var reply func(bool)
		if len(c.pending) > 0 {
			reply = c.pending[0]
			c.pending = c.pending[1:]
		}
		c.mu.Unlock()

		switch {
		case reply != nil:
			reply(strings.HasPrefix(strings.ToLower(line), "y"))
		case line == "":
		case line == "/quit":
			cancel()
			return
		case line == "/mute":
			if c.m.ToggleMute() {
				fmt.Println("Mute: enabled")
			} else {
				fmt.Println("Mute: disabled")
			}
		default:
			if err := c.m.SendText(line); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to send: %v\n", err)
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 8 {
		return fp[:8]
	}
	return fp
}

func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
}

func wireCallbacks(m *vock.Manager, c *console) {
	m.OnAuthorize(c.authorize)
	m.OnPeerConnect(func(s *peer.Session, mode peer.Mode) {
		fmt.Printf("Connected to %s (%s)\n", s.Addr(), mode)
	})
	m.OnPeerClose(func(s *peer.Session, reason string) {
		fmt.Printf("Disconnected from %s (%s)\n", s.Addr(), reason)
	})
	m.OnPeerText(func(fingerprint, text string) {
		fmt.Printf("[%s] %s\n", shortFingerprint(fingerprint), text)
	})
	m.OnPeerUndelivered(func(s *peer.Session, _ *wire.Packet) {
		fmt.Printf("Message to %s was not delivered\n", s.Addr())
	})
	m.OnNATTraversal(func(protocol string, port int) {
		fmt.Printf("Created port mapping via %s (port %d)\n", protocol, port)
	})
	m.OnError(func(err error) {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Debug("Non-fatal error")
	})
}

func main() {
	config := parseCLIFlags()
	if err := validateCLIConfig(config); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n\n", err)
		printUsage()
		os.Exit(2)
	}

	level, err := logrus.ParseLevel(config.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(2)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	options, closers, err := buildOptions(config)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	m, err := vock.New(options)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create manager: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	c := &console{m: m}
	wireCallbacks(m, c)
	go c.run(ctx, cancel, os.Stdin)

	if err := m.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return
	}
	if id, err := m.Identity(ctx); err == nil {
		fmt.Printf("Your fingerprint: %s\n", id.Fingerprint())
	}

	switch config.command {
	case "create":
		id, err := m.Create(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create room: %v\n", err)
			return
		}
		fmt.Println("Room created! Run this on the other side:")
		fmt.Printf("  vock connect %s\n", id)
		fmt.Println("Waiting for opponent...")
		_, err = m.Watch(ctx, id)
		if err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Failed to watch room: %v\n", err)
		}
	case "connect":
		fmt.Println("Connecting...")
		_, err := m.Join(ctx, config.roomID)
		if err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Failed to join room: %v\n", err)
		}
	}

	<-ctx.Done()
}
