// Package main provides vock-server, the rendezvous and relay server that
// vock clients use to find each other.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/vock/rendezvous"
	"github.com/sirupsen/logrus"
)

// CLIConfig holds the parsed command line.
type CLIConfig struct {
	host     string
	port     int
	roomTTL  time.Duration
	logLevel string
}

func parseCLIFlags() *CLIConfig {
	config := &CLIConfig{}
	flag.StringVar(&config.host, "host", "", "Interface to listen on (default: all)")
	flag.IntVar(&config.port, "port", rendezvous.DefaultPort, "UDP port")
	flag.DurationVar(&config.roomTTL, "room-ttl", 5*time.Minute, "Expire members idle for this long")
	flag.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()
	return config
}

func validateCLIConfig(config *CLIConfig) error {
	if config.port <= 0 || config.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", config.port)
	}
	if config.roomTTL <= 0 {
		return fmt.Errorf("room TTL must be positive")
	}
	return nil
}

func main() {
	config := parseCLIFlags()
	if err := validateCLIConfig(config); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	level, err := logrus.ParseLevel(config.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(2)
	}
	logrus.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := rendezvous.NewServer(rendezvous.ServerOptions{
		ListenHost: config.host,
		ListenPort: config.port,
		RoomTTL:    config.roomTTL,
	})
	if err := srv.Start(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Error("Failed to start server")
		os.Exit(1)
	}

	<-ctx.Done()
	logrus.WithFields(logrus.Fields{
		"function": "main",
	}).Info("Shutting down")
	if err := srv.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Warn("Close failed")
	}
}
