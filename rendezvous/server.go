package rendezvous

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/opd-ai/vock/transport"
	"github.com/opd-ai/vock/wire"
	"github.com/sirupsen/logrus"
)

// DefaultPort is the standard rendezvous server port.
const DefaultPort = 43210

// ServerOptions configures a Server.
type ServerOptions struct {
	// ListenHost and ListenPort select the UDP endpoint.
	ListenHost string
	ListenPort int
	// RoomTTL expires idle members and empty rooms.
	RoomTTL time.Duration
	// SweepInterval is how often expiry runs.
	SweepInterval time.Duration
}

// DefaultServerOptions returns the standard server settings.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		ListenPort:    DefaultPort,
		RoomTTL:       5 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Server answers room queries and forwards relay envelopes.
type Server struct {
	opts     ServerOptions
	socket   *transport.Socket
	rooms    *rooms
	relaySeq atomic.Uint64
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewServer creates an unstarted server.
func NewServer(opts ServerOptions) *Server {
	def := DefaultServerOptions()
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = def.RoomTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}

	s := &Server{
		opts:  opts,
		rooms: newRooms(opts.RoomTTL),
		socket: transport.NewSocket(transport.SocketOptions{
			ListenHost: opts.ListenHost,
			ListenPort: opts.ListenPort,
		}),
		done: make(chan struct{}),
	}
	s.socket.Handle(wire.ProtocolAPI, s.handleAPI)
	s.socket.Handle(wire.ProtocolRelay, s.handleRelay)
	s.socket.OnError(func(err error) {
		logrus.WithFields(logrus.Fields{
			"function": "Server",
			"error":    err.Error(),
		}).Warn("Socket error")
	})
	return s
}

// Start binds the socket and starts room expiry.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.socket.Bind(ctx)
	if err := s.socket.WaitReady(ctx); err != nil {
		cancel()
		return fmt.Errorf("start rendezvous server: %w", err)
	}
	s.cancel = cancel

	logrus.WithFields(logrus.Fields{
		"function": "Server.Start",
		"addr":     s.socket.LocalAddr().String(),
	}).Info("Rendezvous server listening")

	go s.sweep(ctx)
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() *net.UDPAddr {
	return s.socket.LocalAddr()
}

// Close stops the server.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return s.socket.Close()
}

func (s *Server) sweep(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.rooms.expire(); n > 0 {
				logrus.WithFields(logrus.Fields{
					"function": "Server.sweep",
					"removed":  n,
				}).Debug("Expired rooms")
			}
		}
	}
}

func (s *Server) handleAPI(p *wire.Packet, from *net.UDPAddr, _ bool) {
	sender := wire.AddrFromUDP(from)
	reply := &wire.Packet{
		Protocol: wire.ProtocolAPI,
		Type:     p.Type,
		Seq:      p.Seq,
		Version:  wire.Version,
	}

	switch p.Type {
	case wire.TypeCreate:
		reply.ID = s.rooms.create(sender)
		logrus.WithFields(logrus.Fields{
			"function": "Server.handleAPI",
			"room":     reply.ID,
			"from":     sender.String(),
		}).Info("Room created")

	case wire.TypeConnect:
		if p.ID == "" {
			s.replyError(reply, from, "missing room id")
			return
		}
		reply.ID = p.ID
		reply.Members = s.rooms.join(p.ID, sender)

	case wire.TypeInfo:
		members, ok := s.rooms.info(p.ID, sender)
		if !ok {
			s.replyError(reply, from, "room not found")
			return
		}
		reply.ID = p.ID
		reply.Members = members

	default:
		s.replyError(reply, from, "unknown request "+p.Type)
		return
	}

	s.socket.Send(reply, from)
}

func (s *Server) replyError(reply *wire.Packet, to *net.UDPAddr, reason string) {
	reply.Type = wire.TypeError
	reply.Reason = reason
	s.socket.Send(reply, to)
}

// handleRelay forwards an envelope's body to its target, stamping the
// sender so the target can tell peers apart.
func (s *Server) handleRelay(p *wire.Packet, from *net.UDPAddr, _ bool) {
	if p.Body == nil || p.To == nil {
		return
	}
	sender := wire.AddrFromUDP(from)
	if !s.rooms.canRelay(p.ID, sender, *p.To) {
		logrus.WithFields(logrus.Fields{
			"function": "Server.handleRelay",
			"room":     p.ID,
			"from":     sender.String(),
			"to":       p.To.String(),
		}).Debug("Relay between non-members refused")
		return
	}

	target, err := p.To.UDPAddr()
	if err != nil {
		return
	}
	s.socket.Send(&wire.Packet{
		Protocol: wire.ProtocolRelay,
		Seq:      s.relaySeq.Add(1),
		ID:       p.ID,
		From:     &sender,
		Body:     p.Body,
		Version:  wire.Version,
	}, target)
}
