package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/vock/limits"
	"github.com/opd-ai/vock/wire"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned when operating on a closed socket.
var ErrClosed = errors.New("socket closed")

// SocketOptions configures a Socket.
type SocketOptions struct {
	// ListenHost is the local interface to bind ("" for all).
	ListenHost string
	// ListenPort is the preferred local port; 0 picks an ephemeral one.
	ListenPort int
	// Server is the rendezvous server, used for relaying.
	Server *net.UDPAddr
	// PortMapping enables UPnP / NAT-PMP mapping after bind.
	PortMapping bool
	// Mappers overrides DefaultPortMappers.
	Mappers []PortMapper
	// QoS marks outgoing datagrams for expedited forwarding.
	QoS bool
	// MappingDescription tags created port mappings.
	MappingDescription string
}

type pendingSend struct {
	packet *wire.Packet
	addr   *net.UDPAddr
}

// Socket is the UDP endpoint shared by every peer session and the
// rendezvous client. It binds asynchronously; sends issued before the bind
// completes are queued and flushed in order.
type Socket struct {
	opts SocketOptions

	mu       sync.Mutex
	conn     *net.UDPConn
	pending  []pendingSend
	handlers map[string]PacketHandler
	closed   bool
	mappings []createdMapping

	relaySeq atomic.Uint64

	onError     func(error)
	onTraversal func(protocol string, port int)

	ready     chan struct{}
	failed    chan struct{}
	bindErr   error
	done      chan struct{}
	bindOnce  sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// NewSocket creates an unbound socket.
func NewSocket(opts SocketOptions) *Socket {
	if opts.MappingDescription == "" {
		opts.MappingDescription = DefaultMappingDescription
	}
	if opts.PortMapping && opts.Mappers == nil {
		opts.Mappers = DefaultPortMappers()
	}
	return &Socket{
		opts:     opts,
		handlers: make(map[string]PacketHandler),
		ready:    make(chan struct{}),
		failed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnError registers the callback for non-fatal transport errors.
func (s *Socket) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// OnNATTraversal registers the callback invoked once per successful (or
// reused) port mapping.
func (s *Socket) OnNATTraversal(fn func(protocol string, port int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTraversal = fn
}

// Handle implements Transport.
func (s *Socket) Handle(protocol string, handler PacketHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[protocol] = handler
}

// Server implements Transport.
func (s *Socket) Server() *net.UDPAddr {
	return s.opts.Server
}

// IsServer reports whether addr is the configured rendezvous server.
func (s *Socket) IsServer(addr *net.UDPAddr) bool {
	return sameAddr(addr, s.opts.Server)
}

// Ready is closed once the socket is bound.
func (s *Socket) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the socket is bound, binding fails or ctx ends.
func (s *Socket) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.failed:
		return s.bindErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LocalAddr returns the bound address, or nil before Ready.
func (s *Socket) LocalAddr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Bind starts the bootstrap in the background: reuse an existing port
// mapping if one is found, bind, flush queued sends, then try to map the
// port. Bind returns immediately.
func (s *Socket) Bind(ctx context.Context) {
	s.bindOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
		go s.bootstrap(ctx)
	})
}

func (s *Socket) bootstrap(ctx context.Context) {
	port := s.opts.ListenPort
	var reused PortMapper
	var mapping Mapping
	if s.opts.PortMapping {
		if m, found, ok := findExistingMapping(ctx, s.opts.Mappers, s.opts.MappingDescription); ok {
			reused, mapping = m, found
			port = found.InternalPort
		}
	}

	conn, err := s.listen(port)
	if err != nil {
		s.bindErr = fmt.Errorf("bind udp socket: %w", err)
		close(s.failed)
		s.reportError(s.bindErr)
		return
	}

	if s.opts.QoS {
		if err := applyVoiceQoS(conn); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Socket.bootstrap",
				"error":    err.Error(),
			}).Warn("Failed to apply voice QoS")
		}
	}

	if !s.attach(conn) {
		conn.Close()
		return
	}

	local := conn.LocalAddr().(*net.UDPAddr)
	logrus.WithFields(logrus.Fields{
		"function": "Socket.bootstrap",
		"local":    local.String(),
	}).Info("UDP socket bound")

	go s.readLoop(conn)

	if !s.opts.PortMapping {
		return
	}
	if reused != nil {
		s.reportTraversal(reused.Protocol(), mapping.ExternalPort)
		return
	}
	mapPort(ctx, s.opts.Mappers, local.Port, s.opts.MappingDescription, s.recordMapping)
}

// recordMapping remembers a created mapping for removal on Close. A mapping
// that completes after Close is removed at once.
func (s *Socket) recordMapping(m PortMapper, mapping Mapping) {
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.mappings = append(s.mappings, createdMapping{mapper: m, mapping: mapping})
	}
	s.mu.Unlock()

	if closed {
		ctx, cancel := context.WithTimeout(context.Background(), unmapTimeout)
		defer cancel()
		unmapPorts(ctx, []createdMapping{{mapper: m, mapping: mapping}})
		return
	}
	s.reportTraversal(m.Protocol(), mapping.ExternalPort)
}

// listen binds host:port, falling back to an ephemeral port when the
// preferred one is taken.
func (s *Socket) listen(port int) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.opts.ListenHost, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err == nil || port == 0 {
		return conn, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Socket.listen",
		"port":     port,
		"error":    err.Error(),
	}).Warn("Preferred port unavailable, using an ephemeral port")
	addr.Port = 0
	return net.ListenUDP("udp", addr)
}

// attach installs conn and flushes queued sends while holding the lock so
// no later send can overtake them.
func (s *Socket) attach(conn *net.UDPConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	s.conn = conn
	for _, p := range s.pending {
		s.writeLocked(p.packet, p.addr)
	}
	s.pending = nil
	close(s.ready)
	return true
}

// Send implements Transport.
func (s *Socket) Send(packet *wire.Packet, addr *net.UDPAddr) {
	if addr == nil {
		s.reportError(errors.New("send: no destination address"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return
	case s.conn == nil:
		s.pending = append(s.pending, pendingSend{packet: packet, addr: addr})
	default:
		s.writeLocked(packet, addr)
	}
}

// Relay implements Transport.
func (s *Socket) Relay(packet *wire.Packet, roomID string, addr *net.UDPAddr) {
	if s.opts.Server == nil {
		s.reportError(errors.New("relay: no rendezvous server configured"))
		return
	}
	envelope := WrapRelay(packet, s.relaySeq.Add(1), roomID, addr)
	s.Send(envelope, s.opts.Server)
}

func (s *Socket) writeLocked(packet *wire.Packet, addr *net.UDPAddr) {
	data, err := packet.Marshal()
	if err == nil {
		err = limits.ValidateDatagram(data)
	}
	if err != nil {
		go s.reportError(fmt.Errorf("encode %s: %w", packet, err))
		return
	}

	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		go s.reportError(fmt.Errorf("send to %s: %w", addr, err))
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Socket.Send",
		"to":       addr.String(),
		"packet":   packet.String(),
		"size":     len(data),
	}).Debug("Datagram sent")
}

func (s *Socket) readLoop(conn *net.UDPConn) {
	defer close(s.done)

	buf := make([]byte, limits.MaxDatagram)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.reportError(fmt.Errorf("receive: %w", err))
			continue
		}

		packet, err := wire.Unmarshal(buf[:n])
		if err != nil {
			s.reportError(fmt.Errorf("decode datagram from %s: %w", from, err))
			continue
		}
		s.dispatch(packet, from)
	}
}

func (s *Socket) dispatch(packet *wire.Packet, from *net.UDPAddr) {
	relayed := false
	if packet.Protocol == wire.ProtocolRelay && sameAddr(from, s.opts.Server) {
		inner, origin, err := UnwrapRelay(packet)
		if err != nil {
			s.reportError(fmt.Errorf("unwrap relay envelope: %w", err))
			return
		}
		packet, from, relayed = inner, origin, true
	}

	s.mu.Lock()
	handler := s.handlers[packet.Protocol]
	s.mu.Unlock()

	if handler == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Socket.dispatch",
			"from":     from.String(),
			"packet":   packet.String(),
		}).Debug("No handler for packet, dropping")
		return
	}
	handler(packet, from, relayed)
}

func (s *Socket) reportError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Socket",
		"error":    err.Error(),
	}).Warn("Transport error")
	if fn != nil {
		fn(err)
	}
}

func (s *Socket) reportTraversal(protocol string, port int) {
	s.mu.Lock()
	fn := s.onTraversal
	s.mu.Unlock()
	if fn != nil {
		fn(protocol, port)
	}
}

// unmapTimeout bounds how long Close waits for the gateway.
const unmapTimeout = 2 * time.Second

// Close implements Transport. Queued sends are discarded and port mappings
// created by this socket are removed; reused ones are left in place.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		conn := s.conn
		cancel := s.cancel
		mappings := s.mappings
		s.mappings = nil
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			err = conn.Close()
			<-s.done
		}
		if len(mappings) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), unmapTimeout)
			defer cancel()
			unmapPorts(ctx, mappings)
		}
	})
	return err
}

var _ Transport = (*Socket)(nil)
