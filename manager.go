package vock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/vock/audio"
	"github.com/opd-ai/vock/crypto"
	"github.com/opd-ai/vock/limits"
	"github.com/opd-ai/vock/peer"
	"github.com/opd-ai/vock/rendezvous"
	"github.com/opd-ai/vock/transport"
	"github.com/opd-ai/vock/wire"
	"github.com/sirupsen/logrus"
)

// closeGrace bounds how long Close waits for sessions to say goodbye.
const closeGrace = time.Second

// Callback types.
type (
	PeerCallback            func(s *peer.Session)
	PeerConnectCallback     func(s *peer.Session, mode peer.Mode)
	PeerCloseCallback       func(s *peer.Session, reason string)
	PeerTextCallback        func(fingerprint, text string)
	PeerUndeliveredCallback func(s *peer.Session, packet *wire.Packet)
	NATTraversalCallback    func(protocol string, port int)
	ErrorCallback           func(err error)
	AuthorizeCallback       func(fingerprint string, reply func(ok bool))
)

type entry struct {
	key     string
	session *peer.Session
	slot    int
}

// Manager owns the socket, the peer sessions and the audio path.
type Manager struct {
	options  *Options
	socket   *transport.Socket
	identity *crypto.PendingIdentity
	api      *rendezvous.Client
	mixer    *audio.Mixer
	encoder  audio.Encoder
	auth     *authorizer

	mu       sync.Mutex
	sessions map[string]*entry
	free     []int
	nextID   int
	muted    bool
	started  bool
	cancel   context.CancelFunc
	live     sync.WaitGroup

	cbMu              sync.RWMutex
	peerCreateCb      PeerCallback
	peerConnectCb     PeerConnectCallback
	peerCloseCb       PeerCloseCallback
	peerTextCb        PeerTextCallback
	peerUndeliveredCb PeerUndeliveredCallback
	natTraversalCb    NATTraversalCallback
	errorCb           ErrorCallback
	authorizeCb       AuthorizeCallback
}

// New creates a Manager. The identity starts loading immediately; the
// socket binds on Start.
func New(options *Options) (*Manager, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	var server *net.UDPAddr
	if options.Server != "" {
		addr, err := net.ResolveUDPAddr("udp", options.Server)
		if err != nil {
			return nil, fmt.Errorf("resolve rendezvous server %q: %w", options.Server, err)
		}
		server = addr
	}

	m := &Manager{
		options:  options,
		identity: crypto.LoadIdentityAsync(options.KeyFile, options.KeyPassword),
		mixer:    audio.NewMixer(options.Slots, audio.FrameSamples(options.SampleRate)),
		encoder:  audio.NewPCMEncoder(),
		sessions: make(map[string]*entry),
		muted:    options.Muted,
	}
	for slot := options.Slots - 1; slot >= 0; slot-- {
		m.free = append(m.free, slot)
	}
	m.auth = newAuthorizer(m.promptAuthorization)

	m.socket = transport.NewSocket(transport.SocketOptions{
		ListenHost:  options.ListenHost,
		ListenPort:  options.ListenPort,
		Server:      server,
		PortMapping: options.PortMapping,
		QoS:         options.QoS,
	})
	m.socket.Handle("", m.handlePacket)
	m.socket.OnError(m.emitError)
	m.socket.OnNATTraversal(m.emitNATTraversal)
	m.api = rendezvous.NewClient(m.socket, options.Rendezvous)

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"server":   options.Server,
		"port":     options.ListenPort,
		"slots":    options.Slots,
	}).Info("Manager created")
	return m, nil
}

// Start binds the socket and starts audio capture and playback. It
// returns once the socket is bound.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.started = true
	m.cancel = cancel
	m.mu.Unlock()

	m.socket.Bind(runCtx)
	if err := m.socket.WaitReady(ctx); err != nil {
		return err
	}

	if sink := m.options.Playback; sink != nil {
		go func() {
			err := audio.Play(runCtx, m.mixer, sink, 20*time.Millisecond)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.emitError(err)
			}
		}()
	}
	if src := m.options.Capture; src != nil {
		if err := src.Start(m.onCapture); err != nil {
			return fmt.Errorf("start capture: %w", err)
		}
	}
	return nil
}

// Close terminates every session and releases the socket.
func (m *Manager) Close() error {
	for _, s := range m.Peers() {
		s.Close(peer.ReasonExternal)
	}

	done := make(chan struct{})
	go func() {
		m.live.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeGrace):
		logrus.WithFields(logrus.Fields{
			"function": "Manager.Close",
		}).Warn("Sessions did not close in time")
	}

	if src := m.options.Capture; src != nil {
		src.Stop()
	}
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return m.socket.Close()
}

// LocalAddr returns the bound socket address.
func (m *Manager) LocalAddr() *net.UDPAddr {
	return m.socket.LocalAddr()
}

// Identity waits for the identity to load.
func (m *Manager) Identity(ctx context.Context) (*crypto.Identity, error) {
	return m.identity.Wait(ctx)
}

// Create asks the rendezvous server for a new room.
func (m *Manager) Create(ctx context.Context) (string, error) {
	return m.api.Create(ctx)
}

// Join enters room id, waits for another member and connects to every
// member returned.
func (m *Manager) Join(ctx context.Context, id string) ([]*peer.Session, error) {
	members, err := m.api.Join(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.connectMembers(id, members), nil
}

// Watch waits for another member of room id and connects to it.
func (m *Manager) Watch(ctx context.Context, id string) ([]*peer.Session, error) {
	members, err := m.api.Watch(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.connectMembers(id, members), nil
}

func (m *Manager) connectMembers(id string, members []wire.Addr) []*peer.Session {
	sessions := make([]*peer.Session, 0, len(members))
	for _, member := range members {
		addr, err := member.UDPAddr()
		if err != nil {
			m.emitError(fmt.Errorf("room member %s: %w", member, err))
			continue
		}
		sessions = append(sessions, m.Connect(id, addr))
	}
	return sessions
}

// Connect starts a handshake with addr for roomID.
func (m *Manager) Connect(roomID string, addr *net.UDPAddr) *peer.Session {
	s := m.getOrCreate(addr)
	s.Connect(roomID)
	return s
}

// Peer returns the session for addr, if any.
func (m *Manager) Peer(addr *net.UDPAddr) *peer.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[wire.AddrFromUDP(addr).Key()]; ok {
		return e.session
	}
	return nil
}

// Peers returns a snapshot of the live sessions.
func (m *Manager) Peers() []*peer.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*peer.Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.session)
	}
	return out
}

// SendText sends text to every session over the reliable sub-channel.
func (m *Manager) SendText(text string) error {
	if err := limits.ValidateText(text); err != nil {
		return err
	}
	for _, s := range m.Peers() {
		if err := s.SendText(text); err != nil {
			return err
		}
	}
	return nil
}

// ToggleMute flips capture muting and returns the new state.
func (m *Manager) ToggleMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = !m.muted
	return m.muted
}

// Muted reports whether capture is muted.
func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// IsAuthorized calls done with the authorization answer for fingerprint.
// Concurrent calls for one fingerprint share a single prompt.
func (m *Manager) IsAuthorized(fingerprint string, done func(ok bool)) {
	m.auth.isAuthorized(fingerprint, done)
}

// Forget drops the cached authorization answer for fingerprint.
func (m *Manager) Forget(fingerprint string) {
	m.auth.forget(fingerprint)
}

// getOrCreate returns the session for addr, creating it with a mixing
// slot. When every slot is taken the new session is reset at once.
func (m *Manager) getOrCreate(addr *net.UDPAddr) *peer.Session {
	key := wire.AddrFromUDP(addr).Key()

	m.mu.Lock()
	if e, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return e.session
	}

	e := &entry{key: key, slot: -1}
	if n := len(m.free); n > 0 {
		e.slot = m.free[n-1]
		m.free = m.free[:n-1]
	}
	id := m.nextID
	m.nextID++
	h := &sessionHandler{m: m, entry: e}
	if e.slot >= 0 {
		h.decoder = audio.NewDecoder(m.options.SampleRate)
	}
	e.session = peer.New(id, addr, m.identity, m.options.Peer, h)
	m.sessions[key] = e
	m.live.Add(1)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Manager.getOrCreate",
		"session":  id,
		"peer":     addr.String(),
		"slot":     e.slot,
	}).Debug("Session created")

	m.cbMu.RLock()
	cb := m.peerCreateCb
	m.cbMu.RUnlock()
	if cb != nil {
		cb(e.session)
	}

	if e.slot < 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Manager.getOrCreate",
			"peer":     addr.String(),
		}).Warn("No free mixing slot, resetting session")
		e.session.Reset()
	}
	return e.session
}

// release removes a closed session and returns its slot to the pool.
func (m *Manager) release(e *entry) {
	m.mu.Lock()
	if cur, ok := m.sessions[e.key]; ok && cur == e {
		delete(m.sessions, e.key)
	}
	if e.slot >= 0 {
		m.mixer.Clear(e.slot)
		m.free = append(m.free, e.slot)
		e.slot = -1
	}
	m.mu.Unlock()
	m.live.Done()
}

func (m *Manager) handlePacket(packet *wire.Packet, from *net.UDPAddr, relayed bool) {
	// The server is never a peer; only its relay envelopes carry peer traffic.
	if !relayed && m.socket.IsServer(from) {
		logrus.WithFields(logrus.Fields{
			"function": "Manager.handlePacket",
			"packet":   packet.String(),
		}).Debug("Dropping peer packet sent directly by the server")
		return
	}

	if packet.Type == wire.TypeClose {
		s := m.Peer(from)
		if s == nil {
			// Answering a close for an unknown peer would reset it back.
			logrus.WithFields(logrus.Fields{
				"function": "Manager.handlePacket",
				"peer":     from.String(),
			}).Debug("Ignoring close from unknown peer")
			return
		}
		s.Receive(packet, relayed)
		return
	}

	m.getOrCreate(from).Receive(packet, relayed)
}

// deliver sends a session's outbound packet directly or through the relay.
func (m *Manager) deliver(s *peer.Session, packet *wire.Packet) {
	if s.Mode() == peer.ModeRelay {
		m.socket.Relay(packet, s.RoomID(), s.Addr())
		return
	}
	m.socket.Send(packet, s.Addr())
}

func (m *Manager) onCapture(pcm []int16) {
	if m.Muted() {
		return
	}
	frame, err := m.encoder.Encode(pcm)
	if err != nil {
		m.emitError(fmt.Errorf("encode voice: %w", err))
		return
	}
	for _, s := range m.Peers() {
		if s.State() != peer.StateAccepted {
			continue
		}
		if err := s.SendVoice(frame); err != nil {
			m.emitError(err)
			return
		}
	}
}

func (m *Manager) promptAuthorization(fingerprint string, reply func(bool)) {
	m.cbMu.RLock()
	cb := m.authorizeCb
	m.cbMu.RUnlock()

	if cb == nil {
		reply(m.options.AutoAccept)
		return
	}
	cb(fingerprint, reply)
}
