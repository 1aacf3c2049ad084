package vock

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/vock/peer"
	"github.com/opd-ai/vock/rendezvous"
	"github.com/opd-ai/vock/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() *Options {
	o := NewOptions()
	o.ListenHost = "127.0.0.1"
	o.ListenPort = 0
	o.PortMapping = false
	o.QoS = false
	o.AutoAccept = true
	o.SampleRate = 8000
	o.Peer = peer.Config{
		PingInterval:      100 * time.Millisecond,
		HandshakeInterval: 20 * time.Millisecond,
		DeathTimeout:      3 * time.Second,
		ConnectTimeout:    2 * time.Second,
		WaitInterval:      20 * time.Millisecond,
		JitterDelay:       5 * time.Millisecond,
		ReliableRetry:     20 * time.Millisecond,
		ReliableGiveUp:    time.Second,
		ReliableWindow:    time.Second,
	}
	o.Rendezvous = rendezvous.ClientOptions{Timeout: 200 * time.Millisecond, WatchInterval: 50 * time.Millisecond}
	return o
}

// events records manager callbacks.
type events struct {
	mu       sync.Mutex
	created  int
	connects []peer.Mode
	closes   []string
	texts    []string
	senders  []string
}

func (e *events) attach(m *Manager) {
	m.OnPeerCreate(func(*peer.Session) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.created++
	})
	m.OnPeerConnect(func(_ *peer.Session, mode peer.Mode) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.connects = append(e.connects, mode)
	})
	m.OnPeerClose(func(_ *peer.Session, reason string) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.closes = append(e.closes, reason)
	})
	m.OnPeerText(func(fp, text string) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.senders = append(e.senders, fp)
		e.texts = append(e.texts, text)
	})
}

func (e *events) connected() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.connects)
}

func (e *events) closed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.closes...)
}

func startManager(t *testing.T, o *Options) (*Manager, *events) {
	t.Helper()
	m, err := New(o)
	require.NoError(t, err)
	ev := &events{}
	ev.attach(m)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { m.Close() })
	return m, ev
}

// manualSource is a capture device driven by the test.
type manualSource struct {
	mu      sync.Mutex
	onFrame func([]int16)
}

func (s *manualSource) Start(onFrame func([]int16)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = onFrame
	return nil
}

func (s *manualSource) Stop() error { return nil }

func (s *manualSource) push(pcm []int16) {
	s.mu.Lock()
	fn := s.onFrame
	s.mu.Unlock()
	if fn != nil {
		fn(pcm)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	o := testOptions()
	o.Slots = 0
	_, err := New(o)
	assert.Error(t, err)

	o = testOptions()
	o.SampleRate = 44101
	_, err = New(o)
	assert.Error(t, err)

	o = testOptions()
	o.Server = "not a host:port:at all"
	_, err = New(o)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvKeyFile, "/tmp/vock.key")
	t.Setenv(EnvKeyPassword, "hunter2")

	o := NewOptions()
	o.ApplyEnv()
	assert.Equal(t, "/tmp/vock.key", o.KeyFile)
	assert.Equal(t, "hunter2", o.KeyPassword)
}

func TestManagersConnectAndExchangeText(t *testing.T) {
	a, aev := startManager(t, testOptions())
	b, bev := startManager(t, testOptions())

	a.Connect("room", b.LocalAddr())

	require.Eventually(t, func() bool {
		return aev.connected() == 1 && bev.connected() == 1
	}, 3*time.Second, 10*time.Millisecond)
	aev.mu.Lock()
	assert.Equal(t, []peer.Mode{peer.ModeDirect}, aev.connects)
	aev.mu.Unlock()

	require.NoError(t, a.SendText("hello"))
	require.Eventually(t, func() bool {
		bev.mu.Lock()
		defer bev.mu.Unlock()
		return len(bev.texts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	id, err := a.Identity(context.Background())
	require.NoError(t, err)
	bev.mu.Lock()
	assert.Equal(t, "hello", bev.texts[0])
	assert.Equal(t, id.Fingerprint(), bev.senders[0])
	bev.mu.Unlock()
}

func TestManagersExchangeVoice(t *testing.T) {
	src := &manualSource{}
	ao := testOptions()
	ao.Capture = src
	a, aev := startManager(t, ao)
	b, bev := startManager(t, testOptions())

	a.Connect("room", b.LocalAddr())
	require.Eventually(t, func() bool {
		return aev.connected() == 1 && bev.connected() == 1
	}, 3*time.Second, 10*time.Millisecond)

	frame := make([]int16, 160)
	for i := range frame {
		frame[i] = 1000
	}
	require.Eventually(t, func() bool {
		src.push(frame)
		mixed := b.mixer.Mix()
		return mixed[0] == 1000
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMutedManagerSendsNoVoice(t *testing.T) {
	src := &manualSource{}
	ao := testOptions()
	ao.Capture = src
	ao.Muted = true
	a, aev := startManager(t, ao)
	b, bev := startManager(t, testOptions())

	a.Connect("room", b.LocalAddr())
	require.Eventually(t, func() bool {
		return aev.connected() == 1 && bev.connected() == 1
	}, 3*time.Second, 10*time.Millisecond)

	frame := make([]int16, 160)
	for i := range frame {
		frame[i] = 1000
	}
	for i := 0; i < 5; i++ {
		src.push(frame)
	}
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		assert.Equal(t, int16(0), b.mixer.Mix()[0])
	}

	assert.False(t, a.ToggleMute())
	assert.False(t, a.Muted())
	assert.True(t, a.ToggleMute())
}

func TestManagerCloseNotifiesPeer(t *testing.T) {
	a, aev := startManager(t, testOptions())
	b, bev := startManager(t, testOptions())

	a.Connect("room", b.LocalAddr())
	require.Eventually(t, func() bool {
		return aev.connected() == 1 && bev.connected() == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Close())
	assert.Empty(t, a.Peers())
	require.Eventually(t, func() bool {
		return len(aev.closed()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{peer.ReasonExternal}, aev.closed())

	require.Eventually(t, func() bool {
		return len(bev.closed()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{peer.ReasonExternal}, bev.closed())
	assert.Empty(t, b.Peers())
}

func TestDeniedAuthorizationPreventsConnect(t *testing.T) {
	a, aev := startManager(t, testOptions())
	bo := testOptions()
	bo.AutoAccept = false
	b, bev := startManager(t, bo)

	asked := make(chan string, 10)
	b.OnAuthorize(func(fp string, reply func(bool)) {
		asked <- fp
		reply(false)
	})

	a.Connect("room", b.LocalAddr())

	select {
	case fp := <-asked:
		id, err := a.Identity(context.Background())
		require.NoError(t, err)
		assert.Equal(t, id.Fingerprint(), fp)
	case <-time.After(2 * time.Second):
		t.Fatal("authorization was never requested")
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, aev.connected())
	assert.Equal(t, 0, bev.connected())
	assert.Len(t, asked, 0, "answer should be cached")
}

func TestSlotExhaustionResetsSession(t *testing.T) {
	o := testOptions()
	o.Slots = 1
	m, err := New(o)
	require.NoError(t, err)
	ev := &events{}
	ev.attach(m)

	first := m.getOrCreate(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1000})
	assert.Same(t, first, m.getOrCreate(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1000}))

	second := m.getOrCreate(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 1000})
	require.Eventually(t, func() bool {
		return second.State() == peer.StateClosed
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(m.Peers()) == 1 && len(ev.closed()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{peer.ReasonReset}, ev.closed())
	ev.mu.Lock()
	assert.Equal(t, 2, ev.created)
	ev.mu.Unlock()

	first.Reset()
	require.Eventually(t, func() bool {
		return len(m.Peers()) == 0
	}, time.Second, 5*time.Millisecond)

	third := m.getOrCreate(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 3), Port: 1000})
	time.Sleep(50 * time.Millisecond)
	assert.NotEqual(t, peer.StateClosed, third.State())
	m.mu.Lock()
	assert.Equal(t, 0, m.sessions["10.0.0.3#1000"].slot)
	m.mu.Unlock()

	m.Close()
}

func TestManagersMeetThroughRendezvous(t *testing.T) {
	srv := rendezvous.NewServer(rendezvous.ServerOptions{ListenHost: "127.0.0.1"})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Close() })

	ao := testOptions()
	ao.Server = srv.Addr().String()
	bo := testOptions()
	bo.Server = srv.Addr().String()
	a, aev := startManager(t, ao)
	b, bev := startManager(t, bo)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := a.Create(ctx)
	require.NoError(t, err)

	watched := make(chan error, 1)
	go func() {
		_, err := a.Watch(ctx, id)
		watched <- err
	}()

	sessions, err := b.Join(ctx, id)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, a.LocalAddr().Port, sessions[0].Addr().Port)
	require.NoError(t, <-watched)

	require.Eventually(t, func() bool {
		return aev.connected() == 1 && bev.connected() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

// sendRaw writes a peer packet to addr from conn.
func sendRaw(t *testing.T, conn *net.UDPConn, addr net.Addr, packet *wire.Packet) {
	t.Helper()
	data, err := packet.Marshal()
	require.NoError(t, err)
	_, err = conn.WriteTo(data, addr)
	require.NoError(t, err)
}

func TestCloseFromUnknownPeerCreatesNoSession(t *testing.T) {
	m, ev := startManager(t, testOptions())

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	sendRaw(t, conn, m.LocalAddr(), &wire.Packet{Type: wire.TypeClose, Reason: peer.ReasonReset})
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, m.Peers())
	ev.mu.Lock()
	assert.Equal(t, 0, ev.created)
	ev.mu.Unlock()

	// Nothing is sent back, so a closed peer is not reset in turn.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = conn.ReadFrom(make([]byte, 2048))
	assert.Error(t, err)
}

func TestClosedPeersStayClosed(t *testing.T) {
	o := testOptions()
	o.Peer.DeathTimeout = 200 * time.Millisecond
	a, aev := startManager(t, o)
	o = testOptions()
	o.Peer.DeathTimeout = 200 * time.Millisecond
	b, bev := startManager(t, o)

	a.Connect("room", b.LocalAddr())
	require.Eventually(t, func() bool {
		return aev.connected() == 1 && bev.connected() == 1
	}, 3*time.Second, 10*time.Millisecond)

	a.Peer(b.LocalAddr()).Close(peer.ReasonExternal)
	require.Eventually(t, func() bool {
		return len(a.Peers()) == 0 && len(b.Peers()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Several death timeouts later b has not been revived.
	for i := 0; i < 10; i++ {
		time.Sleep(100 * time.Millisecond)
		assert.Empty(t, b.Peers())
	}
	assert.Empty(t, a.Peers())
	bev.mu.Lock()
	assert.Equal(t, 1, bev.created)
	bev.mu.Unlock()
	assert.Equal(t, []string{peer.ReasonExternal}, bev.closed())
}

func TestServerOriginPeerPacketDropped(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer server.Close()

	o := testOptions()
	o.Server = server.LocalAddr().String()
	m, ev := startManager(t, o)

	sendRaw(t, server, m.LocalAddr(), &wire.Packet{Type: wire.TypePing})
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, m.Peers())
	ev.mu.Lock()
	assert.Equal(t, 0, ev.created)
	ev.mu.Unlock()
}
