package peer

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/vock/crypto"
	"github.com/opd-ai/vock/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		PingInterval:      100 * time.Millisecond,
		HandshakeInterval: 20 * time.Millisecond,
		DeathTimeout:      2 * time.Second,
		ConnectTimeout:    300 * time.Millisecond,
		WaitInterval:      20 * time.Millisecond,
		JitterDelay:       5 * time.Millisecond,
		ReliableRetry:     20 * time.Millisecond,
		ReliableGiveUp:    200 * time.Millisecond,
		ReliableWindow:    time.Second,
	}
}

// recorder is a Handler that records every event and optionally forwards
// outbound packets to another session.
type recorder struct {
	mu          sync.Mutex
	sent        []*wire.Packet
	connects    int
	closes      []string
	voices      [][]byte
	texts       []string
	undelivered []*wire.Packet
	errs        []error
	authorize   func(fingerprint string, reply func(bool))
	peer        *Session
}

func (r *recorder) link(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peer = s
}

func (r *recorder) OnData(s *Session, p *wire.Packet) {
	r.mu.Lock()
	r.sent = append(r.sent, p)
	peer := r.peer
	r.mu.Unlock()
	if peer != nil {
		peer.Receive(p, false)
	}
}

func (r *recorder) OnConnect(*Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
}

func (r *recorder) OnVoice(_ *Session, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voices = append(r.voices, frame)
}

func (r *recorder) OnText(_ *Session, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recorder) OnAuthorize(_ *Session, fp string, reply func(bool)) {
	r.mu.Lock()
	fn := r.authorize
	r.mu.Unlock()
	if fn == nil {
		reply(true)
		return
	}
	fn(fp, reply)
}

func (r *recorder) OnClose(_ *Session, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes = append(r.closes, reason)
}

func (r *recorder) OnUndelivered(_ *Session, p *wire.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.undelivered = append(r.undelivered, p)
}

func (r *recorder) OnError(_ *Session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.sent {
		if p.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) connectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

func (r *recorder) closeReasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.closes...)
}

func (r *recorder) textsReceived() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func (r *recorder) voicesReceived() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.voices...)
}

func (r *recorder) lastSent() *wire.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

// opened decrypts every sealed packet sent so far.
func (r *recorder) opened(t *testing.T, key crypto.SessionKey) []*wire.Packet {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*wire.Packet
	for _, p := range r.sent {
		if !p.Sealed() {
			continue
		}
		plain, err := crypto.Open(&key, p.Box)
		require.NoError(t, err)
		inner, err := wire.Unmarshal(plain)
		require.NoError(t, err)
		out = append(out, inner)
	}
	return out
}

func countType(packets []*wire.Packet, typ string) int {
	n := 0
	for _, p := range packets {
		if p.Type == typ {
			n++
		}
	}
	return n
}

func testAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func newIdentity(t *testing.T) *crypto.Identity {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	return id
}

func newSession(t *testing.T, h Handler) (*Session, *crypto.Identity) {
	t.Helper()
	id := newIdentity(t)
	s := New(1, testAddr(40000), crypto.ReadyIdentity(id), testConfig(), h)
	t.Cleanup(func() { s.Close("test done") })
	require.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, 5*time.Millisecond)
	return s, id
}

func newPair(t *testing.T) (a *Session, ra *recorder, b *Session, rb *recorder) {
	t.Helper()
	return newPairWith(t, testConfig())
}

func newPairWith(t *testing.T, cfg Config) (a *Session, ra *recorder, b *Session, rb *recorder) {
	t.Helper()
	ra, rb = &recorder{}, &recorder{}
	a = New(1, testAddr(40001), crypto.ReadyIdentity(newIdentity(t)), cfg, ra)
	b = New(2, testAddr(40002), crypto.ReadyIdentity(newIdentity(t)), cfg, rb)
	ra.link(b)
	rb.link(a)
	t.Cleanup(func() {
		ra.link(nil)
		rb.link(nil)
		a.Close("test done")
		b.Close("test done")
	})
	return a, ra, b, rb
}

// forceAccepted installs key as the session key and marks s accepted.
func forceAccepted(t *testing.T, s *Session, key crypto.SessionKey) {
	t.Helper()
	done := make(chan struct{})
	s.post(func() {
		k := key
		s.secret = &k
		s.heloSent = true
		s.state.Store(int32(StateAccepted))
		close(done)
	})
	<-done
}

func sealed(t *testing.T, key crypto.SessionKey, p *wire.Packet) *wire.Packet {
	t.Helper()
	plain, err := p.Marshal()
	require.NoError(t, err)
	box, err := crypto.Seal(&key, plain)
	require.NoError(t, err)
	return &wire.Packet{Box: box}
}

func testKey() crypto.SessionKey {
	var k crypto.SessionKey
	for i := range k {
		k[i] = byte(i + 1)
	}
	return k
}

func bothAccepted(a, b *Session) func() bool {
	return func() bool {
		return a.State() == StateAccepted && b.State() == StateAccepted
	}
}

func TestHandshakeLiveness(t *testing.T) {
	cfg := testConfig()
	cfg.HandshakeInterval = 300 * time.Millisecond
	a, ra, b, rb := newPairWith(t, cfg)

	// Both identities are loaded before the clock starts.
	require.Eventually(t, func() bool {
		return a.State() == StateIdle && b.State() == StateIdle
	}, time.Second, time.Millisecond)

	start := time.Now()
	a.Connect("r1")

	// One retry interval is enough: the first hello is never resent.
	require.Eventually(t, bothAccepted(a, b), cfg.HandshakeInterval+cfg.JitterDelay, time.Millisecond)
	assert.Less(t, time.Since(start), cfg.HandshakeInterval+cfg.JitterDelay)
	assert.Equal(t, 1, ra.count(wire.TypeHello))
	assert.Equal(t, 1, ra.connectCount())
	assert.Equal(t, 1, rb.connectCount())

	helloA, helloB := ra.count(wire.TypeHello), rb.count(wire.TypeHello)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, helloA, ra.count(wire.TypeHello), "no hello after acceptance")
	assert.Equal(t, helloB, rb.count(wire.TypeHello), "no hello after acceptance")

	assert.Equal(t, "r1", b.RoomID())
	assert.Equal(t, ModeDirect, a.Mode())
	assert.Len(t, a.Fingerprint(), 40)
	assert.Equal(t, 1, ra.connectCount())
	assert.Equal(t, 1, rb.connectCount())
}

func TestSimultaneousConnect(t *testing.T) {
	a, ra, b, rb := newPair(t)

	a.Connect("r1")
	b.Connect("r1")

	require.Eventually(t, bothAccepted(a, b), 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ra.connectCount())
	assert.Equal(t, 1, rb.connectCount())
}

func TestAcceptedSessionsExchangeVoiceAndText(t *testing.T) {
	a, _, b, rb := newPair(t)
	a.Connect("r1")
	require.Eventually(t, bothAccepted(a, b), 2*time.Second, 5*time.Millisecond)

	require.NoError(t, a.SendVoice([]byte("frame-1")))
	require.NoError(t, a.SendText("hello"))

	require.Eventually(t, func() bool {
		return len(rb.voicesReceived()) >= 1 && len(rb.textsReceived()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("frame-1"), rb.voicesReceived()[0])
	assert.Equal(t, []string{"hello"}, rb.textsReceived())
}

func TestResetIsIdempotent(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)

	s.Reset()
	s.Reset()

	require.Eventually(t, func() bool { return len(r.closeReasons()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{ReasonReset}, r.closeReasons())
	assert.Equal(t, 1, r.count(wire.TypeClose))
	assert.Equal(t, StateClosed, s.State())
}

func TestConnectTimeoutEscalatesToRelay(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)

	start := time.Now()
	s.Connect("r1")

	require.Eventually(t, func() bool { return s.Mode() == ModeRelay }, time.Second, 5*time.Millisecond)
	assert.Empty(t, r.closeReasons())

	require.Eventually(t, func() bool { return len(r.closeReasons()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{ReasonTimeout}, r.closeReasons())
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, ReasonTimeout, r.lastSent().Reason)
}

func TestWaitSuppressesConnectTimeout(t *testing.T) {
	a, _, b, rb := newPair(t)

	replies := make(chan func(bool), 1)
	rb.mu.Lock()
	rb.authorize = func(_ string, reply func(bool)) { replies <- reply }
	rb.mu.Unlock()

	a.Connect("r1")

	var reply func(bool)
	select {
	case reply = <-replies:
	case <-time.After(time.Second):
		t.Fatal("no authorization request")
	}

	time.Sleep(700 * time.Millisecond)
	assert.Equal(t, ModeDirect, a.Mode())
	assert.Equal(t, StateIdle, a.State())
	assert.Positive(t, rb.count(wire.TypeWait))

	reply(true)
	require.Eventually(t, bothAccepted(a, b), 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, ModeDirect, a.Mode())
}

func TestDeniedPeerTimesOut(t *testing.T) {
	a, ra, b, rb := newPair(t)
	rb.mu.Lock()
	rb.authorize = func(_ string, reply func(bool)) { reply(false) }
	rb.mu.Unlock()

	a.Connect("r1")

	require.Eventually(t, func() bool { return len(ra.closeReasons()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{ReasonTimeout}, ra.closeReasons())
	assert.Zero(t, rb.connectCount())
	assert.Zero(t, rb.count(wire.TypeAccept))
	assert.NotEqual(t, StateAccepted, b.State())
}

func TestAuthorizationRequestedOncePerSession(t *testing.T) {
	a, _, _, rb := newPair(t)

	var mu sync.Mutex
	requests := 0
	rb.mu.Lock()
	rb.authorize = func(_ string, reply func(bool)) {
		mu.Lock()
		defer mu.Unlock()
		requests++
	}
	rb.mu.Unlock()

	a.Connect("r1")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return requests == 1
	}, time.Second, 5*time.Millisecond)

	// Hellos keep arriving while the decision is pending.
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, requests)
}

func TestReliableDedupAcksEveryCopy(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)
	key := testKey()
	forceAccepted(t, s, key)

	text := &wire.Packet{Type: wire.TypeText, Group: wire.GroupText, Seq: 0, RSeq: 1, Text: "hi"}
	for i := 0; i < 3; i++ {
		s.Receive(sealed(t, key, text), false)
	}

	require.Eventually(t, func() bool {
		return countType(r.opened(t, key), wire.TypeAck) == 3
	}, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []string{"hi"}, r.textsReceived())

	for _, ack := range r.opened(t, key) {
		assert.Equal(t, uint64(1), ack.RSeq)
		assert.Equal(t, wire.GroupAck, ack.Group)
	}
}

func TestReliableRetransmitsUntilAcked(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)
	key := testKey()
	forceAccepted(t, s, key)

	require.NoError(t, s.SendText("x"))
	require.Eventually(t, func() bool {
		return countType(r.opened(t, key), wire.TypeText) >= 3
	}, time.Second, 5*time.Millisecond)

	for _, p := range r.opened(t, key) {
		assert.Equal(t, uint64(1), p.RSeq)
		assert.Equal(t, uint64(0), p.Seq, "retransmissions reuse the datagram")
	}

	s.Receive(sealed(t, key, &wire.Packet{Type: wire.TypeAck, Group: wire.GroupAck, RSeq: 1}), false)
	time.Sleep(60 * time.Millisecond)
	n := countType(r.opened(t, key), wire.TypeText)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, countType(r.opened(t, key), wire.TypeText))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Empty(t, r.undelivered)
}

func TestReliableGiveUpReportsUndelivered(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)
	forceAccepted(t, s, testKey())

	require.NoError(t, s.SendText("lost"))

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.undelivered) == 1
	}, 2*time.Second, 10*time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, "lost", r.undelivered[0].Text)
	assert.Equal(t, StateAccepted, s.State())
}

func TestVoiceGapSignalsLoss(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)
	key := testKey()
	forceAccepted(t, s, key)

	for _, seq := range []uint64{0, 1, 3} {
		s.Receive(sealed(t, key, &wire.Packet{
			Type: wire.TypeVoice, Group: wire.GroupVoice, Seq: seq, Data: []byte{byte(seq)},
		}), false)
	}
	require.Eventually(t, func() bool { return len(r.voicesReceived()) == 4 }, time.Second, 5*time.Millisecond)

	s.Receive(sealed(t, key, &wire.Packet{Type: wire.TypeVoice, Group: wire.GroupVoice, Seq: 2, Data: []byte{2}}), false)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, [][]byte{{0}, {1}, nil, {3}}, r.voicesReceived())
}

func TestVoiceDroppedBeforeAccept(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)

	require.NoError(t, s.SendVoice([]byte{1}))
	s.Receive(&wire.Packet{Type: wire.TypeVoice, Group: wire.GroupVoice, Data: []byte{1}}, false)
	time.Sleep(30 * time.Millisecond)

	assert.Empty(t, r.voicesReceived())
	assert.Zero(t, r.count(wire.TypeVoice))
}

func TestCloseFromPeerWhileAccepted(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)
	forceAccepted(t, s, testKey())

	s.Receive(&wire.Packet{Type: wire.TypeClose, Reason: "bye"}, false)

	require.Eventually(t, func() bool { return len(r.closeReasons()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{ReasonExternal}, r.closeReasons())
	last := r.lastSent()
	assert.Equal(t, wire.TypeClose, last.Type)
	assert.Equal(t, ReasonReset, last.Reason)
}

func TestCloseFromPeerBeforeAccept(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)

	s.Receive(&wire.Packet{Type: wire.TypeClose, Reason: ReasonReset}, false)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, r.closeReasons())
	assert.Equal(t, StateIdle, s.State())

	s.Receive(&wire.Packet{Type: wire.TypeClose, Seq: 1, Reason: "bye"}, false)
	require.Eventually(t, func() bool { return len(r.closeReasons()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{ReasonReset}, r.closeReasons())
}

func TestClosedSessionAnswersWithReset(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)
	s.Reset()
	require.Eventually(t, func() bool { return s.State() == StateClosed }, time.Second, 5*time.Millisecond)

	s.Receive(&wire.Packet{Type: wire.TypePing}, false)
	require.Eventually(t, func() bool { return r.count(wire.TypeClose) == 2 }, time.Second, 5*time.Millisecond)

	s.Receive(&wire.Packet{Type: wire.TypeClose, Reason: ReasonReset}, false)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, r.count(wire.TypeClose))
	assert.Equal(t, []string{ReasonReset}, r.closeReasons())
}

func TestPingAnsweredWithPong(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)

	s.Receive(&wire.Packet{Type: wire.TypePing}, false)
	require.Eventually(t, func() bool { return r.count(wire.TypePong) == 1 }, time.Second, 5*time.Millisecond)
}

func TestStaleHandshakePacketsDropped(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)

	s.Receive(&wire.Packet{Type: wire.TypePing, Seq: 5}, false)
	require.Eventually(t, func() bool { return r.count(wire.TypePong) == 1 }, time.Second, 5*time.Millisecond)

	s.Receive(&wire.Packet{Type: wire.TypePing, Seq: 5}, false)
	s.Receive(&wire.Packet{Type: wire.TypePing, Seq: 2}, false)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, r.count(wire.TypePong))
}

func TestProtocolViolationsReset(t *testing.T) {
	peerID := newIdentity(t)
	key := testKey()
	accepted := func(t *testing.T, s *Session) { forceAccepted(t, s, key) }

	tests := []struct {
		name    string
		prepare func(t *testing.T, s *Session)
		packet  *wire.Packet
	}{
		{
			name:   "hello without identity key",
			packet: &wire.Packet{Type: wire.TypeHello, RoomID: "r1"},
		},
		{
			name:    "hello for another room",
			prepare: func(_ *testing.T, s *Session) { s.Connect("r1") },
			packet:  &wire.Packet{Type: wire.TypeHello, RoomID: "r2", Public: peerID.Public[:]},
		},
		{
			name:   "accept before hello",
			packet: &wire.Packet{Type: wire.TypeAccept, DH: []byte{1, 2, 3}},
		},
		{
			name:    "accept without key-exchange value",
			prepare: func(_ *testing.T, s *Session) { s.Connect("r1") },
			packet:  &wire.Packet{Type: wire.TypeAccept},
		},
		{
			name:    "accept with garbage key-exchange value",
			prepare: func(_ *testing.T, s *Session) { s.Connect("r1") },
			packet:  &wire.Packet{Type: wire.TypeAccept, DH: []byte("garbage garbage garbage garbage garbage garbage garbage")},
		},
		{
			name:    "handshake packet inside box",
			prepare: accepted,
			packet:  sealed(t, key, &wire.Packet{Type: wire.TypePing, Group: wire.GroupHandshake, Seq: 1}),
		},
		{
			name:    "box inside box",
			prepare: accepted,
			packet:  sealed(t, key, sealed(t, key, &wire.Packet{Type: wire.TypeText, Group: wire.GroupText, RSeq: 1, Text: "x"})),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{authorize: func(string, func(bool)) {}}
			s, _ := newSession(t, r)
			if tt.prepare != nil {
				tt.prepare(t, s)
			}

			s.Receive(tt.packet, false)

			require.Eventually(t, func() bool { return len(r.closeReasons()) == 1 }, time.Second, 5*time.Millisecond)
			assert.Equal(t, []string{ReasonReset}, r.closeReasons())
		})
	}
}

func TestRelayedPacketSwitchesMode(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)
	require.Equal(t, ModeDirect, s.Mode())

	s.Receive(&wire.Packet{Type: wire.TypePing}, true)
	require.Eventually(t, func() bool { return s.Mode() == ModeRelay }, time.Second, 5*time.Millisecond)
}

func TestUnencryptedDataPacketsDropped(t *testing.T) {
	r := &recorder{}
	s, _ := newSession(t, r)
	forceAccepted(t, s, testKey())

	s.Receive(&wire.Packet{Type: wire.TypeText, Group: wire.GroupText, RSeq: 1, Text: "plain"}, false)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, r.textsReceived())
}

type fakeIdentity struct {
	done chan struct{}
	id   *crypto.Identity
	err  error
}

func (f *fakeIdentity) Done() <-chan struct{}             { return f.done }
func (f *fakeIdentity) Result() (*crypto.Identity, error) { return f.id, f.err }

func TestInitQueuesRequestsUntilIdentityLoads(t *testing.T) {
	r := &recorder{}
	src := &fakeIdentity{done: make(chan struct{})}
	s := New(1, testAddr(40000), src, testConfig(), r)
	t.Cleanup(func() { s.Close("test done") })

	s.Connect("r1")
	s.Receive(&wire.Packet{Type: wire.TypePing}, false)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateInit, s.State())
	assert.Zero(t, r.count(wire.TypeHello))
	assert.Zero(t, r.count(wire.TypePong))

	src.id = newIdentity(t)
	close(src.done)

	require.Eventually(t, func() bool {
		return r.count(wire.TypeHello) >= 1 && r.count(wire.TypePong) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "r1", s.RoomID())
}

func TestIdentityFailureClosesSession(t *testing.T) {
	r := &recorder{}
	src := &fakeIdentity{done: make(chan struct{}), err: errors.New("no key")}
	close(src.done)

	s := New(1, testAddr(40000), src, testConfig(), r)

	require.Eventually(t, func() bool { return len(r.closeReasons()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{ReasonError}, r.closeReasons())
	assert.Equal(t, StateClosed, s.State())

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.errs, 1)
}

func TestSendValidation(t *testing.T) {
	s, _ := newSession(t, &recorder{})

	assert.Error(t, s.SendVoice(nil))
	assert.Error(t, s.SendText(""))
	assert.Error(t, s.SendText(string(make([]byte, 5000))))
}
