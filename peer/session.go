package peer

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/vock/crypto"
	"github.com/opd-ai/vock/jitter"
	"github.com/opd-ai/vock/limits"
	"github.com/opd-ai/vock/wire"
	"github.com/sirupsen/logrus"
)

type timerKind int

const (
	timerPing timerKind = iota
	timerDeath
	timerRetry
	timerConnect
	timerWait
	numTimers
)

// Session is the protocol state machine for one remote endpoint.
type Session struct {
	id      int
	addr    *net.UDPAddr
	cfg     Config
	handler Handler

	state atomic.Int32
	mode  atomic.Int32

	// mu guards the work queue and the fields readable from other
	// goroutines (roomID, fingerprint).
	mu          sync.Mutex
	queue       []func()
	stopped     bool
	roomID      string
	fingerprint string

	// inline serializes work posted after the loop has exited.
	inline sync.Mutex
	wake   chan struct{}

	// Owned by the session goroutine.
	identity       *crypto.Identity
	ephemeral      *crypto.Ephemeral
	secret         *crypto.SessionKey
	remotePublic   []byte
	seqs           [wire.NumGroups]uint64
	recSeqs        [wire.NumGroups]int64
	rseq           uint64
	outstanding    map[uint64]*outboundReliable
	seen           *seenSet
	connecting     bool
	heloSent       bool
	authorizing    bool
	connectTimeout time.Duration
	initQueue      []func()
	timers         [numTimers]*time.Timer
	jitter         *jitter.Buffer
}

// New creates a session for addr and starts its goroutine. The session
// stays in StateInit until identity resolves.
func New(id int, addr *net.UDPAddr, identity IdentitySource, cfg Config, handler Handler) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:             id,
		addr:           addr,
		cfg:            cfg,
		handler:        handler,
		wake:           make(chan struct{}, 1),
		outstanding:    make(map[uint64]*outboundReliable),
		seen:           newSeenSet(cfg.ReliableWindow, cfg.TimeProvider),
		connectTimeout: cfg.ConnectTimeout,
	}
	for g := range s.recSeqs {
		s.recSeqs[g] = -1
	}
	s.jitter = jitter.New(cfg.JitterDelay, func(p *wire.Packet) {
		s.post(func() { s.process(p) })
	})

	go s.run()
	go func() {
		<-identity.Done()
		id, err := identity.Result()
		s.post(func() { s.onIdentity(id, err) })
	}()
	return s
}

// ID returns the process-local session id.
func (s *Session) ID() int {
	return s.id
}

// Addr returns the remote endpoint.
func (s *Session) Addr() *net.UDPAddr {
	return s.addr
}

// State returns the current protocol state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Mode returns the current delivery mode.
func (s *Session) Mode() Mode {
	return Mode(s.mode.Load())
}

// RoomID returns the room id, or "" if none was exchanged yet.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Fingerprint returns the remote identity fingerprint, or "" before the
// first helo.
func (s *Session) Fingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint
}

// Connect starts the handshake for roomID. It is queued while the identity
// is loading and ignored while a handshake is already running.
func (s *Session) Connect(roomID string) {
	s.post(func() { s.connect(roomID) })
}

// Receive hands an inbound packet to the session. relayed marks packets
// that arrived through the rendezvous server.
func (s *Session) Receive(packet *wire.Packet, relayed bool) {
	s.post(func() { s.receive(packet, relayed) })
}

// SendVoice sends an encoded voice frame. Frames are dropped unless the
// session is accepted.
func (s *Session) SendVoice(frame []byte) error {
	if err := limits.ValidateVoiceFrame(frame); err != nil {
		return err
	}
	data := append([]byte(nil), frame...)
	s.post(func() {
		if s.State() != StateAccepted {
			return
		}
		s.write(wire.GroupVoice, &wire.Packet{Type: wire.TypeVoice, Data: data})
	})
	return nil
}

// SendText sends a text message over the reliable sub-channel. Messages
// are dropped unless the session is accepted.
func (s *Session) SendText(text string) error {
	if err := limits.ValidateText(text); err != nil {
		return err
	}
	s.post(func() {
		if s.State() != StateAccepted {
			return
		}
		s.sendReliable(wire.GroupText, &wire.Packet{Type: wire.TypeText, Text: text})
	})
	return nil
}

// Close terminates the session, telling the peer reason.
func (s *Session) Close(reason string) {
	s.post(func() {
		if s.State() == StateClosed {
			return
		}
		s.terminate(reason, reason)
	})
}

// Reset force-closes the session with reason "reset". It is idempotent.
func (s *Session) Reset() {
	s.post(s.reset)
}

// post queues fn for the session goroutine. Once the goroutine has exited
// (after close), fn runs on the caller.
func (s *Session) post(fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.inline.Lock()
		defer s.inline.Unlock()
		fn()
		return
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) run() {
	for range s.wake {
		for {
			s.mu.Lock()
			work := s.queue
			s.queue = nil
			if len(work) == 0 && s.State() == StateClosed {
				s.stopped = true
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()

			if len(work) == 0 {
				break
			}
			for _, fn := range work {
				fn()
			}
		}
	}
}

// schedule arms timer kind, replacing any pending one. Expiries of
// replaced or cancelled timers, and any expiry after close, are ignored.
func (s *Session) schedule(kind timerKind, d time.Duration, fn func()) {
	s.cancel(kind)
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.post(func() {
			if s.timers[kind] != t || s.State() == StateClosed {
				return
			}
			s.timers[kind] = nil
			fn()
		})
	})
	s.timers[kind] = t
}

func (s *Session) cancel(kind timerKind) {
	if t := s.timers[kind]; t != nil {
		t.Stop()
		s.timers[kind] = nil
	}
}

func (s *Session) setRoomID(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
}

func (s *Session) setFingerprint(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = fp
}

func (s *Session) setMode(m Mode) {
	if Mode(s.mode.Swap(int32(m))) != m {
		logrus.WithFields(logrus.Fields{
			"function": "Session.setMode",
			"session":  s.id,
			"peer":     s.addr.String(),
			"mode":     m.String(),
		}).Info("Session delivery mode changed")
	}
}

func (s *Session) log(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"session":  s.id,
		"peer":     s.addr.String(),
	})
}

func (s *Session) onIdentity(id *crypto.Identity, err error) {
	if s.State() != StateInit {
		return
	}
	if err == nil {
		s.ephemeral, err = crypto.NewEphemeral()
	}
	if err != nil {
		s.handler.OnError(s, err)
		s.terminate(ReasonError, ReasonError)
		return
	}

	s.identity = id
	s.state.Store(int32(StateIdle))
	// A session nobody talks to must not live forever.
	s.armDeath()
	s.log("Session.onIdentity").Debug("Identity ready")

	queued := s.initQueue
	s.initQueue = nil
	for _, fn := range queued {
		fn()
	}
}

// write stamps packet with group and the next sequence number, encrypts
// it when a session key exists, and hands it to the handler.
func (s *Session) write(group wire.Group, packet *wire.Packet) *wire.Packet {
	out, err := s.seal(group, packet)
	if err != nil {
		s.handler.OnError(s, err)
		return nil
	}
	s.handler.OnData(s, out)
	return out
}

func (s *Session) seal(group wire.Group, packet *wire.Packet) (*wire.Packet, error) {
	packet.Group = group
	packet.Seq = s.seqs[group]
	s.seqs[group]++

	if s.secret == nil || group == wire.GroupHandshake {
		return packet, nil
	}

	plain, err := packet.Marshal()
	if err != nil {
		return nil, err
	}
	box, err := crypto.Seal(s.secret, plain)
	if err != nil {
		return nil, err
	}
	return &wire.Packet{Box: box}, nil
}

// terminate moves to StateClosed, telling the peer reason on the wire and
// emitting close(emit). Every timer is cancelled.
func (s *Session) terminate(wireReason, emit string) {
	s.write(wire.GroupHandshake, &wire.Packet{Type: wire.TypeClose, Reason: wireReason})

	s.state.Store(int32(StateClosed))
	for k := range s.timers {
		s.cancel(timerKind(k))
	}
	for rseq, o := range s.outstanding {
		o.timer.Stop()
		delete(s.outstanding, rseq)
	}
	s.jitter.Stop()
	s.ephemeral.Wipe()
	if s.secret != nil {
		crypto.ZeroBytes(s.secret[:])
		s.secret = nil
	}
	s.connecting = false
	s.initQueue = nil

	s.log("Session.terminate").WithField("reason", emit).Info("Session closed")
	s.handler.OnClose(s, emit)
}

func (s *Session) reset() {
	if s.State() == StateClosed {
		return
	}
	s.terminate(ReasonReset, ReasonReset)
}
