// Package session is the client-side secure-session engine: one relay
// connection, its key-exchange state machine, and the receiver goroutine
// that feeds it.
//
// A Session owns its socket.  Every socket write, every state transition
// and the teardown sequence run under the Session's single mutex, so a
// write can never interleave with a close and concurrent teardown
// triggers (user, handshake timer, receiver) collapse into one.
//
// The engine never talks to the presentation layer or to crypto code
// directly.  It calls a bridge.Notifier, which must not block or call
// back into the Session (wrap it with bridge.Queued), and a
// cryptobox.Gateway.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"relaychat/internal/bridge"
	"relaychat/internal/cryptobox"
	rcerr "relaychat/internal/errors"
	"relaychat/internal/metrics"
	"relaychat/internal/timeout"
	"relaychat/internal/transport"
	"relaychat/internal/wire"
	"relaychat/util"
)

// DefaultHandshakeTimeout bounds the wait for the peer's public key.
const DefaultHandshakeTimeout = 60 * time.Second

// State is the session's position in the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	AwaitingPeerKey
	Secure
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case AwaitingPeerKey:
		return "awaiting-peer-key"
	case Secure:
		return "secure"
	default:
		return "unknown"
	}
}

// uiStatus maps an engine state onto the coarse status shown to users.
func (s State) uiStatus() bridge.Status {
	switch s {
	case Connecting, Connected, AwaitingPeerKey:
		return bridge.Connecting
	case Secure:
		return bridge.Connected
	default:
		return bridge.Disconnected
	}
}

// Options configures a Session.  Username, Dialer and Gateway are
// required.
type Options struct {
	Username string
	Dialer   transport.Dialer
	Gateway  cryptobox.Gateway
	Notifier bridge.Notifier
	Framing  wire.Framing

	// HandshakeTimeout defaults to DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
	// ConnectTimeout bounds the dial; zero leaves it to ctx.
	ConnectTimeout time.Duration
	// WriteTimeout bounds every socket write; zero means no deadline.
	WriteTimeout time.Duration

	Clock   clock.Clock
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Session is one client's connection to the relay.
type Session struct {
	id       string
	username string
	dialer   transport.Dialer
	gateway  cryptobox.Gateway
	notify   bridge.Notifier
	framing  wire.Framing
	logger   *util.Logger
	metrics  *metrics.Collector

	handshakeTimeout time.Duration
	connectTimeout   time.Duration
	writeTimeout     time.Duration
	deadline         *timeout.Supervisor

	mu         sync.Mutex
	state      State
	conn       net.Conn
	framer     wire.Framer
	peerKey    []byte
	gen        uint64        // identifies the current connection
	armed      uint64        // identifies the current handshake deadline
	done       chan struct{} // closed when the current receiver exits
	cancelDial context.CancelFunc
	dialAbort  bool
}

// New returns a Disconnected session.
func New(opts Options) *Session {
	s := &Session{
		id:               uuid.NewString(),
		username:         opts.Username,
		dialer:           opts.Dialer,
		gateway:          opts.Gateway,
		notify:           opts.Notifier,
		framing:          opts.Framing,
		metrics:          opts.Metrics,
		handshakeTimeout: opts.HandshakeTimeout,
		connectTimeout:   opts.ConnectTimeout,
		writeTimeout:     opts.WriteTimeout,
		deadline:         timeout.New(opts.Clock),
	}
	if s.notify == nil {
		s.notify = bridge.Nop{}
	}
	if s.framing == "" {
		s.framing = wire.FramingRaw
	}
	if s.handshakeTimeout <= 0 {
		s.handshakeTimeout = DefaultHandshakeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = util.NewLogger(int(util.LogQuiet))
	}
	s.logger = logger.With("session", s.id[:8])
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Username returns the name the session was created for.
func (s *Session) Username() string { return s.username }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot is a consistent view of the session's invariant-bearing
// fields.
type Snapshot struct {
	State       State
	HasSocket   bool
	HasPeerKey  bool
	TimerArmed  bool
	Generation  uint64
	PeerKeySize int
}

// Snapshot captures the session under its lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:       s.state,
		HasSocket:   s.conn != nil,
		HasPeerKey:  s.peerKey != nil,
		TimerArmed:  s.deadline.Armed(),
		Generation:  s.gen,
		PeerKeySize: len(s.peerKey),
	}
}

// PeerKey returns a copy of the registered peer key, or nil.
func (s *Session) PeerKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.peerKey)
}

// ── Connection Manager ──────────────────────────────────────────────

// Connect dials the relay and starts the receiver.  It fails with a
// *errors.ConnectError and leaves the session Disconnected when the relay
// cannot be reached, or when the session is not Disconnected.
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	addr := util.FormatAddr(host, port)

	s.mu.Lock()
	if s.state != Disconnected || s.cancelDial != nil {
		s.mu.Unlock()
		return rcerr.WrapConnect(addr, rcerr.ErrAlreadyConnected)
	}
	var (
		dialCtx context.Context
		cancel  context.CancelFunc
	)
	if s.connectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, s.connectTimeout)
	} else {
		dialCtx, cancel = context.WithCancel(ctx)
	}
	s.cancelDial = cancel
	s.dialAbort = false
	s.mu.Unlock()

	s.logger.Verbose("dialing %s", addr)
	conn, err := s.dialer.Dial(dialCtx, "tcp", addr)

	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()
	s.cancelDial = nil
	if err == nil && s.dialAbort {
		conn.Close()
		err = context.Canceled
	}
	if err != nil {
		cerr := rcerr.WrapConnect(addr, err)
		s.logger.Warn("connect failed: %v", cerr)
		s.metrics.RecordError(cerr.Error())
		s.notify.OnMessageAppended(fmt.Sprintf("Failed to connect to server: %v", err))
		s.notify.OnStatusChanged(bridge.Disconnected)
		return cerr
	}

	s.gen++
	s.conn = conn
	s.framer = wire.NewFramer(s.framing, conn)
	s.setStateLocked(Connecting)
	s.done = make(chan struct{})
	go s.receive(s.gen, s.framer, s.done)
	s.setStateLocked(Connected)

	s.metrics.ConnectionOpened()
	s.logger.Info("connected to %s as %s", addr, s.username)
	s.notify.OnMessageAppended(fmt.Sprintf("Connected to server as %s...", s.username))
	s.notify.OnMessageAppended("Waiting for your friend's connection...")
	return nil
}

// Disconnect tears the session down: best-effort DISCONNECT frame, close,
// cancel the handshake timer, Disconnected, wait for the receiver.  It is
// a no-op when already Disconnected, and aborts an in-flight Connect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.cancelDial != nil {
		s.dialAbort = true
		s.cancelDial()
	}
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	done := s.done
	s.notify.OnMessageAppended("Connection closed.")
	s.teardownLocked(true)
	s.mu.Unlock()

	// The receiver unblocks once the socket is closed.
	<-done
}

// SendChatMessage encrypts text for the peer and writes it as one chat
// payload frame.  It fails with SendError{NotSecure} unless the session
// is Secure, SendError{Encrypt} when the gateway refuses (the session
// stays open), and SendError{IoFailure} when the write fails (the
// session is torn down).
func (s *Session) SendChatMessage(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Secure {
		s.notify.OnMessageAppended("No peer public key set or empty message.")
		return &rcerr.SendError{Kind: rcerr.SendNotSecure, Err: rcerr.ErrNoPeerKey}
	}
	if text == "" {
		s.notify.OnMessageAppended("No peer public key set or empty message.")
		return rcerr.ErrEmptyMessage
	}

	ct, err := s.gateway.Encrypt(text)
	if err != nil {
		s.logger.Warn("encrypt failed: %v", err)
		s.notify.OnMessageAppended(fmt.Sprintf("Failed to send message: %v", err))
		return &rcerr.SendError{Kind: rcerr.SendEncrypt, Err: err}
	}

	if err := s.writeLocked(wire.ChatPayload(ct)); err != nil {
		s.logger.Warn("send failed: %v", err)
		s.metrics.RecordError(err.Error())
		s.notify.OnMessageAppended(fmt.Sprintf("Failed to send message: %v", err))
		s.teardownLocked(false)
		return &rcerr.SendError{Kind: rcerr.SendIoFailure, Err: err}
	}
	s.notify.OnMessageAppended("You: " + text)
	return nil
}

// ── Receiver Loop ───────────────────────────────────────────────────

// receive is the one goroutine bound to connection gen.  It exits when
// the read fails or when a dispatch finds the connection gone.
func (s *Session) receive(gen uint64, fr wire.Framer, done chan struct{}) {
	defer close(done)
	for {
		raw, err := fr.ReadFrame()
		if err != nil {
			s.readFailed(gen, err)
			return
		}
		s.metrics.FrameReceived(len(raw))
		if !s.onFrame(gen, wire.Decode(raw)) {
			return
		}
	}
}

// readFailed classifies a receive error.  Anything after our own
// teardown is expected and silent.  An orderly EOF tears down without a
// DISCONNECT, as does a reset; any other failure is reported and tears
// down with one.
func (s *Session) readFailed(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state == Disconnected {
		s.logger.Debug("%v", &rcerr.ReceiveError{Expected: true, Err: err})
		return
	}

	rerr := &rcerr.ReceiveError{Err: err}
	switch {
	case errors.Is(err, io.EOF):
		s.logger.Info("relay closed the connection")
		s.notify.OnMessageAppended("Disconnected from server.")
		s.teardownLocked(false)
	case util.IsRemoteClose(err), util.IsClosed(err):
		s.logger.Warn("%v", rerr)
		s.metrics.RecordError(rerr.Error())
		s.notify.OnMessageAppended(fmt.Sprintf("Disconnected from server: %v", err))
		s.teardownLocked(false)
	default:
		s.logger.Warn("%v", rerr)
		s.metrics.RecordError(rerr.Error())
		s.notify.OnMessageAppended(fmt.Sprintf("Socket error: %v", err))
		s.teardownLocked(true)
	}
}

// onFrame applies one received frame.  It reports whether the receiver
// should keep reading.
func (s *Session) onFrame(gen uint64, f wire.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state == Disconnected {
		return false
	}
	s.logger.Debug("frame %s (%d bytes) in state %s", f.Kind, len(f.Data), s.state)

	switch f.Kind {
	case wire.KindRequestPublicKey:
		return s.publishKeyLocked(gen)

	case wire.KindPublicKey:
		s.logger.Verbose("ignoring unexpected PUBLIC_KEY frame")
		return true

	case wire.KindPeerPublicKey:
		return s.acceptPeerKeyLocked(f.Data)

	case wire.KindDisconnect:
		s.logger.Info("relay sent DISCONNECT")
		s.notify.OnMessageAppended("Disconnected from server.")
		s.teardownLocked(false)
		return false

	default:
		s.deliverLocked(f.Data)
		return true
	}
}

// publishKeyLocked answers REQUEST_PUBLIC_KEY and starts the handshake
// deadline.  A repeated request (the peer rejoined) restarts the exchange.
func (s *Session) publishKeyLocked(gen uint64) bool {
	if err := s.writeLocked(wire.PublicKey(s.gateway.OwnPublicKey())); err != nil {
		s.logger.Warn("sending public key: %v", err)
		s.metrics.RecordError(err.Error())
		s.notify.OnMessageAppended(fmt.Sprintf("Socket error: %v", err))
		s.teardownLocked(false)
		return false
	}
	s.peerKey = nil
	s.setStateLocked(AwaitingPeerKey)
	s.armed++
	armed := s.armed
	s.deadline.Arm(s.handshakeTimeout, func() { s.handshakeExpired(gen, armed) })
	return true
}

// acceptPeerKeyLocked completes the handshake.  PEER_PUBLIC_KEY is
// honoured in any connected state; a key the gateway rejects fails the
// handshake.
func (s *Session) acceptPeerKeyLocked(data []byte) bool {
	s.armed++
	s.deadline.Cancel()

	key := bytes.TrimSpace(data)
	if err := s.gateway.SetPeerPublicKey(key); err != nil {
		s.logger.Warn("rejecting peer public key: %v", err)
		s.metrics.RecordError(err.Error())
		s.notify.OnMessageAppended(fmt.Sprintf("Invalid peer public key: %v", err))
		s.teardownLocked(true)
		return false
	}

	if s.state != AwaitingPeerKey {
		s.logger.Verbose("peer key arrived in state %s", s.state)
	}
	s.peerKey = bytes.Clone(key)
	s.setStateLocked(Secure)
	s.metrics.HandshakeCompleted()
	s.notify.OnPeerConnected()
	s.notify.OnMessageAppended("Your friend is now connected.")
	return true
}

// deliverLocked decrypts a chat payload.  A failure is reported and the
// session stays open.
func (s *Session) deliverLocked(ct []byte) {
	if s.state != Secure {
		s.logger.Verbose("chat payload before handshake completed")
	}
	pt, err := s.gateway.Decrypt(bytes.TrimSpace(ct))
	if err != nil {
		s.metrics.DecryptFailed()
		s.logger.Warn("%v", err)
		s.notify.OnMessageAppended(fmt.Sprintf("Failed to decrypt message: %v", err))
		return
	}
	s.notify.OnMessageAppended("Peer: " + pt)
}

// ── Timeout Supervisor callback ─────────────────────────────────────

// handshakeExpired runs on the timer goroutine.  The supervisor may hand
// over an expiry that was superseded while it waited for s.mu, so the
// deadline token is checked again under the lock.
func (s *Session) handshakeExpired(gen, armed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || armed != s.armed || s.state != AwaitingPeerKey {
		return
	}
	s.logger.Warn("%v after %s", rcerr.ErrHandshakeTimeout, s.handshakeTimeout)
	s.metrics.HandshakeTimedOut()
	s.notify.OnMessageAppended("Public key exchange timed out. Disconnecting...")
	s.teardownLocked(true)
}

// ── locked helpers ──────────────────────────────────────────────────

// writeLocked renders f through the framer and writes it in full.
func (s *Session) writeLocked(f wire.Frame) error {
	if s.conn == nil {
		return rcerr.ErrNotConnected
	}
	b := s.framer.Marshal(f)
	n, err := util.WriteAll(s.conn, b, s.writeTimeout)
	if n > 0 {
		s.metrics.FrameSent(n)
	}
	return err
}

// teardownLocked is the single path back to Disconnected.  Only the
// first caller per connection does anything.
func (s *Session) teardownLocked(sendDisconnect bool) {
	if s.state == Disconnected {
		return
	}
	if sendDisconnect {
		if err := s.writeLocked(wire.Disconnect()); err != nil {
			s.logger.Debug("DISCONNECT not delivered: %v", err)
		}
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("close: %v", err)
	}
	s.armed++
	s.deadline.Cancel()
	s.conn = nil
	s.framer = nil
	s.peerKey = nil
	s.setStateLocked(Disconnected)
	s.metrics.ConnectionClosed()
}

// setStateLocked records a transition and tells the bridge when the
// user-visible status changes.
func (s *Session) setStateLocked(next State) {
	prev := s.state
	if prev == next {
		return
	}
	s.state = next
	s.logger.Verbose("state %s -> %s", prev, next)
	if prev.uiStatus() != next.uiStatus() {
		s.notify.OnStatusChanged(next.uiStatus())
	}
}
