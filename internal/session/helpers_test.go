package session

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"relaychat/internal/bridge"
	rcerr "relaychat/internal/errors"
	"relaychat/internal/metrics"
	"relaychat/internal/transport"
	"relaychat/internal/wire"
	"relaychat/util"
)

const wait = 3 * time.Second

// ── fake crypto gateway ─────────────────────────────────────────────

// fakeGateway "encrypts" with base64 so frames are predictable.
type fakeGateway struct {
	mu         sync.Mutex
	peer       []byte
	rejectPeer bool
	encryptErr error
}

func (g *fakeGateway) OwnPublicKey() []byte { return []byte("abc123") }

func (g *fakeGateway) SetPeerPublicKey(k []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rejectPeer || len(k) == 0 {
		return errors.New("bad key")
	}
	g.peer = append([]byte(nil), k...)
	return nil
}

func (g *fakeGateway) Encrypt(text string) ([]byte, error) {
	if g.encryptErr != nil {
		return nil, g.encryptErr
	}
	return []byte(base64.StdEncoding.EncodeToString([]byte(text))), nil
}

func (g *fakeGateway) Decrypt(ct []byte) (string, error) {
	pt, err := base64.StdEncoding.DecodeString(string(ct))
	if err != nil {
		return "", &rcerr.DecryptError{Reason: "malformed payload", Err: err}
	}
	return string(pt), nil
}

// ── recording notifier ──────────────────────────────────────────────

type recorder struct {
	mu       sync.Mutex
	statuses []bridge.Status
	messages []string
	peers    int
}

func (r *recorder) OnStatusChanged(s bridge.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) OnMessageAppended(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func (r *recorder) OnPeerConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers++
}

func (r *recorder) count(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func (r *recorder) statusList() []bridge.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bridge.Status(nil), r.statuses...)
}

func (r *recorder) waitFor(t *testing.T, prefix string) {
	t.Helper()
	require.Eventually(t, func() bool { return r.count(prefix) > 0 }, wait, time.Millisecond,
		"no message starting with %q", prefix)
}

// ── fake relay ──────────────────────────────────────────────────────

type relay struct {
	ln    net.Listener
	conns chan net.Conn
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &relay{ln: ln, conns: make(chan net.Conn, 4)}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			r.conns <- c
		}
	}()
	return r
}

func (r *relay) port() int { return r.ln.Addr().(*net.TCPAddr).Port }

// peer is the relay's end of one client connection.
type peer struct {
	conn net.Conn
	rd   *bufio.Reader
}

func (r *relay) accept(t *testing.T) *peer {
	t.Helper()
	select {
	case c := <-r.conns:
		t.Cleanup(func() { c.Close() })
		return &peer{conn: c, rd: bufio.NewReader(c)}
	case <-time.After(wait):
		t.Fatal("relay: no connection")
		return nil
	}
}

// send writes one newline-delimited frame.
func (p *peer) send(t *testing.T, frame string) {
	t.Helper()
	_, err := p.conn.Write([]byte(frame + "\n"))
	require.NoError(t, err)
}

// push writes one frame and ignores failures; p may be nil or closed.
func (p *peer) push(frame string) {
	if p == nil {
		return
	}
	p.conn.Write([]byte(frame + "\n")) //nolint:errcheck
}

// expect reads one newline-delimited frame.
func (p *peer) expect(t *testing.T, want string) {
	t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck
	line, err := p.rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, want, strings.TrimRight(line, "\n"))
}

// drain reads everything until the client closes and returns it.
func (p *peer) drain(t *testing.T) string {
	t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck
	rest, err := io.ReadAll(p.rd)
	require.NoError(t, err, "client did not close the connection")
	return string(rest)
}

// ── session fixture ─────────────────────────────────────────────────

type fixture struct {
	s       *Session
	gw      *fakeGateway
	rec     *recorder
	clock   *clock.Mock
	metrics *metrics.Collector
	relay   *relay
}

func quietLogger() *util.Logger {
	l := util.NewLogger(int(util.LogDebug))
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T, framing wire.Framing) *fixture {
	return newFixtureWithDialer(t, framing, &transport.TCPDialer{Timeout: wait})
}

func newFixtureWithDialer(t *testing.T, framing wire.Framing, d transport.Dialer) *fixture {
	t.Helper()
	f := &fixture{
		gw:      &fakeGateway{},
		rec:     &recorder{},
		clock:   clock.NewMock(),
		metrics: metrics.New(),
		relay:   newRelay(t),
	}
	f.s = New(Options{
		Username: "alice",
		Dialer:   d,
		Gateway:  f.gw,
		Notifier: f.rec,
		Framing:  framing,
		Clock:    f.clock,
		Logger:   quietLogger(),
		Metrics:  f.metrics,
	})
	t.Cleanup(f.s.Disconnect)
	return f
}

// connect dials the fake relay and returns its end of the connection.
func (f *fixture) connect(t *testing.T) *peer {
	t.Helper()
	require.NoError(t, f.s.Connect(context.Background(), "127.0.0.1", f.relay.port()))
	return f.relay.accept(t)
}

// secure drives the handshake to completion.
func (f *fixture) secure(t *testing.T) *peer {
	t.Helper()
	p := f.connect(t)
	p.send(t, "REQUEST_PUBLIC_KEY")
	p.expect(t, "PUBLIC_KEY:abc123")
	p.send(t, "PEER_PUBLIC_KEY:xyz789")
	f.waitState(t, Secure)
	return p
}

func (f *fixture) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return f.s.State() == want }, wait, time.Millisecond,
		"state = %s, want %s", f.s.State(), want)
}

// checkInvariants asserts the socket/peer-key/timer invariants.
func checkInvariants(t *testing.T, snap Snapshot) {
	t.Helper()
	require.Equal(t, snap.State != Disconnected, snap.HasSocket, "socket presence in %s", snap.State)
	require.Equal(t, snap.State == Secure, snap.HasPeerKey, "peer key presence in %s", snap.State)
	if snap.TimerArmed {
		require.Equal(t, AwaitingPeerKey, snap.State, "timer armed outside the handshake")
	}
}

// ── failing-write dialer ────────────────────────────────────────────

type flakyConn struct {
	net.Conn
	failWrites *atomic.Bool
}

func (c flakyConn) Write(b []byte) (int, error) {
	if c.failWrites.Load() {
		return 0, errors.New("broken pipe")
	}
	return c.Conn.Write(b)
}

type flakyDialer struct {
	transport.TCPDialer
	failWrites atomic.Bool
}

func (d *flakyDialer) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	c, err := d.TCPDialer.Dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return flakyConn{Conn: c, failWrites: &d.failWrites}, nil
}

// blockingDialer never connects; it waits for ctx.
type blockingDialer struct {
	started chan struct{}
}

func (d *blockingDialer) Dial(ctx context.Context, _, _ string) (net.Conn, error) {
	close(d.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *blockingDialer) Close() error { return nil }
