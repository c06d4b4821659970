package core

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"relaychat/internal/bridge"
	"relaychat/internal/console"
	"relaychat/internal/cryptobox"
	rcerr "relaychat/internal/errors"
	"relaychat/internal/metrics"
	"relaychat/internal/session"
	"relaychat/internal/transport"
	"relaychat/util"
)

// ChatMode connects one session to the relay and turns stdin lines into
// chat messages or in-chat commands.  Notifications are rendered on the
// dispatcher's goroutine, never on the session's.
type ChatMode struct {
	Session    *session.Session
	Box        *cryptobox.Box
	Dispatcher *bridge.Dispatcher
	Console    *console.Console
	Metrics    *metrics.Collector
	Dialer     transport.Dialer
	Host       string
	Port       int

	// AutoConnect dials the relay as soon as Run starts.
	AutoConnect bool

	// Stdin defaults to os.Stdin when nil.
	Stdin  io.Reader
	Logger *util.Logger
}

const helpText = `commands:
  /help        show this list
  /connect     connect to the relay
  /disconnect  close the connection
  /status      show session state and key fingerprints
  /stats       show traffic counters
  /quit        leave
anything else is sent to your friend`

func (m *ChatMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

// Run drives the chat until stdin ends, /quit, or ctx is cancelled.
// The session, the dialer and the key material are released on return.
func (m *ChatMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()
	defer m.Box.Close()

	ui := make(chan error, 1)
	go func() { ui <- m.Dispatcher.Run(ctx) }()
	defer func() {
		m.Session.Disconnect()
		m.Dispatcher.Close()
		<-ui
		// Run stops early on ctx; flush what the teardown posted.
		m.Dispatcher.Drain()
	}()

	m.say("your key %s (type /help for commands)", m.Box.Fingerprint())
	if m.AutoConnect {
		m.connect(ctx)
	}

	lines := make(chan string)
	go scanLines(ctx, m.stdin(), lines)

	for {
		select {
		case <-ctx.Done():
			m.Logger.Verbose("interrupted")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if m.handle(ctx, line) {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the user asked to quit.
func (m *ChatMode) handle(ctx context.Context, line string) bool {
	line = strings.TrimRight(line, "\r")
	cmd := strings.TrimSpace(line)
	switch {
	case cmd == "":
		return false
	case cmd == "/quit":
		return true
	case cmd == "/connect":
		m.connect(ctx)
	case cmd == "/disconnect":
		m.Session.Disconnect()
	case cmd == "/status":
		m.status()
	case cmd == "/stats":
		m.say("%s", m.Metrics.JSON())
	case cmd == "/help":
		m.say("%s", helpText)
	case strings.HasPrefix(cmd, "/"):
		m.say("unknown command %s (try /help)", cmd)
	default:
		if err := m.Session.SendChatMessage(line); err != nil {
			m.Logger.Debug("send: %v", err)
		}
	}
	return false
}

func (m *ChatMode) connect(ctx context.Context) {
	err := m.Session.Connect(ctx, m.Host, m.Port)
	if err == nil {
		return
	}
	m.Logger.Debug("connect: %v", err)
	switch {
	case rcerr.IsRetryable(err):
		m.say("relay unreachable, type /connect to try again")
	case rcerr.Is(err, rcerr.ErrAlreadyConnected):
		m.say("already connected (use /disconnect first)")
	}
}

func (m *ChatMode) status() {
	snap := m.Session.Snapshot()
	m.say("relay %s as %s: %s", util.FormatAddr(m.Host, m.Port), m.Session.Username(), snap.State)
	m.say("your key %s", m.Box.Fingerprint())
	if snap.HasPeerKey && m.Box.HasPeer() {
		m.say("peer key %s", m.Box.PeerFingerprint())
	}
}

// say posts a line to the presenter so it stays ordered with session
// notifications.
func (m *ChatMode) say(format string, args ...interface{}) {
	m.Dispatcher.Post(func() { m.Console.Printf(format, args...) })
}

// scanLines feeds out until r ends or ctx is cancelled.
func scanLines(ctx context.Context, r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
}
