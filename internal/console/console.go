// Package console is the line-oriented terminal presenter.  It renders
// bridge notifications as text on an io.Writer.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/benbjohnson/clock"

	"relaychat/internal/bridge"
)

// Console implements bridge.Notifier.  It is safe for concurrent use
// but is meant to be driven from a bridge.Dispatcher.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	clock  clock.Clock
	stamps bool
	status bridge.Status
	peerFP func() string
}

var _ bridge.Notifier = (*Console)(nil)

// Option configures a Console.
type Option func(*Console)

// WithTimestamps prefixes every chat line with the time from clk.
func WithTimestamps(clk clock.Clock) Option {
	return func(c *Console) {
		c.clock = clk
		c.stamps = true
	}
}

// WithPeerFingerprint prints fp() when the peer's key is accepted.
func WithPeerFingerprint(fp func() string) Option {
	return func(c *Console) { c.peerFP = fp }
}

// New returns a Console writing to w.
func New(w io.Writer, opts ...Option) *Console {
	c := &Console{w: w, clock: clock.New()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnStatusChanged records s and prints a status line.
func (c *Console) OnStatusChanged(s bridge.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
	fmt.Fprintf(c.w, "-- %s --\n", s)
}

// OnMessageAppended prints one chat or system line.
func (c *Console) OnMessageAppended(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stamps {
		fmt.Fprintf(c.w, "[%s] %s\n", c.clock.Now().UTC().Format("15:04:05"), text)
		return
	}
	fmt.Fprintln(c.w, text)
}

// OnPeerConnected prints the peer's key fingerprint when one is known.
func (c *Console) OnPeerConnected() {
	if c.peerFP == nil {
		return
	}
	fp := c.peerFP()
	if fp == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "-- peer key %s --\n", fp)
}

// Status returns the last status shown.
func (c *Console) Status() bridge.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Printf writes a free-form line, used for command output.
func (c *Console) Printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}
