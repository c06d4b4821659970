// Package bridge is the boundary between the session engine and whatever
// presents it.  The engine only calls a Notifier; it never touches
// presentation state directly.
package bridge

import (
	"context"
	"sync"
)

// Status is the coarse connection state shown to the user.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Notifier receives engine events.  Implementations that are not safe for
// concurrent use should be wrapped with Queued.
type Notifier interface {
	OnStatusChanged(Status)
	OnMessageAppended(text string)
	OnPeerConnected()
}

// Nop discards every notification.
type Nop struct{}

func (Nop) OnStatusChanged(Status)   {}
func (Nop) OnMessageAppended(string) {}
func (Nop) OnPeerConnected()         {}

// Dispatcher is an unbounded FIFO of calls executed by whichever
// goroutine runs Run.  Post never blocks, so the receiver and timer
// goroutines can notify while holding the session lock.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{wake: make(chan struct{}, 1)}
}

// Post enqueues fn.  Calls posted after Close are dropped.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run executes posted calls in order until ctx is done or Close is
// called.  Calls still queued at Close are drained first.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		batch, closed := d.take()
		for _, fn := range batch {
			fn()
		}
		if closed {
			return nil
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}
	}
}

// Drain runs everything queued so far on the calling goroutine and
// returns how many calls ran.
func (d *Dispatcher) Drain() int {
	batch, _ := d.take()
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Close stops Run once the queue is empty.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) take() ([]func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	batch := d.queue
	d.queue = nil
	return batch, d.closed
}

// Queued returns a Notifier that forwards every call to n through d.
func Queued(d *Dispatcher, n Notifier) Notifier {
	return &queued{d: d, n: n}
}

type queued struct {
	d *Dispatcher
	n Notifier
}

func (q *queued) OnStatusChanged(s Status) {
	q.d.Post(func() { q.n.OnStatusChanged(s) })
}

func (q *queued) OnMessageAppended(text string) {
	q.d.Post(func() { q.n.OnMessageAppended(text) })
}

func (q *queued) OnPeerConnected() {
	q.d.Post(q.n.OnPeerConnected)
}
