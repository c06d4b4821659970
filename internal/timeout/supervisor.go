// Package timeout provides a single-shot deadline that can be re-armed
// and cancelled from any goroutine.
package timeout

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Supervisor holds at most one armed timer.  Arming replaces any previous
// timer; a replaced or cancelled timer never runs its callback, even if
// it had already fired and was waiting for the lock.
type Supervisor struct {
	clock clock.Clock

	mu    sync.Mutex
	timer *clock.Timer
	seq   uint64
}

// New returns a Supervisor driven by clk.  A nil clk uses the wall clock.
func New(clk clock.Clock) *Supervisor {
	if clk == nil {
		clk = clock.New()
	}
	return &Supervisor{clock: clk}
}

// Arm schedules onExpire to run once after d.  onExpire runs on the
// timer's goroutine with no Supervisor lock held.
func (s *Supervisor) Arm(d time.Duration, onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.seq++
	id := s.seq
	s.timer = s.clock.AfterFunc(d, func() {
		if !s.claim(id) {
			return
		}
		onExpire()
	})
}

// Cancel stops the armed timer.  It reports whether one was armed and is
// safe to call when none is.
func (s *Supervisor) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

// Armed reports whether a timer is pending.
func (s *Supervisor) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// claim consumes the timer identified by id if it is still current.
func (s *Supervisor) claim(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.seq || s.timer == nil {
		return false
	}
	s.timer = nil
	return true
}

func (s *Supervisor) stopLocked() bool {
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.seq++
	return true
}
