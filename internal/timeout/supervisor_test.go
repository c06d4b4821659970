package timeout

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func TestSupervisor_Fires(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock)

	var fired atomic.Int32
	s.Arm(60*time.Second, func() { fired.Add(1) })
	require.True(t, s.Armed())

	mock.Add(59 * time.Second)
	require.Zero(t, fired.Load())

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, time.Millisecond)
	require.False(t, s.Armed())

	// One shot only.
	mock.Add(5 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	require.EqualValues(t, 1, fired.Load())
}

func TestSupervisor_Cancel(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock)

	require.False(t, s.Cancel(), "cancel with nothing armed")

	var fired atomic.Int32
	s.Arm(time.Second, func() { fired.Add(1) })
	require.True(t, s.Cancel())
	require.False(t, s.Armed())

	mock.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	require.Zero(t, fired.Load())
}

func TestSupervisor_RearmReplaces(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock)

	var first, second atomic.Int32
	s.Arm(10*time.Second, func() { first.Add(1) })
	mock.Add(5 * time.Second)
	s.Arm(10*time.Second, func() { second.Add(1) })

	mock.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	require.Zero(t, first.Load())
	require.Zero(t, second.Load())

	mock.Add(5 * time.Second)
	require.Eventually(t, func() bool { return second.Load() == 1 }, waitFor, time.Millisecond)
	require.Zero(t, first.Load())
}

func TestSupervisor_StaleExpiryIgnored(t *testing.T) {
	s := New(clock.NewMock())

	var fired atomic.Int32
	s.Arm(time.Second, func() { fired.Add(1) })

	// Simulate a callback that fired but lost the race to Cancel.
	s.mu.Lock()
	stale := s.seq
	s.mu.Unlock()
	s.Cancel()
	require.False(t, s.claim(stale))
	require.Zero(t, fired.Load())
}

func TestSupervisor_CallbackMayUseSupervisor(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock)

	done := make(chan bool, 1)
	s.Arm(time.Second, func() { done <- s.Cancel() })
	mock.Add(time.Second)

	select {
	case wasArmed := <-done:
		require.False(t, wasArmed)
	case <-time.After(waitFor):
		t.Fatal("callback did not run")
	}
}

func TestSupervisor_ConcurrentCancelAndExpiry(t *testing.T) {
	for i := 0; i < 50; i++ {
		mock := clock.NewMock()
		s := New(mock)

		var fired atomic.Int32
		s.Arm(time.Second, func() { fired.Add(1) })

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); mock.Add(time.Second) }()
		go func() { defer wg.Done(); s.Cancel() }()
		wg.Wait()

		time.Sleep(time.Millisecond)
		require.LessOrEqual(t, fired.Load(), int32(1))
		require.False(t, s.Armed())
	}
}

func TestNew_NilClock(t *testing.T) {
	s := New(nil)
	done := make(chan struct{})
	s.Arm(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("wall-clock timer did not fire")
	}
}
