package metrics

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestCollector_Connections(t *testing.T) {
	c := New()

	c.ConnectionOpened()
	c.ConnectionOpened()
	if c.ActiveConnections() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveConnections())
	}
	if c.TotalConnections() != 2 {
		t.Errorf("total = %d, want 2", c.TotalConnections())
	}

	c.ConnectionClosed()
	if c.ActiveConnections() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveConnections())
	}
	if c.TotalConnections() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalConnections())
	}
}

func TestCollector_Frames(t *testing.T) {
	c := New()

	c.FrameReceived(18)
	c.FrameSent(56)
	c.FrameReceived(100)

	if c.FramesIn() != 2 || c.FramesOut() != 1 {
		t.Errorf("frames = %d/%d, want 2/1", c.FramesIn(), c.FramesOut())
	}
	if c.TotalBytesIn() != 118 {
		t.Errorf("bytes in = %d, want 118", c.TotalBytesIn())
	}
	if c.TotalBytesOut() != 56 {
		t.Errorf("bytes out = %d, want 56", c.TotalBytesOut())
	}
}

func TestCollector_Handshakes(t *testing.T) {
	c := New()

	c.HandshakeCompleted()
	c.HandshakeTimedOut()
	c.HandshakeTimedOut()
	c.DecryptFailed()

	if c.Handshakes() != 1 {
		t.Errorf("handshakes = %d, want 1", c.Handshakes())
	}
	if c.HandshakeTimeouts() != 2 {
		t.Errorf("timeouts = %d, want 2", c.HandshakeTimeouts())
	}
	if c.DecryptFailures() != 1 {
		t.Errorf("decrypt failures = %d, want 1", c.DecryptFailures())
	}
	if c.Snapshot().LastSecure == "" {
		t.Error("expected last_secure timestamp")
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
	if got := c.Snapshot().LastErrorMessage; got != "second error" {
		t.Errorf("last error = %q", got)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.FrameSent(1)
				c.FrameReceived(2)
			}
		}()
	}
	wg.Wait()
	if c.FramesOut() != 8000 || c.TotalBytesIn() != 16000 {
		t.Errorf("frames out = %d, bytes in = %d", c.FramesOut(), c.TotalBytesIn())
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.ConnectionOpened()
	c.FrameSent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.ConnectionsActive != 1 {
		t.Errorf("JSON active = %d", snap.ConnectionsActive)
	}
	if snap.BytesOut != 42 || snap.FramesOut != 1 {
		t.Errorf("JSON out = %d bytes / %d frames", snap.BytesOut, snap.FramesOut)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.FrameReceived(100)
	c.FrameSent(100)
	c.HandshakeCompleted()
	c.HandshakeTimedOut()
	c.DecryptFailed()
	c.RecordError("test")

	if c.ActiveConnections() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.TotalBytesIn() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}

	snap := c.Snapshot()
	if snap.ConnectionsActive != 0 {
		t.Error("nil snapshot should be zero")
	}

	j := c.JSON()
	if j == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
