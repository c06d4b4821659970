package util

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

// DefaultBufSize is the receive chunk size for a single frame read (4 KiB).
const DefaultBufSize = 4 * 1024

// WriteAll writes b to conn in full.  A positive timeout bounds the
// write with a deadline, which is cleared again afterwards.
func WriteAll(conn net.Conn, b []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout)) //nolint:errcheck
		defer conn.SetWriteDeadline(time.Time{})       //nolint:errcheck
	}
	total := 0
	for total < len(b) {
		n, err := conn.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// IsClosed reports whether err is what a read or write returns once the
// local side has closed the connection.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// IsRemoteClose reports whether err means the peer ended the stream:
// an orderly EOF or a reset.
func IsRemoteClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET)
}
