// Package errors provides domain-specific error types for relaychat.
//
// These types carry structured context (operation, address, failure
// kind) so the session engine and the CLI can decide whether a failure
// tears the session down, is reported to the user, or is swallowed.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyConnected  = errors.New("session is already connected")
	ErrHandshakeTimeout  = errors.New("public key exchange timed out")
	ErrEmptyMessage      = errors.New("empty message")
	ErrNoPeerKey         = errors.New("no peer public key set")
	ErrTunnelClosed      = errors.New("tunnel is closed")
	ErrTimeout           = errors.New("operation timed out")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrHostKeyMismatch   = errors.New("host key mismatch")
	ErrUsernameTaken     = errors.New("username already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
)

// ── Connect ──────────────────────────────────────────────────────────

// ConnectReason classifies why a connection attempt failed.
type ConnectReason string

const (
	ReasonResolve ConnectReason = "resolve"
	ReasonRefused ConnectReason = "refused"
	ReasonTimeout ConnectReason = "timeout"
	ReasonBusy    ConnectReason = "busy"
	ReasonOther   ConnectReason = "other"
)

// ConnectError is returned when a session could not reach the relay.
// The session never enters a connected state when this is returned.
type ConnectError struct {
	Addr   string
	Reason ConnectReason
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s (%s): %v", e.Addr, e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// WrapConnect creates a ConnectError, classifying the dial failure.
func WrapConnect(addr string, err error) *ConnectError {
	return &ConnectError{Addr: addr, Reason: classifyConnect(err), Err: err}
}

func classifyConnect(err error) ConnectReason {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, ErrAlreadyConnected):
		return ReasonBusy
	case errors.As(err, &dnsErr):
		return ReasonResolve
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReasonRefused
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	return ReasonOther
}

// ── Send ─────────────────────────────────────────────────────────────

// SendKind distinguishes local refusals from transport failures.
type SendKind int

const (
	// SendNotSecure: the handshake has not completed.  Non-fatal.
	SendNotSecure SendKind = iota + 1
	// SendIoFailure: the write failed and the session was torn down.
	SendIoFailure
	// SendEncrypt: the crypto gateway refused the plaintext.  Non-fatal.
	SendEncrypt
)

func (k SendKind) String() string {
	switch k {
	case SendNotSecure:
		return "not secure"
	case SendIoFailure:
		return "i/o failure"
	case SendEncrypt:
		return "encrypt"
	default:
		return "unknown"
	}
}

// SendError is returned by a failed chat send.
type SendError struct {
	Kind SendKind
	Err  error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return "send: " + e.Kind.String()
	}
	return fmt.Sprintf("send: %s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsSendKind reports whether err is a SendError of the given kind.
func IsSendKind(err error, kind SendKind) bool {
	var se *SendError
	return errors.As(err, &se) && se.Kind == kind
}

// ── Receive ──────────────────────────────────────────────────────────

// ReceiveError is a read failure on the session socket.  Expected
// errors are caused by our own teardown and are never reported.
type ReceiveError struct {
	Expected bool
	Err      error
}

func (e *ReceiveError) Error() string {
	if e.Expected {
		return fmt.Sprintf("receive (expected): %v", e.Err)
	}
	return fmt.Sprintf("receive: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }

// ── Decrypt ──────────────────────────────────────────────────────────

// DecryptError marks a malformed or undecryptable payload.  It is a
// message-level warning; the session stays open.
type DecryptError struct {
	Reason string
	Err    error
}

func (e *DecryptError) Error() string {
	if e.Err == nil {
		return "decrypt: " + e.Reason
	}
	return fmt.Sprintf("decrypt: %s: %v", e.Reason, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

// ── Network / config ─────────────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "write", "read"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether a fresh attempt may succeed
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// IsRetryable reports whether a fresh, user-initiated attempt is worth
// making.  Nothing in relaychat retries on its own.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		switch ce.Reason {
		case ReasonRefused, ReasonTimeout:
			return true
		case ReasonBusy:
			return false
		}
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
