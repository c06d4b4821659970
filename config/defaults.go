package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultHandshakeTimeout is how long a session waits for the peer's
	// public key after publishing its own.
	DefaultHandshakeTimeout = 60 * time.Second

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds a single frame write, including the
	// best-effort DISCONNECT on teardown.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultFraming matches the stock relay: one read is one frame.
	DefaultFraming = "raw"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKeepAliveInterval is the SSH keepalive interval.
	DefaultKeepAliveInterval = 30 * time.Second

	// DefaultAccountDBName is the sqlite file holding registered users.
	DefaultAccountDBName = "users.db"
)
