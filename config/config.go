// Package config defines the runtime configuration for relaychat and
// provides helpers for parsing tunnel specifications.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	rcerr "relaychat/internal/errors"
	"relaychat/internal/wire"
)

// Config holds every tuneable for a chat client.
type Config struct {
	// ── Relay ────────────────────────────────────────────────────────
	Host             string
	Port             int
	Username         string
	Framing          string // "raw" or "line"
	HandshakeTimeout time.Duration
	ConnTimeout      time.Duration
	WriteTimeout     time.Duration

	// ── TLS ──────────────────────────────────────────────────────────
	TLS           bool
	TLSCAFile     string
	TLSServerName string
	TLSInsecure   bool

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
	KeepAlive      time.Duration

	// ── Accounts ─────────────────────────────────────────────────────
	AccountDB string

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	LogFile string
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Framing:          DefaultFraming,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ConnTimeout:      DefaultConnTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		KeepAlive:        DefaultKeepAliveInterval,
		AccountDB:        DefaultAccountDB(),
		Verbose:          1,
	}
}

// DefaultAccountDB returns the per-user account database path, falling
// back to the working directory.
func DefaultAccountDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultAccountDBName
	}
	return filepath.Join(dir, "relaychat", DefaultAccountDBName)
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q, expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec into the Tunnel* fields.  The SSH
// user defaults to $USER.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &rcerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	c.TunnelEnabled = true
	c.TunnelUser, c.TunnelHost, c.TunnelPort = user, host, port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration for a chat session is
// internally consistent.  Failures are *errors.ConfigError with hints.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &rcerr.ConfigError{
			Field:   "host",
			Message: "relay host is required",
			Hint:    "relaychat chat <host> <port>",
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &rcerr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "must be between 1 and 65535",
		}
	}
	if strings.TrimSpace(c.Username) == "" {
		return &rcerr.ConfigError{
			Field:   "user",
			Message: "username is required",
			Hint:    "pass --user NAME or set RELAYCHAT_USER",
		}
	}
	if _, err := wire.ParseFraming(c.Framing); err != nil {
		return &rcerr.ConfigError{
			Field:   "framing",
			Value:   c.Framing,
			Message: err.Error(),
			Hint:    "use \"raw\" for the stock relay, \"line\" for a newline-delimited relay",
		}
	}
	if c.HandshakeTimeout <= 0 {
		return &rcerr.ConfigError{
			Field:   "handshake-timeout",
			Value:   c.HandshakeTimeout,
			Message: "must be positive",
		}
	}
	if c.TLSCAFile != "" && !c.TLS {
		return &rcerr.ConfigError{
			Field:   "tls-ca",
			Value:   c.TLSCAFile,
			Message: "has no effect without --tls",
			Hint:    "add --tls",
		}
	}
	if c.TLSInsecure && c.TLSCAFile != "" {
		return &rcerr.ConfigError{
			Field:   "tls-insecure",
			Message: "conflicts with --tls-ca",
		}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &rcerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: "tunnel host is required",
			Hint:    "use -T user@host[:port]",
		}
	}
	if (c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent) && !c.TunnelEnabled {
		return &rcerr.ConfigError{
			Field:   "tunnel",
			Message: "SSH authentication flags given without a tunnel",
			Hint:    "add -T user@host[:port]",
		}
	}
	if c.AccountDB == "" {
		return &rcerr.ConfigError{Field: "db", Message: "account database path is required"}
	}
	return nil
}
