package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPassword holds the account password for non-interactive use.  It
// is read by the CLI and never stored in Config.
const EnvPassword = "RELAYCHAT_PASSWORD"

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the RELAYCHAT_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("90s") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Call it BEFORE applying CLI
// flags so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("RELAYCHAT_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("RELAYCHAT_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := os.Getenv("RELAYCHAT_USER"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("RELAYCHAT_FRAMING"); v != "" {
		cfg.Framing = v
	}
	if v := envDuration("RELAYCHAT_HANDSHAKE_TIMEOUT"); v > 0 {
		cfg.HandshakeTimeout = v
	}
	if v := envDuration("RELAYCHAT_TIMEOUT"); v > 0 {
		cfg.ConnTimeout = v
	}
	if v := envDuration("RELAYCHAT_WRITE_TIMEOUT"); v > 0 {
		cfg.WriteTimeout = v
	}

	// TLS
	if envBool("RELAYCHAT_TLS") {
		cfg.TLS = true
	}
	if v := os.Getenv("RELAYCHAT_TLS_CA"); v != "" {
		cfg.TLSCAFile = v
	}
	if v := os.Getenv("RELAYCHAT_TLS_SERVER_NAME"); v != "" {
		cfg.TLSServerName = v
	}

	// SSH tunnel
	if v := os.Getenv("RELAYCHAT_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("RELAYCHAT_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("RELAYCHAT_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("RELAYCHAT_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("RELAYCHAT_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("RELAYCHAT_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Accounts and output
	if v := os.Getenv("RELAYCHAT_DB"); v != "" {
		cfg.AccountDB = v
	}
	if v := envInt("RELAYCHAT_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if v := os.Getenv("RELAYCHAT_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
