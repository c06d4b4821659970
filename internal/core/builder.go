package core

import (
	"fmt"
	"io"
	"os"

	"github.com/benbjohnson/clock"

	"relaychat/config"
	"relaychat/internal/bridge"
	"relaychat/internal/console"
	"relaychat/internal/cryptobox"
	"relaychat/internal/metrics"
	"relaychat/internal/session"
	"relaychat/internal/transport"
	"relaychat/internal/wire"
	"relaychat/tunnel"
	"relaychat/util"
)

// Deps are the process-level collaborators Build cannot create.
type Deps struct {
	Logger *util.Logger
	Stdin  io.Reader
	Stdout io.Writer
	Clock  clock.Clock

	// Prompt reads SSH secrets.  Nil disables interactive prompting.
	Prompt func(label string) ([]byte, error)
}

// Build constructs a ChatMode from the given configuration.  cfg must
// already be validated.
func Build(cfg *config.Config, d Deps) (*ChatMode, error) {
	if d.Logger == nil {
		d.Logger = util.NewLogger(0)
	}
	if d.Stdin == nil {
		d.Stdin = os.Stdin
	}
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Clock == nil {
		d.Clock = clock.New()
	}

	framing, err := wire.ParseFraming(cfg.Framing)
	if err != nil {
		return nil, err
	}

	dialer, err := buildDialer(cfg, d.Logger, d.Prompt)
	if err != nil {
		return nil, err
	}

	box, err := cryptobox.New()
	if err != nil {
		dialer.Close()
		return nil, err
	}

	stats := metrics.New()
	dispatcher := bridge.NewDispatcher()
	out := console.New(d.Stdout,
		console.WithTimestamps(d.Clock),
		console.WithPeerFingerprint(box.PeerFingerprint))

	sess := session.New(session.Options{
		Username:         cfg.Username,
		Dialer:           dialer,
		Gateway:          box,
		Notifier:         bridge.Queued(dispatcher, out),
		Framing:          framing,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ConnectTimeout:   cfg.ConnTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		Clock:            d.Clock,
		Logger:           d.Logger,
		Metrics:          stats,
	})

	return &ChatMode{
		Session:     sess,
		Box:         box,
		Dispatcher:  dispatcher,
		Console:     out,
		Metrics:     stats,
		Dialer:      dialer,
		Host:        cfg.Host,
		Port:        cfg.Port,
		AutoConnect: true,
		Stdin:       d.Stdin,
		Logger:      d.Logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config:
// plain TCP or an SSH tunnel, optionally wrapped in TLS.
func buildDialer(cfg *config.Config, logger *util.Logger, prompt func(string) ([]byte, error)) (transport.Dialer, error) {
	var base transport.Dialer
	if cfg.TunnelEnabled {
		base = transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.ConnTimeout,
			KeepAlive:     cfg.KeepAlive,
			Prompt:        prompt,
		}, logger)
	} else {
		base = &transport.TCPDialer{Timeout: cfg.ConnTimeout}
	}

	if !cfg.TLS {
		return base, nil
	}
	d, err := transport.NewTLSDialer(base, cfg.TLSCAFile, cfg.TLSServerName, cfg.TLSInsecure)
	if err != nil {
		base.Close()
		return nil, fmt.Errorf("tls: %w", err)
	}
	return d, nil
}
