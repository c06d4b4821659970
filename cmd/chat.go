package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"relaychat/config"
	"relaychat/internal/core"
	rcerr "relaychat/internal/errors"
	"relaychat/util"
)

func chatCmd(s streams, cfg *config.Config) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "chat [flags] <host> <port>",
		Short: "Log in and chat with your friend through the relay",
		Example: `  relaychat chat -u alice relay.example.com 12345
  relaychat chat -u alice --tls --tls-ca ca.pem relay.example.com 12345
  relaychat chat -u alice -T admin@bastion 10.0.0.5 12345`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyVerbosity(cmd, cfg)

			// ── positional arguments ─────────────────────────────
			if err := parsePositional(cfg, args); err != nil {
				return err
			}

			// ── tunnel spec ──────────────────────────────────────
			if err := cfg.ApplyTunnelSpec(); err != nil {
				return err
			}

			// ── validate ─────────────────────────────────────────
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cfg, s)
			defer logger.Sync() //nolint:errcheck

			// ── login ────────────────────────────────────────────
			if err := login(cmd, s, cfg); err != nil {
				return err
			}
			logger.Verbose("logged in as %s", cfg.Username)

			if dryRun {
				fmt.Fprintf(s.out, "ok: %s@%s (%s framing)\n",
					cfg.Username, util.FormatAddr(cfg.Host, cfg.Port), cfg.Framing)
				return nil
			}

			// ── build and run ────────────────────────────────────
			mode, err := core.Build(cfg, core.Deps{
				Logger: logger,
				Stdin:  s.in,
				Stdout: s.out,
				Prompt: sshPrompt(s),
			})
			if err != nil {
				return err
			}
			return mode.Run(cmd.Context())
		},
	}

	fs := cmd.Flags()

	// ── relay ────────────────────────────────────────────────────
	fs.StringVarP(&cfg.Username, "user", "u", cfg.Username, "Account name")
	fs.StringVar(&cfg.Framing, "framing", cfg.Framing, `Frame boundaries: "raw" (one read per frame) or "line"`)
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Wait this long for the friend's key")
	fs.DurationVarP(&cfg.ConnTimeout, "timeout", "w", cfg.ConnTimeout, "Connect timeout")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Per-frame write timeout")

	// ── TLS ──────────────────────────────────────────────────────
	fs.BoolVar(&cfg.TLS, "tls", cfg.TLS, "Wrap the relay connection in TLS")
	fs.StringVar(&cfg.TLSCAFile, "tls-ca", cfg.TLSCAFile, "PEM CA bundle to trust instead of system roots")
	fs.StringVar(&cfg.TLSServerName, "tls-server-name", cfg.TLSServerName, "Name to verify in the relay certificate")
	fs.BoolVar(&cfg.TLSInsecure, "tls-insecure", cfg.TLSInsecure, "Skip certificate verification")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.DurationVar(&cfg.KeepAlive, "ssh-keepalive", cfg.KeepAlive, "SSH keepalive interval (0 disables)")

	fs.BoolVar(&dryRun, "dry-run", false, "Validate, log in, and exit without connecting")
	return cmd
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, args []string) error {
	if len(args) >= 1 {
		cfg.Host = args[0]
	}
	if len(args) == 2 {
		port, err := util.ParsePort(args[1])
		if err != nil {
			return &rcerr.ConfigError{Field: "port", Value: args[1], Message: err.Error()}
		}
		cfg.Port = port
	}
	return nil
}

// login checks the account password before any network activity.
func login(cmd *cobra.Command, s streams, cfg *config.Config) error {
	store, err := openStore(cfg.AccountDB)
	if err != nil {
		return err
	}
	defer store.Close()

	pass, err := accountPassword(s, fmt.Sprintf("Password for %s: ", cfg.Username))
	if err != nil {
		return err
	}
	if err := store.Validate(cmd.Context(), cfg.Username, pass); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}
