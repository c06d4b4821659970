// Package cmd wires up the CLI and dispatches to the chat core.
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"relaychat/config"
	"relaychat/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X relaychat/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// streams are the process's standard files.  in is buffered once and
// shared by password prompts and the chat loop.
type streams struct {
	in     *bufio.Reader
	tty    *os.File // nil when stdin is not a terminal candidate
	out    io.Writer
	errOut io.Writer
}

// Execute parses args and runs the selected subcommand.
func Execute(ctx context.Context, args []string) error {
	s := streams{
		in:     bufio.NewReader(os.Stdin),
		tty:    os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	root := newRootCmd(s)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(s streams) *cobra.Command {
	// Precedence: flags > RELAYCHAT_* env > defaults.  Flags take their
	// defaults from cfg after the env overlay.
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	root := &cobra.Command{
		Use:           "relaychat",
		Short:         "End-to-end encrypted chat through a relay server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.errOut)
	root.SetVersionTemplate("relaychat {{.Version}}\n")

	addCommonFlags(root.PersistentFlags(), cfg)

	root.AddCommand(chatCmd(s, cfg), registerCmd(s, cfg), versionCmd(s))
	return root
}

// ── flags ────────────────────────────────────────────────────────────

func addCommonFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.AccountDB, "db", cfg.AccountDB, "Account database path")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs to a rotated file instead of stderr")
	fs.CountP("verbose", "v", "Increase verbosity (repeatable)")
}

// applyVerbosity copies -v onto cfg when the flag was given.
func applyVerbosity(cmd *cobra.Command, cfg *config.Config) {
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Changed {
		n, err := cmd.Flags().GetCount("verbose")
		if err == nil {
			cfg.Verbose = n
		}
	}
}

func newLogger(cfg *config.Config, s streams) *util.Logger {
	if cfg.LogFile != "" {
		return util.NewFileLogger(cfg.Verbose, cfg.LogFile)
	}
	l := util.NewLogger(cfg.Verbose)
	l.SetOutput(s.errOut)
	return l
}

// ── version ──────────────────────────────────────────────────────────

func versionCmd(s streams) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(s.out, "relaychat %s\n", version)
			return nil
		},
	}
}
