package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"relaychat/config"
	"relaychat/internal/account"
	rcerr "relaychat/internal/errors"
)

func registerCmd(s streams, cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a chat account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyVerbosity(cmd, cfg)
			if cfg.Username == "" {
				return &rcerr.ConfigError{
					Field:   "user",
					Message: "username is required",
					Hint:    "relaychat register --user NAME",
				}
			}

			pass, err := accountPassword(s, "Password: ")
			if err != nil {
				return err
			}
			if _, ok := os.LookupEnv(config.EnvPassword); !ok {
				again, err := accountPassword(s, "Confirm password: ")
				if err != nil {
					return err
				}
				if again != pass {
					return fmt.Errorf("passwords do not match")
				}
			}

			store, err := openStore(cfg.AccountDB)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Register(cmd.Context(), cfg.Username, pass); err != nil {
				return err
			}
			newLogger(cfg, s).Verbose("registered %s in %s", cfg.Username, cfg.AccountDB)
			fmt.Fprintf(s.out, "Registered %s\n", cfg.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfg.Username, "user", "u", cfg.Username, "Account name")
	return cmd
}

// openStore opens the account database, creating its directory.
func openStore(path string) (*account.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create account dir: %w", err)
		}
	}
	return account.Open(path)
}
