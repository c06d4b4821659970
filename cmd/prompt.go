package cmd

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"relaychat/config"
)

// readSecret prompts for a secret.  On a terminal echo is disabled;
// otherwise one line is read from the buffered stdin.
func readSecret(s streams, label string) ([]byte, error) {
	fmt.Fprint(s.errOut, label)
	if s.tty != nil && term.IsTerminal(int(s.tty.Fd())) {
		b, err := term.ReadPassword(int(s.tty.Fd()))
		fmt.Fprintln(s.errOut)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", strings.TrimSpace(label), err)
		}
		return b, nil
	}
	line, err := s.in.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("read %s: %w", strings.TrimSpace(label), err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// accountPassword returns $RELAYCHAT_PASSWORD or prompts for it.
func accountPassword(s streams, label string) (string, error) {
	if v, ok := os.LookupEnv(config.EnvPassword); ok {
		return v, nil
	}
	b, err := readSecret(s, label)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// sshPrompt adapts readSecret for the SSH tunnel's password and
// passphrase prompts.
func sshPrompt(s streams) func(label string) ([]byte, error) {
	return func(label string) ([]byte, error) {
		return readSecret(s, label)
	}
}
