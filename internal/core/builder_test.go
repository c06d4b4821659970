package core

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"relaychat/config"
	"relaychat/internal/transport"
	"relaychat/util"
)

func quietLogger() *util.Logger {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 12345
	cfg.Username = "alice"
	return cfg
}

func testDeps() Deps {
	return Deps{Logger: quietLogger(), Stdin: strings.NewReader(""), Stdout: &bytes.Buffer{}}
}

// TestBuild_TCP verifies that Build produces a ChatMode over plain TCP
// for a simple configuration.
func TestBuild_TCP(t *testing.T) {
	mode, err := Build(testConfig(), testDeps())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.Dialer.(*transport.TCPDialer); !ok {
		t.Errorf("expected *TCPDialer, got %T", mode.Dialer)
	}
	if mode.Session.Username() != "alice" || mode.Host != "127.0.0.1" || mode.Port != 12345 {
		t.Errorf("mode not wired from config: %+v", mode)
	}
	if !mode.AutoConnect {
		t.Error("AutoConnect should default to true")
	}
	if mode.Box == nil || mode.Dispatcher == nil || mode.Console == nil || mode.Metrics == nil {
		t.Error("collaborators missing")
	}
}

// TestBuild_TLS verifies that --tls wraps the base dialer.
func TestBuild_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.TLS = true
	cfg.TLSServerName = "relay.internal"

	mode, err := Build(cfg, testDeps())
	if err != nil {
		t.Fatal(err)
	}
	d, ok := mode.Dialer.(*transport.TLSDialer)
	if !ok {
		t.Fatalf("expected *TLSDialer, got %T", mode.Dialer)
	}
	if _, ok := d.Base.(*transport.TCPDialer); !ok {
		t.Errorf("expected TCP base, got %T", d.Base)
	}
	if d.Config.ServerName != "relay.internal" {
		t.Errorf("ServerName = %q", d.Config.ServerName)
	}
}

// TestBuild_TLSBadCA verifies that an unreadable CA file is rejected.
func TestBuild_TLSBadCA(t *testing.T) {
	cfg := testConfig()
	cfg.TLS = true
	cfg.TLSCAFile = filepath.Join(t.TempDir(), "missing.pem")

	if _, err := Build(cfg, testDeps()); err == nil {
		t.Fatal("expected error for missing CA file")
	}
}

// TestBuild_Tunnel verifies Build routes through the SSH dialer.
func TestBuild_Tunnel(t *testing.T) {
	cfg := testConfig()
	cfg.TunnelSpec = "user@gateway:2222"
	if err := cfg.ApplyTunnelSpec(); err != nil {
		t.Fatal(err)
	}

	mode, err := Build(cfg, testDeps())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.Dialer.(*transport.SSHDialer); !ok {
		t.Errorf("expected *SSHDialer, got %T", mode.Dialer)
	}
}

// TestBuild_BadFraming verifies that an unknown framing is rejected.
func TestBuild_BadFraming(t *testing.T) {
	cfg := testConfig()
	cfg.Framing = "json"
	if _, err := Build(cfg, testDeps()); err == nil {
		t.Fatal("expected error for unknown framing")
	}
}
