// Package core is the orchestration layer.  It composes the transport,
// crypto gateway, session engine and presenter into a runnable chat
// mode, and provides a builder that wires them from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  bridge/console  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete operational mode of relaychat.  It owns its full
// lifecycle from connection establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
