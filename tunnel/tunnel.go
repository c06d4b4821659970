// Package tunnel carries relay connections through an SSH gateway,
// backed by golang.org/x/crypto/ssh.  It is an optional transport: the
// chat payloads are end-to-end encrypted either way, the tunnel only
// hides the control frames and metadata from the network path.
package tunnel

import (
	"context"
	"net"
)

// Tunnel abstracts an encrypted channel through which TCP connections
// to the relay can be forwarded.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address through the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}
