// Package transport provides abstractions for reaching the relay.
// Transports handle how the byte stream is carried (plain TCP, TLS, or
// an SSH tunnel) independent of the chat protocol spoken over it.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections to the relay.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
