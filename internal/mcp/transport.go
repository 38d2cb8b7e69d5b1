package mcp

import "context"

// Transport carries the spec §6 wire dialect between the gateway and one
// tool server, over whichever medium the server is configured for (a
// subprocess's stdio pipes, or an HTTP endpoint speaking the same
// envelopes). Every exchange is a single request/response round trip; the
// protocol has no concurrent multiplexing, so a transport serializes its
// own Send calls.
type Transport interface {
	// Connect establishes the underlying connection (spawns the
	// subprocess, or marks an HTTP endpoint ready).
	Connect(ctx context.Context) error

	// Close tears down the underlying connection.
	Close() error

	// Send writes msg and blocks for the matching ServerMessage.
	Send(ctx context.Context, msg ClientMessage) (ServerMessage, error)

	// Notify writes msg without waiting for a reply, used for goodbye.
	Notify(ctx context.Context, msg ClientMessage) error

	// Connected reports whether the transport believes it is usable.
	Connected() bool
}

// NewTransport creates a new transport based on the server configuration.
func NewTransport(cfg *ServerConfig) Transport {
	switch cfg.Transport {
	case TransportHTTP:
		return NewHTTPTransport(cfg)
	default:
		return NewStdioTransport(cfg)
	}
}
