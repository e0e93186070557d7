// Package chat runs admitted sessions: it decodes client events with the
// negotiated codec, applies them to the store and fans results out to every
// connected client.
package chat

import "context"

// Conn abstracts a message-oriented connection. This interface isolates
// transport details from chat logic.
type Conn interface {
	// Read reads a single frame.
	// Returns io.EOF when connection is closed.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
