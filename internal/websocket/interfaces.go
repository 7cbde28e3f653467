package websocket

import (
	"time"
)

// Connection defines the subset of a WebSocket connection the gateway uses.
// It allows pumps to be driven by fakes in tests.
type Connection interface {
	// WriteMessage writes a message with the given message type and payload
	WriteMessage(messageType int, data []byte) error

	// WriteControl writes a control frame (close, ping, pong) with a deadline
	WriteControl(messageType int, data []byte, deadline time.Time) error

	// ReadMessage blocks until the next message or an error
	ReadMessage() (messageType int, p []byte, err error)

	// Close closes the underlying network connection without a close frame
	Close() error

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)

	// RemoteAddr returns the remote network address
	RemoteAddr() string
}

// Emitter is the capability request handlers receive through the request
// context. It is safe for concurrent use.
type Emitter interface {
	// Emit broadcasts an event to every open channel
	Emit(event string, data interface{}) error

	// EmitTo sends an event to a single channel
	EmitTo(channelID, event string, data interface{}) error

	// ChannelCount returns the number of open channels
	ChannelCount() uint
}
