// Package transport implements the two Session kinds - raw TCP and
// WebSocket - that the gateway and chat services read framed application
// payloads from. Both share the same write-queue/close discipline; they
// differ only in how they derive a stream of bytes from the underlying
// net.Conn.
package transport

import "net"

// FrameCallback is invoked once per complete application-level payload
// popped off a session's framer.
type FrameCallback func(sess Session, payload []byte)

// CloseCallback is invoked exactly once when a session's connection is
// torn down, regardless of which side initiated the close.
type CloseCallback func(sess Session)

// Session is the interface gateway/chat dispatch code sends through; it is
// indifferent to whether the underlying transport is raw TCP or WebSocket.
type Session interface {
	// Send enqueues bytes for delivery and returns once they are queued.
	// Thread-safe. When writeQueueDepth writes are already pending, it
	// waits for room in the queue or for the session to close.
	Send(payload []byte)

	// SendAndClose enqueues bytes, then closes the connection once the
	// write queue drains.
	SendAndClose(payload []byte)

	// Close tears the connection down immediately.
	Close()

	// RemoteAddr reports the peer address, for logging.
	RemoteAddr() net.Addr
}

const readBufSize = 4096
const writeQueueDepth = 64
