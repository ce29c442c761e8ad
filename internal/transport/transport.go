// Package transport carries protocol frames to and from a controller.
//
// The client drives a Transport from a single goroutine and never blocks on
// it: ReceiveNext returns immediately when nothing is waiting. The websocket
// implementation gets there by reading on a background goroutine into a
// buffered channel.
package transport

import "github.com/hkolbeck/pixelblaze-go/internal/protocol"

// Transport is a message-oriented, bidirectional connection.
type Transport interface {
	// Send writes one frame.
	Send(frame protocol.Frame) error

	// ReceiveNext returns the next inbound frame, or false if none is ready.
	ReceiveNext() (protocol.Frame, bool)

	// Connected reports whether the connection is believed to be up.
	Connected() bool

	// Reconnect makes one attempt to re-establish the connection. Frames
	// received on the old connection but not yet returned by ReceiveNext
	// are discarded, so a reply that arrived just before the drop is lost
	// and its request fails with the rest of the queue.
	Reconnect() bool

	// Close shuts the connection down.
	Close() error
}
