package transport

import (
	"sync"

	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
)

// Fake is an in-memory Transport for tests. Frames queued with Push are
// returned by ReceiveNext in order; sent frames are recorded. Like the
// websocket, Reconnect drops frames that were never received.
type Fake struct {
	mu sync.Mutex

	sent    []protocol.Frame
	inbound []protocol.Frame
	up      bool
	closed  bool

	// SendErr, when set, is returned by every Send.
	SendErr error

	// ReconnectResults is consumed one entry per Reconnect call. When it is
	// exhausted Reconnect returns ReconnectDefault.
	ReconnectResults []bool
	ReconnectDefault bool
	ReconnectCalls   int
}

// NewFake returns a connected Fake.
func NewFake() *Fake {
	return &Fake{up: true, ReconnectDefault: true}
}

// Push queues inbound frames.
func (f *Fake) Push(frames ...protocol.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, frames...)
}

// PushText queues an inbound text frame.
func (f *Fake) PushText(s string) {
	f.Push(protocol.TextFrame([]byte(s)))
}

// PushBinary queues an inbound binary frame.
func (f *Fake) PushBinary(t protocol.BinaryType, pos protocol.FramePosition, body []byte) {
	f.Push(protocol.BinaryFrame(t, pos, body))
}

// Pending returns the number of inbound frames not yet received.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inbound)
}

// Sent returns a copy of every frame sent so far.
func (f *Fake) Sent() []protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Frame, len(f.sent))
	copy(out, f.sent)
	return out
}

// SetConnected changes the reported connection state.
func (f *Fake) SetConnected(up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up = up
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Send implements Transport.
func (f *Fake) Send(frame protocol.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	if !f.up {
		return ErrNotConnected
	}
	f.sent = append(f.sent, frame)
	return nil
}

// ReceiveNext implements Transport.
func (f *Fake) ReceiveNext() (protocol.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return protocol.Frame{}, false
	}
	frame := f.inbound[0]
	f.inbound = f.inbound[1:]
	return frame, true
}

// Connected implements Transport.
func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.up
}

// Reconnect implements Transport.
func (f *Fake) Reconnect() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReconnectCalls++
	ok := f.ReconnectDefault
	if len(f.ReconnectResults) > 0 {
		ok = f.ReconnectResults[0]
		f.ReconnectResults = f.ReconnectResults[1:]
	}
	f.up = ok
	f.inbound = nil
	return ok
}

// Close implements Transport.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.up = false
	return nil
}
