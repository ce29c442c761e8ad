package client

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
)

// ReplyKind is the closed set of reply shapes a request can wait for. Each
// kind carries its own Handle callback; a nil Handle accepts the reply and
// discards it.
type ReplyKind interface {
	// Name identifies the kind in logs and metrics.
	Name() string

	format() protocol.Format
}

// Text reply kinds. Each is matched by the shape of the JSON message.

// PingReply matches {"ack": ...} and reports the round-trip time.
type PingReply struct {
	Handle func(rtt time.Duration)
}

// SettingsReply matches a message with "pixelCount".
type SettingsReply struct {
	Handle func(*protocol.Settings)
}

// SequencerReply matches a message with "activeProgram".
type SequencerReply struct {
	Handle func(*protocol.SequencerState)
}

// PlaylistReply matches a message with "playlist.position".
type PlaylistReply struct {
	Handle func(*protocol.Playlist)
}

// PeersReply matches a message with "peers".
type PeersReply struct {
	Handle func([]protocol.Peer)
}

// PatternControlsReply matches a message with "controls".
type PatternControlsReply struct {
	Handle func(patternID string, controls protocol.Controls)
}

// RawTextReply matches any text message Match accepts. A nil Match accepts
// every text message.
type RawTextReply struct {
	Match  func(*protocol.TextMessage) bool
	Handle func(*protocol.TextMessage)
}

// Binary reply kinds. Each is matched by the frame type tag and reassembled
// into a buffer before Handle runs. Readers handed to Handle are only valid
// for the duration of the call.

// AllPatternsReply receives the stored pattern list.
type AllPatternsReply struct {
	Handle func(*protocol.PatternIterator)
}

// PreviewImageReply receives a pattern's JPEG preview.
type PreviewImageReply struct {
	Handle func(patternID string, jpeg io.Reader)
}

// ExpanderReply receives the output expander configuration.
type ExpanderReply struct {
	Handle func(*protocol.ExpanderConfig)
}

// RawBinaryReply receives the reassembled payload of any binary type.
type RawBinaryReply struct {
	Type   protocol.BinaryType
	Handle func(io.Reader)
}

func (PingReply) Name() string            { return "ping" }
func (SettingsReply) Name() string        { return "settings" }
func (SequencerReply) Name() string       { return "sequencer" }
func (PlaylistReply) Name() string        { return "playlist" }
func (PeersReply) Name() string           { return "peers" }
func (PatternControlsReply) Name() string { return "pattern_controls" }
func (RawTextReply) Name() string         { return "raw_text" }
func (AllPatternsReply) Name() string     { return "all_patterns" }
func (PreviewImageReply) Name() string    { return "preview_image" }
func (ExpanderReply) Name() string        { return "expander" }
func (RawBinaryReply) Name() string       { return "raw_binary" }

func (PingReply) format() protocol.Format            { return protocol.FormatText }
func (SettingsReply) format() protocol.Format        { return protocol.FormatText }
func (SequencerReply) format() protocol.Format       { return protocol.FormatText }
func (PlaylistReply) format() protocol.Format        { return protocol.FormatText }
func (PeersReply) format() protocol.Format           { return protocol.FormatText }
func (PatternControlsReply) format() protocol.Format { return protocol.FormatText }
func (RawTextReply) format() protocol.Format         { return protocol.FormatText }
func (AllPatternsReply) format() protocol.Format     { return protocol.FormatBinary }
func (PreviewImageReply) format() protocol.Format    { return protocol.FormatBinary }
func (ExpanderReply) format() protocol.Format        { return protocol.FormatBinary }
func (RawBinaryReply) format() protocol.Format       { return protocol.FormatBinary }

// binaryTypeOf returns the frame type a binary reply kind waits for.
func binaryTypeOf(kind ReplyKind) protocol.BinaryType {
	switch k := kind.(type) {
	case AllPatternsReply:
		return protocol.BinaryGetProgramList
	case PreviewImageReply:
		return protocol.BinaryPreviewImage
	case ExpanderReply:
		return protocol.BinaryExpanderChannels
	case RawBinaryReply:
		return k.Type
	default:
		return 0
	}
}

// PendingRequest is one outstanding request. It ends with exactly one
// terminal event: its Handle runs, its OnFailure runs, or it is released
// silently because it was marked Satisfied.
type PendingRequest struct {
	// Format is the expected reply format.
	Format protocol.Format

	// Reply selects the correlation predicate and carries the callback.
	Reply ReplyKind

	// BinaryType and BufferKey are set for binary replies.
	BinaryType protocol.BinaryType
	BufferKey  string

	// SubmittedAt is stamped by Submit.
	SubmittedAt time.Time

	// Timeout overrides the client's MaxResponseWait when non-zero.
	Timeout time.Duration

	// Satisfied requests are dropped without a callback. Set it before
	// submission to ignore one leg of a composite request.
	Satisfied bool

	// RetainBuffer keeps the reassembled buffer after dispatch; the caller
	// must release it with Client.ReleaseBuffer.
	RetainBuffer bool

	// OnFailure receives the failure cause. May be nil.
	OnFailure func(FailureCause)

	done     bool
	finished func(r *PendingRequest, cause FailureCause, ok bool)
}

// NewRequest builds a request for reply, deriving the expected format and,
// for binary replies, the frame type and a fresh buffer key.
func NewRequest(reply ReplyKind, onFailure func(FailureCause)) *PendingRequest {
	r := &PendingRequest{
		Format:    reply.format(),
		Reply:     reply,
		OnFailure: onFailure,
	}
	if r.Format == protocol.FormatBinary {
		r.BinaryType = binaryTypeOf(reply)
		r.BufferKey = uuid.NewString()
	}
	return r
}

// Done reports whether the request has reached its terminal event.
func (r *PendingRequest) Done() bool {
	return r.done
}

func (r *PendingRequest) kindName() string {
	if r.Reply == nil {
		return "unknown"
	}
	return r.Reply.Name()
}

// expired reports whether the deadline SubmittedAt+timeout has been reached.
func (r *PendingRequest) expired(now time.Time, defaultTimeout time.Duration) bool {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return !now.Before(r.SubmittedAt.Add(timeout))
}

// succeed marks the request done and runs deliver. It does nothing if the
// request already ended.
func (r *PendingRequest) succeed(deliver func()) {
	if r.done {
		return
	}
	r.done = true
	r.Satisfied = true
	if r.finished != nil {
		r.finished(r, 0, true)
	}
	deliver()
}

// fail marks the request done and reports cause.
func (r *PendingRequest) fail(cause FailureCause) {
	if r.done {
		return
	}
	r.done = true
	r.Satisfied = true
	if r.finished != nil {
		r.finished(r, cause, false)
	}
	if r.OnFailure != nil {
		r.OnFailure(cause)
	}
}

// release ends a satisfied request without any callback.
func (r *PendingRequest) release() {
	r.done = true
}

// awaitsExpander reports whether r waits for an expander-channels reply.
func (r *PendingRequest) awaitsExpander() bool {
	return r != nil && r.Format == protocol.FormatBinary && r.BinaryType == protocol.BinaryExpanderChannels
}

// matchesText applies the kind's shape predicate.
func matchesText(kind ReplyKind, msg *protocol.TextMessage) bool {
	switch k := kind.(type) {
	case PingReply:
		return msg.Has("ack")
	case SettingsReply:
		return msg.Has("pixelCount")
	case SequencerReply:
		return msg.Has("activeProgram")
	case PlaylistReply:
		return msg.HasPath("playlist", "position")
	case PeersReply:
		return msg.Has("peers")
	case PatternControlsReply:
		return msg.Has("controls")
	case RawTextReply:
		return k.Match == nil || k.Match(msg)
	default:
		return false
	}
}
