package client

import (
	"fmt"

	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"go.uber.org/zap"
)

// route handles one inbound frame.
func (c *Client) route(frame protocol.Frame) {
	for {
		c.dropOrphanedRead()
		c.queue.DropSatisfiedFront()

		front := c.resolveFront(frame)
		if front == nil {
			c.unsolicited(frame)
			return
		}

		switch front.Format {
		case protocol.FormatText:
			if frame.Format == protocol.FormatText {
				c.routeText(frame, front)
			} else {
				c.unsolicited(frame)
			}
			return

		case protocol.FormatBinary:
			if frame.Format == protocol.FormatBinary {
				c.routeBinary(frame, front)
			} else {
				c.unsolicited(frame)
			}
			return

		default:
			logging.Error("Pending request has unrecognized reply format",
				zap.String("kind", front.kindName()),
				zap.Stringer("format", front.Format),
			)
			c.queue.DequeueFront()
			front.fail(MalformedHandler)
			// Re-examine the frame against the new front.
		}
	}
}

// resolveFront returns the request the frame should be matched against,
// or nil if the frame is unsolicited. A front waiting for an expander reply
// that this frame cannot be is rotated to the back, at most once per queued
// request, since that reply may arrive late or never.
func (c *Client) resolveFront(frame protocol.Frame) *PendingRequest {
	front := c.queue.Front()
	if front == nil || c.rs.inProgress {
		return front
	}

	isExpander := false
	if typ, ok := frame.BinaryType(); ok && typ == protocol.BinaryExpanderChannels {
		isExpander = true
	}
	if isExpander || !front.awaitsExpander() {
		return front
	}

	for rotations := c.queue.Len(); rotations > 0 && front.awaitsExpander(); rotations-- {
		c.queue.RotateFront()
		front = c.queue.Front()
	}
	if front.awaitsExpander() {
		return nil
	}
	return front
}

// routeText matches a text frame against a front request expecting text.
func (c *Client) routeText(frame protocol.Frame, front *PendingRequest) {
	msg, err := protocol.ParseText(frame.Payload)
	if err != nil {
		logging.Warn("Dropping undecodable text frame", zap.Error(err))
		return
	}

	if !matchesText(front.Reply, msg) {
		c.unsolicitedText(msg)
		return
	}

	c.queue.DequeueFront()
	if err := c.deliverText(front, msg); err != nil {
		logging.Warn("Failed to decode reply",
			zap.String("kind", front.kindName()),
			zap.Error(err),
		)
		front.fail(MalformedHandler)
	}
}

// deliverText decodes msg for the request's reply kind and runs its Handle.
func (c *Client) deliverText(r *PendingRequest, msg *protocol.TextMessage) error {
	switch k := r.Reply.(type) {
	case PingReply:
		rtt := c.clock.Now().Sub(r.SubmittedAt)
		if rtt < 0 {
			rtt = 0
		}
		c.lastPingRoundtrip = rtt
		c.lastSuccessfulPing = c.clock.Now()
		r.succeed(func() {
			if k.Handle != nil {
				k.Handle(rtt)
			}
		})

	case SettingsReply:
		settings, err := protocol.ParseSettings(msg)
		if err != nil {
			return err
		}
		r.succeed(func() {
			if k.Handle != nil {
				k.Handle(settings)
			}
		})

	case SequencerReply:
		state, err := protocol.ParseSequencerState(msg)
		if err != nil {
			return err
		}
		r.succeed(func() {
			if k.Handle != nil {
				k.Handle(state)
			}
		})

	case PlaylistReply:
		playlist, err := protocol.ParsePlaylist(msg)
		if err != nil {
			return err
		}
		r.succeed(func() {
			if k.Handle != nil {
				k.Handle(playlist)
			}
		})

	case PeersReply:
		peers, err := protocol.ParsePeers(msg)
		if err != nil {
			return err
		}
		r.succeed(func() {
			if k.Handle != nil {
				k.Handle(peers)
			}
		})

	case PatternControlsReply:
		id, controls, err := protocol.ParsePatternControls(msg)
		if err != nil {
			return err
		}
		r.succeed(func() {
			if k.Handle != nil {
				k.Handle(id, controls)
			}
		})

	case RawTextReply:
		r.succeed(func() {
			if k.Handle != nil {
				k.Handle(msg)
			}
		})

	default:
		return fmt.Errorf("reply kind %s is not a text reply", r.kindName())
	}
	return nil
}

// unsolicited routes a frame that matched no pending request. It never
// touches the queue, except that an expander reply may complete a queued
// request in place.
func (c *Client) unsolicited(frame protocol.Frame) {
	switch frame.Format {
	case protocol.FormatText:
		msg, err := protocol.ParseText(frame.Payload)
		if err != nil {
			logging.Warn("Dropping undecodable text frame", zap.Error(err))
			return
		}
		c.unsolicitedText(msg)

	case protocol.FormatBinary:
		typ, pos, body, err := frame.ParseBinary()
		if err != nil {
			logging.Warn("Dropping malformed binary frame", zap.Error(err))
			return
		}
		if !c.unsolicitedBinary(typ, pos, body) {
			logging.Debug("Ignoring unsolicited binary frame",
				zap.Stringer("type", typ),
				zap.Stringer("position", pos),
			)
		}

	default:
		logging.Warn("Dropping frame with unknown format", zap.Stringer("format", frame.Format))
		logging.LogRawBytes("Unknown frame payload", frame.Payload)
	}
}

// unsolicitedText recognises pushes by shape, in order: stats, pattern
// change, playlist change.
func (c *Client) unsolicitedText(msg *protocol.TextMessage) {
	switch {
	case msg.Has("fps"):
		stats, err := protocol.ParseStats(msg)
		if err != nil {
			logging.Warn("Failed to decode stats push", zap.Error(err))
			return
		}
		c.observer.Unsolicited("stats")
		c.watcher.OnStats(stats)

	case msg.Has("activeProgram"):
		state, err := protocol.ParseSequencerState(msg)
		if err != nil {
			logging.Warn("Failed to decode pattern change push", zap.Error(err))
			return
		}
		c.observer.Unsolicited("pattern_change")
		c.watcher.OnPatternChange(state)

	case msg.Has("playlist"):
		update, err := protocol.ParsePlaylistUpdate(msg)
		if err != nil {
			logging.Warn("Failed to decode playlist push", zap.Error(err))
			return
		}
		c.observer.Unsolicited("playlist_change")
		c.watcher.OnPlaylistChange(update)

	default:
		logging.Debug("Ignoring unsolicited text", zap.Int("length", len(msg.Raw)))
	}
}

// unsolicitedBinary handles binary frames outside of correlation and
// reports whether it claimed the frame.
func (c *Client) unsolicitedBinary(typ protocol.BinaryType, pos protocol.FramePosition, body []byte) bool {
	switch typ {
	case protocol.BinaryPreviewFrame:
		limit := c.cfg.BinaryBufferBytes
		if len(body) < limit {
			limit = len(body)
		}
		frame := make([]byte, limit)
		copy(frame, body[:limit])
		c.observer.Unsolicited("preview_frame")
		c.watcher.OnPreviewFrame(frame)
		return true

	case protocol.BinaryExpanderChannels:
		return c.claimExpander(pos, body)

	default:
		return false
	}
}
