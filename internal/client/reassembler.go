package client

import (
	"fmt"
	"io"

	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"go.uber.org/zap"
)

// reassembler tracks the one multi-frame binary read that may be in flight.
// While inProgress, owner is the queue front and its buffer holds the
// frames received so far.
type reassembler struct {
	inProgress bool
	typ        protocol.BinaryType
	owner      *PendingRequest
}

func (c *Client) resetRead() {
	c.rs = reassembler{}
}

// abandonRead drops an in-flight read and its partial buffer. The owner is
// left for the caller to finish.
func (c *Client) abandonRead() {
	if c.rs.inProgress && c.rs.owner != nil {
		c.store.Delete(c.rs.owner.BufferKey)
	}
	c.resetRead()
}

// dropOrphanedRead abandons the in-flight read if its owner already ended,
// e.g. by timing out.
func (c *Client) dropOrphanedRead() {
	if c.rs.inProgress && c.rs.owner.Done() {
		logging.Debug("Dropping read for finished request",
			zap.String("kind", c.rs.owner.kindName()),
			zap.Stringer("type", c.rs.typ),
		)
		c.abandonRead()
	}
}

// routeBinary drives the reassembly state machine with one binary frame for
// a front request expecting binary.
func (c *Client) routeBinary(frame protocol.Frame, front *PendingRequest) {
	typ, pos, body, err := frame.ParseBinary()
	if err != nil {
		logging.Warn("Dropping malformed binary frame", zap.Error(err))
		return
	}

	if !c.rs.inProgress {
		if typ != front.BinaryType {
			c.unsolicited(frame)
			return
		}

		switch pos {
		case protocol.PositionLone:
			if c.writeFrontChunk(front, body, false) {
				c.finishRead(front)
			}
		case protocol.PositionFirst:
			if c.writeFrontChunk(front, body, false) {
				c.rs = reassembler{inProgress: true, typ: typ, owner: front}
			}
		default:
			logging.Warn("Unexpected frame position with no read in progress",
				zap.Stringer("type", typ),
				zap.Stringer("position", pos),
			)
		}
		return
	}

	if typ != c.rs.typ {
		if c.unsolicitedBinary(typ, pos, body) {
			return
		}
		owner := c.rs.owner
		logging.Warn("Multipart read interrupted",
			zap.Stringer("expected", c.rs.typ),
			zap.Stringer("received", typ),
		)
		c.abandonRead()
		c.queue.DequeueFront()
		owner.fail(MultipartReadInterrupted)
		return
	}

	switch pos {
	case protocol.PositionMiddle:
		c.writeFrontChunk(front, body, true)
	case protocol.PositionLast:
		if c.writeFrontChunk(front, body, true) {
			c.resetRead()
			c.finishRead(front)
		}
	default:
		logging.Warn("Unexpected frame position during read",
			zap.Stringer("type", typ),
			zap.Stringer("position", pos),
		)
	}
}

// writeFrontChunk stores body for the front request. On failure the request
// is dequeued and failed, its buffer deleted and any read reset.
func (c *Client) writeFrontChunk(front *PendingRequest, body []byte, appendMode bool) bool {
	cause, ok := c.writeChunk(front.BufferKey, body, appendMode)
	if ok {
		return true
	}
	c.abandonRead()
	c.store.Delete(front.BufferKey)
	c.queue.DequeueFront()
	front.fail(cause)
	return false
}

// writeChunk writes body to key, reclaiming store space once if the first
// open fails.
func (c *Client) writeChunk(key string, body []byte, appendMode bool) (FailureCause, bool) {
	w, err := c.store.OpenWrite(key, appendMode)
	if err != nil {
		logging.Debug("Buffer open failed, reclaiming", zap.String("key", key), zap.Error(err))
		c.store.Reclaim()
		w, err = c.store.OpenWrite(key, appendMode)
	}
	if err != nil {
		logging.Warn("Failed to allocate reply buffer", zap.String("key", key), zap.Error(err))
		return BufferAllocFail, false
	}

	n, writeErr := w.Write(body)
	closeErr := w.Close()
	if writeErr != nil || n < len(body) || closeErr != nil {
		logging.Warn("Short write to reply buffer",
			zap.String("key", key),
			zap.Int("written", n),
			zap.Int("expected", len(body)),
			zap.NamedError("write_error", writeErr),
			zap.NamedError("close_error", closeErr),
		)
		return StreamWriteFailure, false
	}
	return 0, true
}

// finishRead dequeues the front request and hands it its reassembled
// buffer.
func (c *Client) finishRead(front *PendingRequest) {
	c.queue.DequeueFront()
	c.deliverBuffer(front)
}

// deliverBuffer opens r's buffer, runs its Handle and then deletes the
// buffer unless the request retains it.
func (c *Client) deliverBuffer(r *PendingRequest) {
	rc, err := c.store.OpenRead(r.BufferKey)
	if err != nil {
		logging.Warn("Failed to open reply buffer", zap.String("key", r.BufferKey), zap.Error(err))
		c.store.Delete(r.BufferKey)
		r.fail(BufferAllocFail)
		return
	}

	err = c.deliverBinary(r, rc)
	_ = rc.Close()

	if err != nil {
		logging.Warn("Failed to decode reply",
			zap.String("kind", r.kindName()),
			zap.Error(err),
		)
		r.fail(MalformedHandler)
	}

	if r.RetainBuffer && err == nil {
		c.retained[r.BufferKey] = struct{}{}
		return
	}
	c.store.Delete(r.BufferKey)
}

// deliverBinary decodes the reassembled payload for the request's reply
// kind and runs its Handle.
func (c *Client) deliverBinary(r *PendingRequest, rd io.Reader) error {
	switch k := r.Reply.(type) {
	case AllPatternsReply:
		r.succeed(func() {
			if k.Handle != nil {
				k.Handle(protocol.NewPatternIterator(rd))
			}
		})

	case PreviewImageReply:
		if k.Handle == nil {
			r.succeed(func() {})
			return nil
		}
		id, jpeg, err := protocol.SplitPreviewImage(rd)
		if err != nil {
			return err
		}
		r.succeed(func() { k.Handle(id, jpeg) })

	case ExpanderReply:
		if k.Handle == nil {
			r.succeed(func() {})
			return nil
		}
		cfg, err := c.expander.Decode(rd)
		if err != nil {
			return err
		}
		r.succeed(func() { k.Handle(cfg) })

	case RawBinaryReply:
		r.succeed(func() {
			if k.Handle != nil {
				k.Handle(rd)
			}
		})

	default:
		return fmt.Errorf("reply kind %s is not a binary reply", r.kindName())
	}
	return nil
}

// claimExpander completes the first queued request waiting for an expander
// reply, wherever it sits. The request is marked satisfied and left in
// place for the next front sweep to remove. Expander replies are always
// consumed, even when nothing is waiting for one: the controller answers
// getConfig with an expander frame whether or not it was asked to.
func (c *Client) claimExpander(pos protocol.FramePosition, body []byte) bool {
	var target *PendingRequest
	c.queue.Scan(func(r *PendingRequest) bool {
		if r.awaitsExpander() && !r.Satisfied {
			target = r
			return false
		}
		return true
	})
	if target == nil {
		logging.Debug("Discarding expander reply nobody is waiting for",
			zap.Stringer("position", pos),
			zap.Int("length", len(body)),
		)
		c.observer.Unsolicited("expander")
		return true
	}

	if pos != protocol.PositionLone {
		logging.Warn("Out-of-order expander reply spans frames, dropping",
			zap.Stringer("position", pos),
		)
		return true
	}

	if cause, ok := c.writeChunk(target.BufferKey, body, false); !ok {
		c.store.Delete(target.BufferKey)
		target.fail(cause)
		return true
	}

	c.deliverBuffer(target)
	target.Satisfied = true
	return true
}
