// Package client correlates replies from a Pixelblaze controller with the
// requests that asked for them.
//
// A Client owns a reply queue, a binary frame reassembler and a buffer
// store. Commands enqueue a PendingRequest and send a frame; replies are
// matched during Poll, which the caller drives from one goroutine. Every
// callback runs synchronously inside Poll (or Close). Traffic that matches
// no request goes to the Watcher.
//
// # Usage Example
//
//	ws, _ := transport.Dial(ctx, transport.URLForHost("192.168.1.20"))
//	c := client.New(ws, store.NewMemStore(3, 10000), watcher, client.DefaultConfig())
//	defer c.Close()
//
//	_ = c.GetSettings(func(s *protocol.Settings) {
//	    fmt.Println(s.Name)
//	}, nil)
//	for c.Poll() {
//	    time.Sleep(5 * time.Millisecond)
//	}
//
// A Client is not safe for concurrent use.
package client

import (
	"context"
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"github.com/hkolbeck/pixelblaze-go/internal/store"
	"github.com/hkolbeck/pixelblaze-go/internal/transport"
	"go.uber.org/zap"
)

// Client is the dispatch engine for one controller connection.
type Client struct {
	transport transport.Transport
	store     store.ChunkStore
	watcher   Watcher
	observer  Observer
	expander  protocol.ExpanderCodec
	clock     Clock
	cfg       Config

	queue    *ReplyQueue
	rs       reassembler
	retained map[string]struct{}
	closed   bool

	pingOutstanding    bool
	lastPingSent       time.Time
	lastPingRoundtrip  time.Duration
	lastSuccessfulPing time.Time
}

// New creates a Client over an established transport. A nil watcher ignores
// unsolicited traffic.
func New(t transport.Transport, s store.ChunkStore, w Watcher, cfg Config, opts ...Option) *Client {
	if w == nil {
		w = WatcherFuncs{}
	}
	cfg = cfg.withDefaults()

	c := &Client{
		transport: t,
		store:     s,
		watcher:   w,
		observer:  nopObserver{},
		expander:  protocol.RawExpanderCodec{},
		clock:     systemClock{},
		cfg:       cfg,
		retained:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.queue = NewReplyQueue(cfg.ReplyQueueSize, cfg.MaxResponseWait)
	c.lastSuccessfulPing = c.clock.Now()
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Pending returns the number of queued requests.
func (c *Client) Pending() int {
	return c.queue.Len()
}

// Submit enqueues reqs as one batch and sends frame. If the batch does not
// fit or the frame cannot be sent, an error is returned, nothing stays
// queued and no callback of reqs will run.
func (c *Client) Submit(frame protocol.Frame, reqs ...*PendingRequest) error {
	if c.closed {
		return newClosedError()
	}

	now := c.clock.Now()
	queued := 0
	for _, r := range reqs {
		r.SubmittedAt = now
		r.finished = c.finished
		if !r.Satisfied {
			queued++
		}
	}

	if !c.queue.EnqueueMany(now, reqs...) {
		return NewQueueFullError(queued, c.queue.Free())
	}

	if err := c.transport.Send(frame); err != nil {
		c.queue.Retract(queued)
		return NewSendError("failed to send request", err)
	}

	for _, r := range reqs {
		if !r.Satisfied {
			c.observer.Submitted(r.kindName())
		}
	}
	return nil
}

// send writes a frame that expects no reply.
func (c *Client) send(frame protocol.Frame) error {
	if c.closed {
		return newClosedError()
	}
	if err := c.transport.Send(frame); err != nil {
		return NewSendError("failed to send command", err)
	}
	return nil
}

func (c *Client) finished(r *PendingRequest, cause FailureCause, ok bool) {
	if r.Reply != nil {
		if _, isPing := r.Reply.(PingReply); isPing {
			c.pingOutstanding = false
		}
	}
	if ok {
		c.observer.Completed(r.kindName(), c.clock.Now().Sub(r.SubmittedAt))
		return
	}
	logging.Debug("Request failed",
		zap.String("kind", r.kindName()),
		zap.Stringer("cause", cause),
	)
	c.observer.Failed(r.kindName(), cause)
}

// Poll runs one iteration of the engine: expire old requests, repair the
// connection, send a keepalive ping when due, then handle inbound frames
// until none are ready or MaxInboundCheck has elapsed. It returns false
// only when the connection is down and could not be re-established, or the
// client is closed.
func (c *Client) Poll() bool {
	if c.closed {
		return false
	}

	now := c.clock.Now()
	c.queue.Weed(now)
	c.dropOrphanedRead()

	if !c.maintainConnection() {
		c.observer.QueueDepth(c.queue.Len())
		return false
	}

	c.maybePing(now)

	deadline := now.Add(c.cfg.MaxInboundCheck)
	for {
		frame, ok := c.transport.ReceiveNext()
		if !ok {
			break
		}
		c.route(frame)
		if !c.clock.Now().Before(deadline) {
			break
		}
	}

	c.observer.QueueDepth(c.queue.Len())
	return true
}

// PollUntil polls every SyncPollWait until cond returns true or ctx ends.
func (c *Client) PollUntil(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(c.cfg.SyncPollWait)
	defer ticker.Stop()

	for {
		if cond() {
			return nil
		}
		if !c.Poll() {
			if c.closed {
				return newClosedError()
			}
			return ErrConnectionFailed
		}
		if cond() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Await submits one command through submit and polls until it completes.
// submit must hand done to the command's success path and fail to its
// OnFailure. A failed request is returned as a *FailureError.
func (c *Client) Await(ctx context.Context, submit func(done func(), fail func(FailureCause)) error) error {
	finished := false
	var failure *FailureError

	err := submit(
		func() { finished = true },
		func(cause FailureCause) {
			failure = &FailureError{Cause: cause}
			finished = true
		},
	)
	if err != nil {
		return err
	}

	if err := c.PollUntil(ctx, func() bool { return finished }); err != nil {
		return err
	}
	if failure != nil {
		return failure
	}
	return nil
}

// maintainConnection fails every pending request with ConnectionLost when
// the transport is down, then tries to reconnect a fixed number of times
// with a fixed delay between attempts.
func (c *Client) maintainConnection() bool {
	if c.transport.Connected() {
		return true
	}

	logging.Warn("Connection lost", zap.Int("pending", c.queue.Len()))
	c.abandonRead()
	c.queue.EvictAll(ConnectionLost)
	c.pingOutstanding = false

	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		ok := c.transport.Reconnect()
		c.observer.ReconnectAttempt(ok)
		if ok {
			logging.Info("Reconnected", zap.Int("attempt", attempt))
			c.lastSuccessfulPing = c.clock.Now()
			return true
		}
		if attempt < c.cfg.ReconnectAttempts {
			c.clock.Sleep(c.cfg.ReconnectDelay)
		}
	}

	logging.Error("Failed to reconnect", zap.Int("attempts", c.cfg.ReconnectAttempts))
	return false
}

func (c *Client) maybePing(now time.Time) {
	if c.cfg.SendPingEvery <= 0 || c.pingOutstanding {
		return
	}
	if !c.lastPingSent.IsZero() && now.Sub(c.lastPingSent) < c.cfg.SendPingEvery {
		return
	}

	c.lastPingSent = now
	if err := c.Ping(nil, nil); err != nil {
		logging.Debug("Keepalive ping not sent", zap.Error(err))
		return
	}
	c.pingOutstanding = true
}

// LastPingRoundtrip returns the round-trip time of the latest answered ping.
func (c *Client) LastPingRoundtrip() time.Duration {
	return c.lastPingRoundtrip
}

// SinceSuccessfulPing returns the time since a ping was last answered, or
// since the connection was established if none has been.
func (c *Client) SinceSuccessfulPing() time.Duration {
	return c.clock.Now().Sub(c.lastSuccessfulPing)
}

// IsGarbage reports whether a buffer key belongs to neither a queued request
// nor a retained reply. It suits store.WithTrash.
func (c *Client) IsGarbage(key string) bool {
	if _, ok := c.retained[key]; ok {
		return false
	}
	if c.queue == nil {
		return true
	}
	live := false
	c.queue.Scan(func(r *PendingRequest) bool {
		if r.BufferKey == key {
			live = true
			return false
		}
		return true
	})
	return !live
}

// ReleaseBuffer deletes a buffer kept by a request with RetainBuffer.
func (c *Client) ReleaseBuffer(key string) {
	delete(c.retained, key)
	c.store.Delete(key)
}

// Close fails every pending request with ClientDestructorCalled and closes
// the transport.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.abandonRead()
	n := c.queue.EvictAll(ClientDestructorCalled)
	if n > 0 {
		logging.Debug("Evicted pending requests on close", zap.Int("count", n))
	}
	return c.transport.Close()
}
