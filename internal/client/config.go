package client

import (
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
)

const (
	// DefaultReplyQueueSize is the number of queue slots. One slot is kept
	// empty, so at most DefaultReplyQueueSize-1 requests can be pending.
	DefaultReplyQueueSize = 100

	// DefaultMaxResponseWait is how long a request may wait for its reply.
	DefaultMaxResponseWait = 5 * time.Second

	// DefaultMaxInboundCheck bounds the time one Poll spends draining frames.
	DefaultMaxInboundCheck = 300 * time.Millisecond

	// DefaultBinaryBufferBytes is the largest binary frame exchanged with the
	// controller, header included.
	DefaultBinaryBufferBytes = 3072

	// DefaultSyncPollWait is the pause between polls in PollUntil.
	DefaultSyncPollWait = 5 * time.Millisecond

	// DefaultReconnectAttempts is the reconnect budget for one Poll.
	DefaultReconnectAttempts = 6

	// DefaultReconnectDelay is the fixed pause between reconnect attempts.
	DefaultReconnectDelay = 50 * time.Millisecond

	// DefaultSendPingEvery is the keepalive ping interval.
	DefaultSendPingEvery = 3 * time.Second
)

// Config holds the engine tunables. Zero fields take their defaults, except
// SendPingEvery where a negative value disables keepalive pings.
type Config struct {
	ReplyQueueSize    int
	MaxResponseWait   time.Duration
	MaxInboundCheck   time.Duration
	BinaryBufferBytes int
	SyncPollWait      time.Duration

	// Reconnection uses a fixed number of attempts with a fixed delay.
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	SendPingEvery time.Duration
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		ReplyQueueSize:    DefaultReplyQueueSize,
		MaxResponseWait:   DefaultMaxResponseWait,
		MaxInboundCheck:   DefaultMaxInboundCheck,
		BinaryBufferBytes: DefaultBinaryBufferBytes,
		SyncPollWait:      DefaultSyncPollWait,
		ReconnectAttempts: DefaultReconnectAttempts,
		ReconnectDelay:    DefaultReconnectDelay,
		SendPingEvery:     DefaultSendPingEvery,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReplyQueueSize < 2 {
		c.ReplyQueueSize = d.ReplyQueueSize
	}
	if c.MaxResponseWait <= 0 {
		c.MaxResponseWait = d.MaxResponseWait
	}
	if c.MaxInboundCheck <= 0 {
		c.MaxInboundCheck = d.MaxInboundCheck
	}
	if c.BinaryBufferBytes <= protocol.BinaryHeaderSize {
		c.BinaryBufferBytes = d.BinaryBufferBytes
	}
	if c.SyncPollWait <= 0 {
		c.SyncPollWait = d.SyncPollWait
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = d.ReconnectAttempts
	}
	if c.ReconnectDelay < 0 {
		c.ReconnectDelay = 0
	}
	if c.SendPingEvery == 0 {
		c.SendPingEvery = d.SendPingEvery
	}
	return c
}

// Clock abstracts time so tests can drive timeouts and reconnect delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Option customizes a Client.
type Option func(*Client)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithObserver attaches an Observer, e.g. a metrics collector.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithExpanderCodec sets the decoder for expander-channel replies.
func WithExpanderCodec(codec protocol.ExpanderCodec) Option {
	return func(c *Client) {
		c.expander = codec
	}
}
