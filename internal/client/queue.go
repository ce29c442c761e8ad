package client

import (
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"go.uber.org/zap"
)

// ReplyQueue is a bounded FIFO of pending requests kept in a ring of N
// slots. One slot always stays empty so front == back means empty, which
// leaves room for N-1 requests.
//
// Operations that end requests finish restructuring the ring before any
// callback runs, so a callback may submit new requests.
type ReplyQueue struct {
	slots          []*PendingRequest
	front, back    int
	defaultTimeout time.Duration

	// misuse reports calls that indicate a caller bug.
	misuse func(msg string)
}

// NewReplyQueue creates a queue with size slots.
func NewReplyQueue(size int, defaultTimeout time.Duration) *ReplyQueue {
	if size < 2 {
		size = 2
	}
	return &ReplyQueue{
		slots:          make([]*PendingRequest, size),
		defaultTimeout: defaultTimeout,
		misuse: func(msg string) {
			logging.Error(msg)
		},
	}
}

func (q *ReplyQueue) next(i int) int {
	return (i + 1) % len(q.slots)
}

// Len returns the number of queued requests.
func (q *ReplyQueue) Len() int {
	return (q.back - q.front + len(q.slots)) % len(q.slots)
}

// Cap returns the maximum number of queued requests.
func (q *ReplyQueue) Cap() int {
	return len(q.slots) - 1
}

// Free returns the number of requests that can still be queued.
func (q *ReplyQueue) Free() int {
	return q.Cap() - q.Len()
}

// Front returns the oldest request, or nil when empty.
func (q *ReplyQueue) Front() *PendingRequest {
	if q.front == q.back {
		return nil
	}
	return q.slots[q.front]
}

// Scan calls fn for each request from front to back until fn returns false.
func (q *ReplyQueue) Scan(fn func(*PendingRequest) bool) {
	for i := q.front; i != q.back; i = q.next(i) {
		if !fn(q.slots[i]) {
			return
		}
	}
}

// EnqueueMany appends reqs as one batch. Requests already marked Satisfied
// are released without taking a slot. If the rest do not fit, the queue is
// compacted; if they still do not fit, nothing is enqueued and false is
// returned.
func (q *ReplyQueue) EnqueueMany(now time.Time, reqs ...*PendingRequest) bool {
	needed := 0
	for _, r := range reqs {
		if !r.Satisfied {
			needed++
		}
	}

	if needed > q.Free() {
		q.Compact(now)
		if needed > q.Free() {
			logging.Debug("Reply queue full",
				zap.Int("needed", needed),
				zap.Int("free", q.Free()),
			)
			return false
		}
	}

	for _, r := range reqs {
		if r.Satisfied {
			r.release()
			continue
		}
		q.slots[q.back] = r
		q.back = q.next(q.back)
	}
	return true
}

// Compact removes every satisfied or expired request, wherever it sits, and
// repacks the survivors from slot 0 in their original order. Expired
// requests fail with TimedOut. It returns the number of requests removed.
func (q *ReplyQueue) Compact(now time.Time) int {
	var survivors, expired []*PendingRequest
	removed := 0

	for i := q.front; i != q.back; i = q.next(i) {
		r := q.slots[i]
		q.slots[i] = nil
		switch {
		case r.Satisfied:
			r.release()
			removed++
		case r.expired(now, q.defaultTimeout):
			expired = append(expired, r)
			removed++
		default:
			survivors = append(survivors, r)
		}
	}

	copy(q.slots, survivors)
	q.front = 0
	q.back = len(survivors)

	for _, r := range expired {
		r.fail(TimedOut)
	}
	return removed
}

// DequeueFront removes and returns the front request. The caller finishes
// it. Dequeuing an empty queue is a caller bug: it is reported and nil is
// returned.
func (q *ReplyQueue) DequeueFront() *PendingRequest {
	if q.front == q.back {
		q.misuse("DequeueFront called on empty reply queue")
		return nil
	}
	r := q.slots[q.front]
	q.slots[q.front] = nil
	q.front = q.next(q.front)
	return r
}

// EvictAll empties the queue, then fails every request that was in it with
// cause, in FIFO order.
func (q *ReplyQueue) EvictAll(cause FailureCause) int {
	var evicted []*PendingRequest
	for i := q.front; i != q.back; i = q.next(i) {
		evicted = append(evicted, q.slots[i])
		q.slots[i] = nil
	}
	q.front, q.back = 0, 0

	for _, r := range evicted {
		r.fail(cause)
	}
	return len(evicted)
}

// DropSatisfiedFront pops satisfied requests off the front.
func (q *ReplyQueue) DropSatisfiedFront() int {
	dropped := 0
	for q.front != q.back && q.slots[q.front].Satisfied {
		q.DequeueFront().release()
		dropped++
	}
	return dropped
}

// Weed pops satisfied and expired requests off the front, stopping at the
// first request that is neither. Expired requests fail with TimedOut.
func (q *ReplyQueue) Weed(now time.Time) int {
	var expired []*PendingRequest
	removed := 0

	for q.front != q.back {
		r := q.slots[q.front]
		if r.Satisfied {
			q.DequeueFront().release()
			removed++
			continue
		}
		if r.expired(now, q.defaultTimeout) {
			expired = append(expired, q.DequeueFront())
			removed++
			continue
		}
		break
	}

	for _, r := range expired {
		r.fail(TimedOut)
	}
	return removed
}

// RotateFront moves the front request to the back.
func (q *ReplyQueue) RotateFront() {
	if q.front == q.back {
		return
	}
	q.slots[q.back] = q.slots[q.front]
	q.slots[q.front] = nil
	q.front = q.next(q.front)
	q.back = q.next(q.back)
}

// Retract removes the n most recently enqueued requests without finishing
// them. Submit uses it to undo an enqueue whose request frame never went out.
func (q *ReplyQueue) Retract(n int) {
	for ; n > 0 && q.front != q.back; n-- {
		q.back = (q.back - 1 + len(q.slots)) % len(q.slots)
		q.slots[q.back] = nil
	}
}
