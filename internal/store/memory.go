package store

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultMemBuffers is the default number of MemStore slots.
	DefaultMemBuffers = 3

	// DefaultMemBufferBytes is the default capacity of one MemStore slot.
	DefaultMemBufferBytes = 10000
)

type memSlot struct {
	key  string
	used bool
	data []byte
}

// MemStore is a bounded pool of in-memory buffers. Each key occupies one
// slot of fixed capacity; writes past the capacity are short writes.
type MemStore struct {
	slots       []memSlot
	bufferBytes int
	isTrash     func(key string) bool
}

// MemOption configures a MemStore.
type MemOption func(*MemStore)

// WithTrash sets the predicate Reclaim uses to pick slots to free. Without
// it Reclaim frees nothing.
func WithTrash(isTrash func(key string) bool) MemOption {
	return func(s *MemStore) {
		s.isTrash = isTrash
	}
}

// NewMemStore creates a pool of numBuffers slots of bufferBytes each.
func NewMemStore(numBuffers, bufferBytes int, opts ...MemOption) *MemStore {
	if numBuffers <= 0 {
		numBuffers = DefaultMemBuffers
	}
	if bufferBytes <= 0 {
		bufferBytes = DefaultMemBufferBytes
	}

	s := &MemStore{
		slots:       make([]memSlot, numBuffers),
		bufferBytes: bufferBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemStore) find(key string) *memSlot {
	for i := range s.slots {
		if s.slots[i].used && s.slots[i].key == key {
			return &s.slots[i]
		}
	}
	return nil
}

// OpenWrite implements ChunkStore.
func (s *MemStore) OpenWrite(key string, appendMode bool) (io.WriteCloser, error) {
	if slot := s.find(key); slot != nil {
		if !appendMode {
			slot.data = slot.data[:0]
		}
		return &memWriter{slot: slot, limit: s.bufferBytes}, nil
	}

	for i := range s.slots {
		slot := &s.slots[i]
		if slot.used {
			continue
		}
		slot.used = true
		slot.key = key
		if slot.data == nil {
			slot.data = make([]byte, 0, s.bufferBytes)
		}
		slot.data = slot.data[:0]
		return &memWriter{slot: slot, limit: s.bufferBytes}, nil
	}

	return nil, fmt.Errorf("%w: all %d slots in use", ErrNoSpace, len(s.slots))
}

// OpenRead implements ChunkStore.
func (s *MemStore) OpenRead(key string) (io.ReadCloser, error) {
	slot := s.find(key)
	if slot == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(slot.data)), nil
}

// Delete implements ChunkStore.
func (s *MemStore) Delete(key string) {
	if slot := s.find(key); slot != nil {
		slot.used = false
		slot.key = ""
		slot.data = slot.data[:0]
	}
}

// Reclaim implements ChunkStore.
func (s *MemStore) Reclaim() {
	if s.isTrash == nil {
		return
	}
	for i := range s.slots {
		slot := &s.slots[i]
		if slot.used && s.isTrash(slot.key) {
			logging.Debug("Reclaiming buffer", zap.String("key", slot.key))
			slot.used = false
			slot.key = ""
			slot.data = slot.data[:0]
		}
	}
}

// InUse returns the number of occupied slots.
func (s *MemStore) InUse() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].used {
			n++
		}
	}
	return n
}

type memWriter struct {
	slot  *memSlot
	limit int
}

func (w *memWriter) Write(p []byte) (int, error) {
	room := w.limit - len(w.slot.data)
	if room < 0 {
		room = 0
	}
	n := len(p)
	if n > room {
		n = room
	}
	w.slot.data = append(w.slot.data, p[:n]...)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (w *memWriter) Close() error {
	return nil
}
