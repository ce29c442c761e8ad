package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultCacheLifeWindow is how long a CacheStore entry survives.
	DefaultCacheLifeWindow = 10 * time.Minute

	// DefaultCacheEntryBytes caps one CacheStore entry.
	DefaultCacheEntryBytes = 512 * 1024
)

// CacheStore keeps buffers in a bigcache instance. Writes are buffered and
// committed when the stream is closed. Entries expire after the life window,
// so Reclaim has nothing to do.
type CacheStore struct {
	cache    *bigcache.BigCache
	maxEntry int
}

// NewCacheStore creates a bigcache-backed store.
func NewCacheStore(ctx context.Context, lifeWindow time.Duration, maxEntryBytes int) (*CacheStore, error) {
	if lifeWindow <= 0 {
		lifeWindow = DefaultCacheLifeWindow
	}
	if maxEntryBytes <= 0 {
		maxEntryBytes = DefaultCacheEntryBytes
	}

	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.Shards = 16
	cfg.MaxEntrySize = maxEntryBytes
	cfg.MaxEntriesInWindow = 64
	cfg.CleanWindow = lifeWindow / 2
	cfg.Verbose = false

	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer cache: %w", err)
	}
	return &CacheStore{cache: cache, maxEntry: maxEntryBytes}, nil
}

// OpenWrite implements ChunkStore.
func (s *CacheStore) OpenWrite(key string, appendMode bool) (io.WriteCloser, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	existing := 0
	if appendMode {
		data, err := s.cache.Get(key)
		if err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNoSpace, err)
		}
		existing = len(data)
	}

	return &cacheWriter{
		store:  s,
		key:    key,
		append: appendMode && existing > 0,
		room:   s.maxEntry - existing,
	}, nil
}

// OpenRead implements ChunkStore.
func (s *CacheStore) OpenRead(key string) (io.ReadCloser, error) {
	data, err := s.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read buffer %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete implements ChunkStore.
func (s *CacheStore) Delete(key string) {
	if err := s.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		logging.Warn("Failed to delete cached buffer", zap.String("key", key), zap.Error(err))
	}
}

// Reclaim implements ChunkStore.
func (s *CacheStore) Reclaim() {}

// Len returns the number of live entries.
func (s *CacheStore) Len() int {
	return s.cache.Len()
}

// Close releases the cache.
func (s *CacheStore) Close() error {
	return s.cache.Close()
}

type cacheWriter struct {
	store  *CacheStore
	key    string
	append bool
	room   int
	buf    bytes.Buffer
	closed bool
}

func (w *cacheWriter) Write(p []byte) (int, error) {
	room := w.room - w.buf.Len()
	if room < 0 {
		room = 0
	}
	n := len(p)
	if n > room {
		n = room
	}
	w.buf.Write(p[:n])
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (w *cacheWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if w.append {
		err = w.store.cache.Append(w.key, w.buf.Bytes())
	} else {
		err = w.store.cache.Set(w.key, w.buf.Bytes())
	}
	if err != nil {
		return fmt.Errorf("failed to commit buffer %s: %w", w.key, err)
	}
	return nil
}
