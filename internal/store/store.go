// Package store provides named byte buffers used to reassemble multi-frame
// binary replies.
//
// Three interchangeable implementations are provided:
//
//   - MemStore: a fixed pool of fixed-size in-memory slots. Bounded, so
//     callers must expect ErrNoSpace and short writes.
//   - FileStore: one file per key under a root directory.
//   - CacheStore: entries held in a bigcache instance and committed when the
//     write stream is closed.
//
// None of the stores expire entries on their own schedule except CacheStore;
// deleting a buffer once its reply has been handled is the caller's job.
// Reclaim is a best-effort sweep the client runs when OpenWrite fails.
package store

import (
	"errors"
	"io"
	"strings"
)

var (
	// ErrNoSpace is returned by OpenWrite when no buffer can be allocated.
	ErrNoSpace = errors.New("no buffer space available")

	// ErrNotFound is returned by OpenRead for an unknown key.
	ErrNotFound = errors.New("buffer not found")

	// ErrInvalidKey is returned for keys a store cannot represent.
	ErrInvalidKey = errors.New("invalid buffer key")
)

// ChunkStore is named byte-buffer storage with append-or-truncate open
// semantics.
type ChunkStore interface {
	// OpenWrite opens key for writing. With appendMode the existing content
	// is kept and writes go to the end; otherwise the buffer is truncated.
	OpenWrite(key string, appendMode bool) (io.WriteCloser, error)

	// OpenRead opens key for reading from the start.
	OpenRead(key string) (io.ReadCloser, error)

	// Delete removes key. Deleting an unknown key is not an error.
	Delete(key string)

	// Reclaim frees whatever space the store considers garbage.
	Reclaim()
}

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}
