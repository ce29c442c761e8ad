package store

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newStores(t *testing.T) map[string]ChunkStore {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	cacheStore, err := NewCacheStore(context.Background(), time.Minute, 1024)
	if err != nil {
		t.Fatalf("NewCacheStore() error = %v", err)
	}
	t.Cleanup(func() { _ = cacheStore.Close() })

	return map[string]ChunkStore{
		"memory": NewMemStore(2, 1024),
		"file":   fileStore,
		"cache":  cacheStore,
	}
}

func writeAll(t *testing.T, s ChunkStore, key string, appendMode bool, data string) {
	t.Helper()
	w, err := s.OpenWrite(key, appendMode)
	if err != nil {
		t.Fatalf("OpenWrite(%q) error = %v", key, err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatalf("Write error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
}

func readAll(t *testing.T, s ChunkStore, key string) string {
	t.Helper()
	r, err := s.OpenRead(key)
	if err != nil {
		t.Fatalf("OpenRead(%q) error = %v", key, err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll error = %v", err)
	}
	return string(data)
}

func TestChunkStore_AppendAndTruncate(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			writeAll(t, s, "k1", false, "abc\tFoo\n")
			writeAll(t, s, "k1", true, "def\tBar\n")

			if got := readAll(t, s, "k1"); got != "abc\tFoo\ndef\tBar\n" {
				t.Errorf("after append = %q", got)
			}

			writeAll(t, s, "k1", false, "xyz")
			if got := readAll(t, s, "k1"); got != "xyz" {
				t.Errorf("after truncate = %q, want xyz", got)
			}
		})
	}
}

func TestChunkStore_AppendToMissingKey(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			writeAll(t, s, "fresh", true, "data")
			if got := readAll(t, s, "fresh"); got != "data" {
				t.Errorf("got %q, want data", got)
			}
		})
	}
}

func TestChunkStore_Delete(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			writeAll(t, s, "gone", false, "x")
			s.Delete("gone")
			s.Delete("never-existed")

			if _, err := s.OpenRead("gone"); !errors.Is(err, ErrNotFound) {
				t.Errorf("OpenRead after Delete error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestMemStore_NoSpace(t *testing.T) {
	s := NewMemStore(2, 16)
	writeAll(t, s, "a", false, "1")
	writeAll(t, s, "b", false, "2")

	if _, err := s.OpenWrite("c", false); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("OpenWrite with full pool error = %v, want ErrNoSpace", err)
	}

	// Reopening an existing key reuses its slot.
	writeAll(t, s, "a", true, "1")
	if s.InUse() != 2 {
		t.Errorf("InUse() = %d, want 2", s.InUse())
	}

	s.Delete("a")
	writeAll(t, s, "c", false, "3")
	if got := readAll(t, s, "c"); got != "3" {
		t.Errorf("got %q, want 3", got)
	}
}

func TestMemStore_ShortWrite(t *testing.T) {
	s := NewMemStore(1, 4)
	w, err := s.OpenWrite("k", false)
	if err != nil {
		t.Fatalf("OpenWrite() error = %v", err)
	}

	n, err := w.Write([]byte("abcdef"))
	if n != 4 || !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("Write() = (%d, %v), want (4, ErrShortWrite)", n, err)
	}
	if got := readAll(t, s, "k"); got != "abcd" {
		t.Errorf("got %q, want abcd", got)
	}
}

func TestMemStore_Reclaim(t *testing.T) {
	trash := map[string]bool{"old": true}
	s := NewMemStore(2, 16, WithTrash(func(key string) bool { return trash[key] }))
	writeAll(t, s, "old", false, "x")
	writeAll(t, s, "keep", false, "y")

	s.Reclaim()

	if s.InUse() != 1 {
		t.Errorf("InUse() = %d, want 1", s.InUse())
	}
	if got := readAll(t, s, "keep"); got != "y" {
		t.Errorf("kept buffer = %q, want y", got)
	}
}

func TestMemStore_ReclaimWithoutPredicate(t *testing.T) {
	s := NewMemStore(1, 16)
	writeAll(t, s, "k", false, "x")
	s.Reclaim()
	if s.InUse() != 1 {
		t.Errorf("InUse() = %d, want 1", s.InUse())
	}
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	for _, key := range []string{"", "..", "a/b", `a\b`} {
		if _, err := s.OpenWrite(key, false); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("OpenWrite(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestFileStore_Reclaim(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, func(info fs.FileInfo) bool {
		return info.Name() == "stale"
	})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	writeAll(t, s, "stale", false, "x")
	writeAll(t, s, "fresh", false, "y")
	if err := os.Mkdir(filepath.Join(root, "subdir"), 0o755); err != nil {
		t.Fatalf("Mkdir error = %v", err)
	}

	s.Reclaim()

	if _, err := s.OpenRead("stale"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale buffer should be reclaimed, err = %v", err)
	}
	if got := readAll(t, s, "fresh"); got != "y" {
		t.Errorf("fresh buffer = %q, want y", got)
	}
	if _, err := os.Stat(filepath.Join(root, "subdir")); err != nil {
		t.Errorf("Reclaim should leave directories alone: %v", err)
	}
}

func TestOlderThan(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "old")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if !OlderThan(time.Hour)(info) {
		t.Error("two hour old file should be older than one hour")
	}
	if OlderThan(3 * time.Hour)(info) {
		t.Error("two hour old file should not be older than three hours")
	}
}

func TestCacheStore_ShortWrite(t *testing.T) {
	s, err := NewCacheStore(context.Background(), time.Minute, 8)
	if err != nil {
		t.Fatalf("NewCacheStore() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	writeAll(t, s, "k", false, "12345")

	w, err := s.OpenWrite("k", true)
	if err != nil {
		t.Fatalf("OpenWrite() error = %v", err)
	}
	n, err := w.Write([]byte("6789"))
	if n != 3 || !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("Write() = (%d, %v), want (3, ErrShortWrite)", n, err)
	}
	_ = w.Close()

	if got := readAll(t, s, "k"); got != "12345678" {
		t.Errorf("got %q, want 12345678", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
