package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"go.uber.org/zap"
)

// FileStore keeps one file per key under a root directory.
type FileStore struct {
	root    string
	isTrash func(fs.FileInfo) bool
}

// NewFileStore creates root if needed. isTrash selects the files Reclaim
// removes; nil means Reclaim removes nothing.
func NewFileStore(root string, isTrash func(fs.FileInfo) bool) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create buffer directory: %w", err)
	}
	return &FileStore{root: root, isTrash: isTrash}, nil
}

// Root returns the directory buffers are stored in.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) path(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, key), nil
}

// OpenWrite implements ChunkStore.
func (s *FileStore) OpenWrite(key string, appendMode bool) (io.WriteCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSpace, err)
	}
	return f, nil
}

// OpenRead implements ChunkStore.
func (s *FileStore) OpenRead(key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open buffer %s: %w", key, err)
	}
	return f, nil
}

// Delete implements ChunkStore.
func (s *FileStore) Delete(key string) {
	path, err := s.path(key)
	if err != nil {
		logging.Warn("Refusing to delete buffer", zap.String("key", key), zap.Error(err))
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("Failed to delete buffer",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

// Reclaim implements ChunkStore.
func (s *FileStore) Reclaim() {
	if s.isTrash == nil {
		return
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		logging.Warn("Failed to list buffer directory",
			zap.String("root", s.root),
			zap.Error(err),
		)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			logging.Warn("Unexpected directory in buffer store",
				zap.String("root", s.root),
				zap.String("name", entry.Name()),
			)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !s.isTrash(info) {
			continue
		}

		path := filepath.Join(s.root, entry.Name())
		if err := os.Remove(path); err != nil {
			logging.Warn("Failed to reclaim buffer", zap.String("path", path), zap.Error(err))
			continue
		}
		logging.Debug("Reclaimed buffer", zap.String("path", path))
	}
}

// OlderThan returns a FileStore trash predicate selecting files not
// modified within age.
func OlderThan(age time.Duration) func(fs.FileInfo) bool {
	return func(info fs.FileInfo) bool {
		return time.Since(info.ModTime()) > age
	}
}
