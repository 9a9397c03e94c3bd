// Package storage provides file-backed JSON storage keyed by path
// slices. Writes are atomic per key (temp file plus rename) and every
// successful mutation is announced on the event bus.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tandemcode/tandem/internal/bus"
)

var (
	// ErrNotFound reports a missing key.
	ErrNotFound = errors.New("storage: not found")
	// ErrFormat reports a corrupt JSON payload under an existing key.
	ErrFormat = errors.New("storage: malformed payload")
)

// Storage is the file-backed store. One instance owns a base
// directory; keys map to <base>/<k0>/<k1>/.../<kn>.json.
type Storage struct {
	basePath string
	bus      *bus.Bus

	mu       sync.Mutex
	locks    map[string]*FileLock
	versions map[string]int64
}

// New creates a store rooted at basePath. Mutation events are
// published on b.
func New(basePath string, b *bus.Bus) *Storage {
	return &Storage{
		basePath: basePath,
		bus:      b,
		locks:    make(map[string]*FileLock),
		versions: make(map[string]int64),
	}
}

// Key renders a path slice as the canonical event key.
func Key(path []string) string {
	return strings.Join(path, "/")
}

func (s *Storage) pathToFile(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

func (s *Storage) pathToDir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Get reads the value under path into v.
func (s *Storage) Get(ctx context.Context, path []string, v any) error {
	data, err := os.ReadFile(s.pathToFile(path))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", Key(path), ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", Key(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w: %v", Key(path), ErrFormat, err)
	}
	return nil
}

// Put writes v under path, creating parent directories as needed. The
// write is atomic: readers see either the previous value or the new
// one, never a torn file.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	filePath := s.pathToFile(path)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", Key(path), err)
	}

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", Key(path), err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", Key(path), err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", Key(path), err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", Key(path), err)
	}

	s.announce(path, "write")
	return nil
}

// Delete removes the value under path. Deleting a missing key is not
// an error.
func (s *Storage) Delete(ctx context.Context, path []string) error {
	filePath := s.pathToFile(path)

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", Key(path), err)
	}
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", Key(path), err)
	}

	s.announce(path, "remove")
	return nil
}

// List returns the child keys under path in lexicographic order, so
// listings of ascending IDs come back in creation order and
// descending IDs newest-first.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	entries, err := os.ReadDir(s.pathToDir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", Key(path), err)
	}

	var items []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			items = append(items, name)
		case strings.HasSuffix(name, ".json"):
			items = append(items, strings.TrimSuffix(name, ".json"))
		}
	}
	return items, nil
}

// Scan streams every value under path to fn in key order, stopping on
// the first error fn returns. Unreadable files are skipped.
func (s *Storage) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	dirPath := s.pathToDir(path)
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan %s: %w", Key(path), err)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			continue
		}
		if err := fn(strings.TrimSuffix(name, ".json"), json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether path holds a value.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	_, err := os.Stat(s.pathToFile(path))
	return err == nil
}

// announce bumps the key's version counter and publishes
// storage.updated. Versions are monotonic per key within a process,
// letting a slow subscriber detect missed updates.
func (s *Storage) announce(path []string, op string) {
	if s.bus == nil {
		return
	}
	key := Key(path)

	s.mu.Lock()
	s.versions[key]++
	version := s.versions[key]
	s.mu.Unlock()

	s.bus.Publish(bus.Event{
		Type: bus.StorageUpdated,
		Data: bus.StorageUpdatedData{Key: key, Op: op, Version: version},
	})
}

func (s *Storage) getLock(filePath string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		s.locks[filePath] = lock
	}
	return lock
}
