// Package state persists small JSON documents such as the risk peak and the
// paper-trading account.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store reads and writes one JSON document of type T at a fixed path.
type Store[T any] struct {
	path     string
	defaults func() T
	mu       sync.Mutex
}

func NewStore[T any](path string, defaults func() T) *Store[T] {
	return &Store[T]{path: path, defaults: defaults}
}

func (s *Store[T]) Path() string { return s.path }

// Load decodes the document over a copy of the defaults, so keys missing
// from the file keep their default values. A missing file yields the
// defaults and no error.
func (s *Store[T]) Load() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.defaults()
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return s.defaults(), fmt.Errorf("read %s: %w", s.path, err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return s.defaults(), fmt.Errorf("decode %s: %w", s.path, err)
	}
	return v, nil
}

// Save replaces the document atomically: the new content is written to a
// temp file in the same directory, synced and renamed over the old one.
func (s *Store[T]) Save(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return nil
}
