package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/micro-nova/flick-go/internal/models"
)

const (
	configFileName = "settings.json"
	saveDelay      = 500 * time.Millisecond
)

// JSONStore keeps the snapshot in settings.json inside the config
// directory. Saves within saveDelay of each other are coalesced into one
// write of the newest snapshot, and a snapshot equal to the one on disk is
// not written again.
type JSONStore struct {
	path string

	mu       sync.Mutex
	dirty    *models.Snapshot
	onDisk   *models.Snapshot
	timer    *time.Timer
	writeErr error
}

// NewJSONStore creates a store for configDir. Nothing is read until Load.
func NewJSONStore(configDir string) *JSONStore {
	return &JSONStore{path: filepath.Join(configDir, configFileName)}
}

// Path returns the settings file path.
func (s *JSONStore) Path() string { return s.path }

// Load reads the settings file. A missing or unreadable document yields
// DefaultSnapshot; only I/O errors other than a missing file are returned.
func (s *JSONStore) Load() (*models.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		snap := models.DefaultSnapshot()
		return &snap, nil
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", s.path, err)
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		slog.Warn("config: unreadable settings file, using defaults", "path", s.path, "err", err)
		snap = models.DefaultSnapshot()
	}

	s.mu.Lock()
	loaded := snap
	s.onDisk = &loaded
	s.mu.Unlock()
	return &snap, nil
}

// Save records snap and schedules the write.
func (s *JSONStore) Save(snap *models.Snapshot) error {
	cp := *snap

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = &cp
	if s.timer == nil {
		s.timer = time.AfterFunc(saveDelay, s.flushInBackground)
	} else {
		s.timer.Reset(saveDelay)
	}
	return s.writeErr
}

func (s *JSONStore) flushInBackground() {
	if err := s.Flush(); err != nil {
		slog.Error("config: failed to write settings", "path", s.path, "err", err)
	}
}

// Flush writes the newest saved snapshot now. It returns the error of an
// earlier background write if that write has not been retried successfully.
func (s *JSONStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.dirty == nil {
		return s.writeErr
	}
	if s.onDisk != nil && *s.onDisk == *s.dirty {
		s.dirty = nil
		return nil
	}

	data, err := encodeSnapshot(s.dirty)
	if err == nil {
		err = writeFileAtomic(s.path, data)
	}
	if err != nil {
		s.writeErr = fmt.Errorf("config: write %s: %w", s.path, err)
		return s.writeErr
	}
	s.onDisk, s.dirty, s.writeErr = s.dirty, nil, nil
	return nil
}

// writeFileAtomic replaces path with data through a synced temp file in
// the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

var _ Store = (*JSONStore)(nil)
