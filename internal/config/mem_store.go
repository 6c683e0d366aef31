package config

import (
	"sync"

	"github.com/micro-nova/flick-go/internal/models"
)

// MemStore is an in-memory Store for tests and the demo that never writes
// to disk.
type MemStore struct {
	mu    sync.Mutex
	snap  *models.Snapshot
	saves int
}

// NewMemStore returns a new in-memory store (defaults to DefaultSnapshot on Load).
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Load returns a copy of the stored snapshot, or DefaultSnapshot if none
// has been saved yet.
func (m *MemStore) Load() (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		def := models.DefaultSnapshot()
		return &def, nil
	}
	cp := *m.snap
	return &cp, nil
}

// Save stores a copy of the given snapshot in memory.
func (m *MemStore) Save(snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snap
	m.snap = &cp
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Path returns ":memory:" to indicate this is an in-memory store.
func (m *MemStore) Path() string { return ":memory:" }

// Flush is a no-op for in-memory stores.
func (m *MemStore) Flush() error { return nil }

var _ Store = (*MemStore)(nil)
