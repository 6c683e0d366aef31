// Package config persists the shared configuration snapshot.
package config

import "github.com/micro-nova/flick-go/internal/models"

// Store is the interface for persisting the configuration snapshot.
type Store interface {
	// Load loads the current snapshot. Returns DefaultSnapshot if no file exists.
	Load() (*models.Snapshot, error)

	// Save persists the snapshot. Implementations may debounce rapid saves.
	Save(snap *models.Snapshot) error

	// Path returns the file path used by this store.
	Path() string

	// Flush forces an immediate write of any pending snapshot.
	Flush() error
}
