package config

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/micro-nova/flick-go/internal/models"
)

// Normalize maps backend names written by older versions ("spotify",
// "appleMusic", "shortcuts") to the current ones. It fails if the backend
// is not recognised at all.
func Normalize(snap *models.Snapshot) error {
	if snap.SelectedBackend.Valid() {
		return nil
	}
	b, err := models.ParseBackend(string(snap.SelectedBackend))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	snap.SelectedBackend = b
	return nil
}

// decodeSnapshot parses a stored snapshot. Fields absent from the document
// keep their defaults. A backend nobody recognises falls back to the
// default one instead of failing the whole file.
func decodeSnapshot(data []byte) (models.Snapshot, error) {
	snap := models.DefaultSnapshot()
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, err
	}
	if err := Normalize(&snap); err != nil {
		def := models.DefaultSnapshot().SelectedBackend
		slog.Warn("config: unknown playback backend, using default",
			"backend", snap.SelectedBackend, "default", def)
		snap.SelectedBackend = def
	}
	return snap, nil
}

func encodeSnapshot(snap *models.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
