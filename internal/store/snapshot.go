package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disasterwatch/alert-engine/internal/models"
)

// snapshotFile is the on-disk format of the recipient fallback cache. Only
// the recipient set is cached; event records are never snapshotted.
type snapshotFile struct {
	SavedAt    time.Time          `json:"saved_at"`
	Recipients []models.Recipient `json:"recipients"`
}

// Snapshot is a last-known-good copy of the recipient registry, persisted
// as JSON and refreshed opportunistically after successful writes.
type Snapshot struct {
	path string
}

func NewSnapshot(path string) *Snapshot {
	return &Snapshot{path: path}
}

// Save writes the recipient set atomically (write to temp file, rename).
func (s *Snapshot) Save(recipients []models.Recipient, at time.Time) error {
	data, err := json.MarshalIndent(snapshotFile{SavedAt: at, Recipients: recipients}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Load reads the last snapshot. Returns ErrNoSnapshot when none exists.
func (s *Snapshot) Load() ([]models.Recipient, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return f.Recipients, nil
}
