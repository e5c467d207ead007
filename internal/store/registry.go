package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/disasterwatch/alert-engine/internal/models"
)

// Registry serves the recipient set from the primary database, falling back
// to the last JSON snapshot when the primary is corrupted. Writes refresh
// the snapshot opportunistically so it stays eventually consistent, and
// while degraded every write first retries the primary.
type Registry struct {
	mu       sync.RWMutex
	primary  *SQLite // nil while degraded
	open     func() (*SQLite, error)
	snapshot *Snapshot
	degraded bool
}

// OpenRegistry wires the registry to an already-opened primary, or enters
// degraded mode serving the snapshot when openErr signals corruption.
// Corruption with no snapshot on disk returns ErrNoSnapshot.
func OpenRegistry(primary *SQLite, openErr error, snapshotPath string, reopen func() (*SQLite, error)) (*Registry, error) {
	r := &Registry{
		primary:  primary,
		open:     reopen,
		snapshot: NewSnapshot(snapshotPath),
	}

	if openErr == nil {
		return r, nil
	}
	if !errors.Is(openErr, ErrCorrupted) {
		return nil, openErr
	}

	// Primary is corrupt: verify we have something to serve before
	// accepting requests.
	if _, err := r.snapshot.Load(); err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return nil, fmt.Errorf("%w: %w", ErrNoSnapshot, openErr)
		}
		return nil, err
	}

	r.degraded = true
	slog.Error("primary store corrupted, serving recipients from fallback snapshot", "snapshot", snapshotPath)
	return r, nil
}

// Degraded reports whether the registry is running off the fallback
// snapshot. Surfaced to operators through /health and a metrics gauge.
func (r *Registry) Degraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded
}

// Recipients returns the recipient set, region-filtered when region is
// non-empty. In degraded mode the snapshot is served; a healthy read also
// refreshes the snapshot so the cache trails the primary.
func (r *Registry) Recipients(ctx context.Context, region string) ([]models.Recipient, error) {
	r.mu.RLock()
	primary, degraded := r.primary, r.degraded
	r.mu.RUnlock()

	if !degraded {
		recipients, err := primary.Recipients(ctx, "")
		if err == nil {
			if serr := r.snapshot.Save(recipients, time.Now().UTC()); serr != nil {
				slog.Warn("failed to refresh recipient snapshot", "error", serr)
			}
			return filterRegion(recipients, region), nil
		}
		slog.Error("primary recipient query failed, falling back to snapshot", "error", err)
	}

	cached, err := r.snapshot.Load()
	if err != nil {
		return nil, err
	}
	return filterRegion(cached, region), nil
}

// Upsert writes a recipient. While degraded it first attempts a reconnect;
// if the primary is still unavailable the write lands in the snapshot only.
func (r *Registry) Upsert(ctx context.Context, rec *models.Recipient) error {
	r.mu.Lock()
	if r.degraded && r.open != nil {
		if primary, err := r.open(); err == nil {
			r.primary = primary
			r.degraded = false
			slog.Info("reconnected to primary store, leaving fallback mode")
		}
	}
	primary, degraded := r.primary, r.degraded
	r.mu.Unlock()

	if !degraded {
		if err := primary.UpsertRecipient(ctx, rec); err != nil {
			return err
		}
		if recipients, err := primary.Recipients(ctx, ""); err == nil {
			if serr := r.snapshot.Save(recipients, time.Now().UTC()); serr != nil {
				slog.Warn("failed to refresh recipient snapshot", "error", serr)
			}
		}
		return nil
	}

	cached, err := r.snapshot.Load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range cached {
		if cached[i].ID == rec.ID {
			cached[i] = *rec
			replaced = true
			break
		}
	}
	if !replaced {
		cached = append(cached, *rec)
	}
	return r.snapshot.Save(cached, time.Now().UTC())
}

func filterRegion(recipients []models.Recipient, region string) []models.Recipient {
	if region == "" {
		return recipients
	}
	var out []models.Recipient
	for _, rec := range recipients {
		if strings.EqualFold(rec.Region, region) {
			out = append(out, rec)
		}
	}
	return out
}
