package store

import (
	"context"
	"fmt"
	"time"

	"github.com/disasterwatch/alert-engine/internal/models"
)

// Unavailable is the event store served while the primary database is
// corrupted: every operation fails with ErrCorrupted. Suppression checks
// fail open against it, so alerts still go out while the registry runs on
// its snapshot.
type Unavailable struct{}

func (Unavailable) err() error {
	return fmt.Errorf("event store unavailable: %w", ErrCorrupted)
}

func (u Unavailable) Insert(ctx context.Context, e *models.Event) error { return u.err() }

func (u Unavailable) GetByID(ctx context.Context, id string) (*models.Event, error) {
	return nil, u.err()
}

func (u Unavailable) List(ctx context.Context, f Filter) ([]models.Event, error) {
	return nil, u.err()
}

func (u Unavailable) DispatchedSince(ctx context.Context, since time.Time, ch models.Channel) ([]models.Event, error) {
	return nil, u.err()
}

func (u Unavailable) ByRegion(ctx context.Context, region string) ([]models.Event, error) {
	return nil, u.err()
}

func (u Unavailable) Acknowledge(ctx context.Context, id, by string, at time.Time) (bool, error) {
	return false, u.err()
}
