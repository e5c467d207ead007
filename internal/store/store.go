// Package store persists event records and the recipient registry, with a
// local snapshot fallback for the recipient set when the primary database
// is corrupted.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/disasterwatch/alert-engine/internal/models"
)

var (
	// ErrNotFound is returned for point lookups of unknown ids.
	ErrNotFound = errors.New("record not found")

	// ErrCorrupted signals that the primary database failed its integrity
	// check on open.
	ErrCorrupted = errors.New("database corrupted")

	// ErrNoSnapshot signals corruption with no fallback snapshot to serve
	// from. Callers surface this as a hard degraded-mode failure.
	ErrNoSnapshot = errors.New("database corrupted and no fallback snapshot available")
)

// Filter narrows event listings.
type Filter struct {
	Since *time.Time
	Type  *models.EventType
	Limit int
}

// EventStore is the persistence surface for event records.
type EventStore interface {
	Insert(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, f Filter) ([]models.Event, error)

	// DispatchedSince returns events created at or after since whose
	// dispatch flag for the channel is set. This is the duplicate
	// suppression query.
	DispatchedSince(ctx context.Context, since time.Time, ch models.Channel) ([]models.Event, error)

	// ByRegion returns events whose location contains the substring,
	// case-insensitively.
	ByRegion(ctx context.Context, region string) ([]models.Event, error)

	// Acknowledge marks an event acknowledged. Returns false when the id
	// is unknown. Acknowledgement is monotonic and never reset.
	Acknowledge(ctx context.Context, id, by string, at time.Time) (bool, error)
}

// RecipientStore is the persistence surface for the recipient registry.
type RecipientStore interface {
	UpsertRecipient(ctx context.Context, r *models.Recipient) error
	Recipients(ctx context.Context, region string) ([]models.Recipient, error)
}
