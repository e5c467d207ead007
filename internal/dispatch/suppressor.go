// Package dispatch implements the decision half of the pipeline: duplicate
// suppression, recipient selection, and round-based broadcast delivery.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/disasterwatch/alert-engine/internal/geo"
	"github.com/disasterwatch/alert-engine/internal/models"
)

// dispatchedQuerier is the slice of the alert store the suppressor needs.
type dispatchedQuerier interface {
	DispatchedSince(ctx context.Context, since time.Time, ch models.Channel) ([]models.Event, error)
}

// Suppressor decides whether a new event at a location is a duplicate of
// one already broadcast nearby within the suppression window.
type Suppressor struct {
	store    dispatchedQuerier
	window   time.Duration
	radiusKm float64
	clock    clockwork.Clock
}

func NewSuppressor(store dispatchedQuerier, window time.Duration, radiusKm float64, clock clockwork.Clock) *Suppressor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Suppressor{store: store, window: window, radiusKm: radiusKm, clock: clock}
}

// ShouldDispatch returns false when an event with the channel's dispatch
// flag set exists within radiusKm and the window. The decision fails OPEN:
// if the store query errors, a potentially life-critical alert is sent
// rather than silently dropped.
func (s *Suppressor) ShouldDispatch(ctx context.Context, loc models.Coordinate, ch models.Channel) bool {
	since := s.clock.Now().Add(-s.window)

	recent, err := s.store.DispatchedSince(ctx, since, ch)
	if err != nil {
		slog.Error("suppression query failed, failing open", "channel", ch, "error", err)
		return true
	}

	for _, e := range recent {
		d := geo.DistanceKm(loc, e.Coordinates)
		if d <= s.radiusKm {
			slog.Info("broadcast suppressed, similar alert already dispatched nearby",
				"channel", ch, "existing_id", e.ID, "distance_km", d)
			return false
		}
	}
	return true
}
