package dispatch

import (
	"context"
	"fmt"

	"github.com/disasterwatch/alert-engine/internal/geo"
	"github.com/disasterwatch/alert-engine/internal/models"
)

// recipientSource is the read-only registry view the selector needs.
type recipientSource interface {
	Recipients(ctx context.Context, region string) ([]models.Recipient, error)
}

// Selector filters the recipient registry down to those a broadcast should
// reach: opted in to the channel, with a known location inside the
// channel's radius. Result ordering is unspecified.
type Selector struct {
	registry recipientSource
	radiusKm map[models.Channel]float64
}

func NewSelector(registry recipientSource, radiusKm map[models.Channel]float64) *Selector {
	return &Selector{registry: registry, radiusKm: radiusKm}
}

func (s *Selector) Select(ctx context.Context, loc models.Coordinate, ch models.Channel) ([]models.Recipient, error) {
	radius, ok := s.radiusKm[ch]
	if !ok {
		return nil, fmt.Errorf("no broadcast radius configured for channel %q", ch)
	}

	all, err := s.registry.Recipients(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("loading recipients: %w", err)
	}

	var selected []models.Recipient
	for _, r := range all {
		if !r.OptedIn(ch) {
			continue
		}
		if r.Coordinates == nil {
			continue
		}
		if geo.DistanceKm(loc, *r.Coordinates) <= radius {
			selected = append(selected, r)
		}
	}
	return selected, nil
}
