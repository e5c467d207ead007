package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/disasterwatch/alert-engine/internal/models"
)

type feedResponse struct {
	Readings []Reading `json:"readings"`
}

// Reading is one observation from the sensor network feed.
type Reading struct {
	ID         string   `json:"id"`
	SensorType string   `json:"sensor_type"`
	Value      float64  `json:"value"`
	Location   string   `json:"location"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
	RecordedAt int64    `json:"recorded_at"` // unix ms
}

// Coordinates returns the reading's position when the feed supplied one.
func (r Reading) Coordinates() *models.Coordinate {
	if r.Lat == nil || r.Lng == nil {
		return nil
	}
	return &models.Coordinate{Lat: *r.Lat, Lng: *r.Lng}
}

func (m *Manager) pollFeed(ctx context.Context, url string) ([]Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	client := &http.Client{
		Timeout: 15 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return data.Readings, nil
}
