// Package geocode resolves place names to coordinates through a
// Nominatim-compatible lookup service. Resolution is opportunistic: any
// lookup failure falls back to a fixed configurable coordinate so event
// creation never blocks on geocoding.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/disasterwatch/alert-engine/internal/models"
)

const userAgent = "DisasterWatchApp/1.0"

// ErrNotFound is returned when the lookup service has no match for the
// query.
var ErrNotFound = errors.New("location not found")

// Geocoder converts a place description to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, city, state, country string) (models.Coordinate, error)
}

// Client queries a Nominatim-style search endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (c *Client) Resolve(ctx context.Context, city, state, country string) (models.Coordinate, error) {
	q := city
	if state != "" {
		q += ", " + state
	}
	if country != "" {
		q += ", " + country
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("building geocode request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Coordinate{}, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return models.Coordinate{}, fmt.Errorf("decoding geocode response: %w", err)
	}
	if len(results) == 0 {
		return models.Coordinate{}, ErrNotFound
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("parsing geocode latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("parsing geocode longitude: %w", err)
	}

	coord := models.Coordinate{Lat: lat, Lng: lng}
	if !coord.Valid() {
		return models.Coordinate{}, fmt.Errorf("geocode returned out-of-range coordinate %+v", coord)
	}
	return coord, nil
}

// Resolver wraps a Geocoder with the fixed-fallback policy: on NotFound or
// any transport error it substitutes the configured default coordinate
// (center of the served territory) instead of failing the request.
type Resolver struct {
	inner    Geocoder
	fallback models.Coordinate
}

func NewResolver(inner Geocoder, fallback models.Coordinate) *Resolver {
	return &Resolver{inner: inner, fallback: fallback}
}

// Resolve never fails; the second return value reports whether the lookup
// actually succeeded or the fallback was used.
func (r *Resolver) Resolve(ctx context.Context, city, state, country string) (models.Coordinate, bool) {
	coord, err := r.inner.Resolve(ctx, city, state, country)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("geocoding failed, using default coordinate", "city", city, "state", state, "error", err)
		}
		return r.fallback, false
	}
	return coord, true
}
