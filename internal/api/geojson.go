package api

import (
	"strings"

	"github.com/disasterwatch/alert-engine/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(events []models.Event) FeatureCollection {
	features := make([]Feature, 0, len(events))

	for _, e := range events {
		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{e.Coordinates.Lng, e.Coordinates.Lat},
			},
			Properties: map[string]any{
				"id":               e.ID,
				"type":             strings.ToLower(string(e.Type)),
				"severity":         string(e.Severity),
				"title":            e.Title,
				"location":         e.Location,
				"sms_dispatched":   e.SMSDispatched,
				"email_dispatched": e.EmailDispatched,
				"acknowledged":     e.Acknowledged,
				"created_at":       e.CreatedAt,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
