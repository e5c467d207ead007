// Package severity maps raw sensor readings to discrete alert tiers using
// per-type threshold tables.
package severity

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/disasterwatch/alert-engine/internal/models"
)

// Step is one rung of a threshold table: readings at or above Threshold
// qualify for at least Tier.
type Step struct {
	Threshold float64         `json:"threshold"`
	Tier      models.Severity `json:"tier"`
}

// Classifier holds ascending threshold tables keyed by event type, plus a
// generic table for types without their own.
type Classifier struct {
	tables  map[models.EventType][]Step
	generic []Step
}

// NewClassifier returns a classifier with the built-in tables.
func NewClassifier() *Classifier {
	return &Classifier{
		tables: map[models.EventType][]Step{
			models.EventTypeEarthquake: {
				{3.0, models.SeverityLow},
				{5.0, models.SeverityMedium},
				{6.5, models.SeverityHigh},
				{7.5, models.SeverityCritical},
				{8.5, models.SeverityCatastrophic},
			},
			models.EventTypeTsunami: {
				{0.5, models.SeverityLow},
				{2.0, models.SeverityMedium},
				{5.0, models.SeverityHigh},
				{10.0, models.SeverityCritical},
				{15.0, models.SeverityCatastrophic},
			},
			models.EventTypeFlood: {
				{1.0, models.SeverityLow},
				{3.0, models.SeverityMedium},
				{5.0, models.SeverityHigh},
				{8.0, models.SeverityCritical},
				{10.0, models.SeverityCatastrophic},
			},
			models.EventTypeCyclone: {
				{65, models.SeverityLow},
				{120, models.SeverityMedium},
				{180, models.SeverityHigh},
				{250, models.SeverityCritical},
				{300, models.SeverityCatastrophic},
			},
		},
		generic: []Step{
			{1, models.SeverityLow},
			{3, models.SeverityMedium},
			{5, models.SeverityHigh},
			{8, models.SeverityCritical},
			{10, models.SeverityCatastrophic},
		},
	}
}

// LoadFile replaces threshold tables from a JSON file so operators can tune
// them without a redeploy. The file maps event type to a list of steps; a
// "DEFAULT" key replaces the generic table. Tables keep their built-in
// values for types the file does not mention.
func LoadFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading threshold file: %w", err)
	}

	var raw map[string][]Step
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing threshold file: %w", err)
	}

	c := NewClassifier()
	for typ, steps := range raw {
		if len(steps) == 0 {
			return nil, fmt.Errorf("empty threshold table for %q", typ)
		}
		for _, s := range steps {
			if !s.Tier.Valid() {
				return nil, fmt.Errorf("unknown tier %q for %q", s.Tier, typ)
			}
		}
		sort.Slice(steps, func(i, j int) bool {
			return steps[i].Threshold < steps[j].Threshold
		})
		if strings.EqualFold(typ, "DEFAULT") {
			c.generic = steps
			continue
		}
		c.tables[models.EventType(strings.ToUpper(typ))] = steps
	}
	return c, nil
}

// Classify returns the highest tier whose threshold is at or below value.
// Readings below every threshold classify as the table's lowest tier; a
// classification always succeeds.
func (c *Classifier) Classify(eventType models.EventType, value float64) models.Severity {
	steps, ok := c.tables[eventType]
	if !ok {
		steps = c.generic
	}

	tier := steps[0].Tier
	for _, s := range steps {
		if value >= s.Threshold {
			tier = s.Tier
		}
	}
	return tier
}
