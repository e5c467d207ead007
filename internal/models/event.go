package models

import "time"

type EventType string

const (
	EventTypeEarthquake       EventType = "EARTHQUAKE"
	EventTypeTsunami          EventType = "TSUNAMI"
	EventTypeFlood            EventType = "FLOOD"
	EventTypeCyclone          EventType = "CYCLONE"
	EventTypeWildfire         EventType = "WILDFIRE"
	EventTypeVolcanicEruption EventType = "VOLCANIC_ERUPTION"
	EventTypeLandslide        EventType = "LANDSLIDE"
)

// Event is one disaster report/alert. It is persisted once at creation and
// never deleted; only the acknowledgement fields change afterwards.
type Event struct {
	ID          string
	Type        EventType // free-form strings are accepted from the web surface
	Severity    Severity
	Title       string
	Message     string
	Location    string // human-readable, e.g. "Mumbai, Maharashtra"
	Coordinates Coordinate
	SensorValue float64 // raw reading for sensor-driven events, 0 otherwise
	CreatedAt   time.Time

	// Dispatch flags record the suppression decision made at creation time.
	// They are written exactly once and never re-evaluated.
	SMSDispatched   bool
	EmailDispatched bool

	Acknowledged   bool
	AcknowledgedBy string
	AcknowledgedAt *time.Time
}

// DispatchFlag returns the audit flag for the given channel.
func (e *Event) DispatchFlag(ch Channel) bool {
	switch ch {
	case ChannelSMS:
		return e.SMSDispatched
	case ChannelEmail:
		return e.EmailDispatched
	default:
		return false
	}
}
