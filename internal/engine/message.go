package engine

import (
	"fmt"
	"strings"

	"github.com/disasterwatch/alert-engine/internal/models"
)

// sensorUnits maps event types to the unit of their raw sensor reading,
// appended to outgoing notifications when a reading is present.
var sensorUnits = map[models.EventType]string{
	models.EventTypeEarthquake: "magnitude",
	models.EventTypeFlood:      "m water level",
	models.EventTypeCyclone:    "km/h wind speed",
	models.EventTypeWildfire:   "km² burn area",
	models.EventTypeTsunami:    "m wave height",
}

// composeBody builds the notification body sent to recipients: severity
// tag, the operator message, location, and the sensor reading when one
// was reported.
func composeBody(event *models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", event.Severity, event.Message)
	if event.Location != "" {
		fmt.Fprintf(&b, "\nLocation: %s", event.Location)
	}
	if event.SensorValue > 0 {
		unit, ok := sensorUnits[event.Type]
		if !ok {
			unit = "reading"
		}
		fmt.Fprintf(&b, "\nReported: %.1f %s", event.SensorValue, unit)
	}
	return b.String()
}
