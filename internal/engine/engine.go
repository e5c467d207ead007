// Package engine coordinates the decision-and-dispatch pipeline: resolve
// the event's location, decide suppression per channel, persist the record,
// then fan notifications out.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/disasterwatch/alert-engine/internal/dispatch"
	"github.com/disasterwatch/alert-engine/internal/models"
	"github.com/disasterwatch/alert-engine/internal/observability"
	"github.com/disasterwatch/alert-engine/internal/severity"
	"github.com/disasterwatch/alert-engine/internal/store"
	"github.com/disasterwatch/alert-engine/internal/stream"
)

// ValidationError rejects a malformed creation request before any
// suppression or dispatch logic runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// locationResolver is the opportunistic geocoding port. The bool reports
// whether the lookup succeeded or the fixed fallback coordinate was used.
type locationResolver interface {
	Resolve(ctx context.Context, city, state, country string) (models.Coordinate, bool)
}

// CreateRequest is one inbound event report. Severity comes either from an
// explicit label (web-facing variant) or from a raw sensor value run
// through the classifier (sensor-driven variant).
type CreateRequest struct {
	Type          string
	Title         string
	Message       string
	SeverityLabel string
	SensorValue   *float64
	LocationText  string             // "City, State"
	Coordinates   *models.Coordinate // overrides geocoding when set
}

type Engine struct {
	store       store.EventStore
	resolver    locationResolver
	classifier  *severity.Classifier
	suppressor  *dispatch.Suppressor
	selector    *dispatch.Selector
	dispatcher  *dispatch.Dispatcher
	broadcaster *stream.Broadcaster
	metrics     *observability.Metrics
	clock       clockwork.Clock

	wg sync.WaitGroup // in-flight broadcasts
}

func New(
	eventStore store.EventStore,
	resolver locationResolver,
	classifier *severity.Classifier,
	suppressor *dispatch.Suppressor,
	selector *dispatch.Selector,
	dispatcher *dispatch.Dispatcher,
	broadcaster *stream.Broadcaster,
	metrics *observability.Metrics,
	clock clockwork.Clock,
) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		store:       eventStore,
		resolver:    resolver,
		classifier:  classifier,
		suppressor:  suppressor,
		selector:    selector,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		metrics:     metrics,
		clock:       clock,
	}
}

// broadcastChannels are the channels that carry a dispatch flag.
var broadcastChannels = []models.Channel{models.ChannelSMS, models.ChannelEmail}

// CreateEvent runs the full pipeline for one report. The record is always
// persisted, even when every channel is suppressed; the dispatch flags are
// a permanent audit of the suppression decision made here. Delivery runs
// detached from the request context so a client disconnect never abandons
// in-flight rounds.
func (e *Engine) CreateEvent(ctx context.Context, req CreateRequest) (*models.Event, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	sev, err := e.resolveSeverity(req)
	if err != nil {
		return nil, err
	}

	loc := e.resolveLocation(ctx, req)

	// Suppression and recipient selection are independent read-only scans;
	// run them concurrently, joined before the record is written.
	flags := make(map[models.Channel]bool, len(broadcastChannels))
	selected := make(map[models.Channel][]models.Recipient, len(broadcastChannels))
	var mu sync.Mutex
	var scans sync.WaitGroup

	for _, ch := range broadcastChannels {
		scans.Add(2)
		go func(ch models.Channel) {
			defer scans.Done()
			ok := e.suppressor.ShouldDispatch(ctx, loc, ch)
			mu.Lock()
			flags[ch] = ok
			mu.Unlock()
		}(ch)
		go func(ch models.Channel) {
			defer scans.Done()
			recipients, err := e.selector.Select(ctx, loc, ch)
			if err != nil {
				// Selection failure degrades to an empty broadcast; the
				// record and its flags are still written.
				slog.Error("recipient selection failed", "channel", ch, "error", err)
				recipients = nil
			}
			mu.Lock()
			selected[ch] = recipients
			mu.Unlock()
		}(ch)
	}
	scans.Wait()

	event := &models.Event{
		ID:              uuid.NewString(),
		Type:            models.EventType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Severity:        sev,
		Title:           strings.TrimSpace(req.Title),
		Message:         strings.TrimSpace(req.Message),
		Location:        strings.TrimSpace(req.LocationText),
		Coordinates:     loc,
		CreatedAt:       e.clock.Now().UTC(),
		SMSDispatched:   flags[models.ChannelSMS],
		EmailDispatched: flags[models.ChannelEmail],
	}
	if req.SensorValue != nil {
		event.SensorValue = *req.SensorValue
	}

	if err := e.store.Insert(ctx, event); err != nil {
		// Failing to persist must not block a life-critical broadcast; a
		// degraded store is already surfaced through /health.
		slog.Error("failed to persist event, continuing with dispatch", "event", event.ID, "error", err)
	}

	if e.metrics != nil {
		e.metrics.EventsCreated.Inc()
		for _, ch := range broadcastChannels {
			if !flags[ch] {
				e.metrics.EventsSuppressed.WithLabelValues(string(ch)).Inc()
			}
		}
	}
	if e.broadcaster != nil {
		e.broadcaster.Publish(event)
	}

	for _, ch := range broadcastChannels {
		if !flags[ch] {
			slog.Info("broadcast suppressed for channel", "event", event.ID, "channel", ch)
			continue
		}
		e.wg.Add(1)
		go func(ch models.Channel, recipients []models.Recipient) {
			defer e.wg.Done()
			// The record is durable; partial notification beats none, so
			// delivery survives request cancellation.
			bctx := context.WithoutCancel(ctx)
			if _, err := e.dispatcher.Dispatch(bctx, recipients, event.Title, composeBody(event), ch); err != nil {
				slog.Error("broadcast failed", "event", event.ID, "channel", ch, "error", err)
			}
		}(ch, selected[ch])
	}

	return event, nil
}

func validate(req CreateRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Field: "message", Reason: "required"}
	}
	if strings.TrimSpace(req.Type) == "" {
		return &ValidationError{Field: "type", Reason: "required"}
	}
	hasCoords := req.Coordinates != nil && !req.Coordinates.IsZero()
	if hasCoords && !req.Coordinates.Valid() {
		return &ValidationError{Field: "coordinates", Reason: "out of range"}
	}
	if !hasCoords && strings.TrimSpace(req.LocationText) == "" {
		return &ValidationError{Field: "location", Reason: "required"}
	}
	if req.SensorValue == nil && strings.TrimSpace(req.SeverityLabel) == "" {
		return &ValidationError{Field: "severity", Reason: "severity label or sensor value required"}
	}
	if req.SensorValue != nil && *req.SensorValue < 0 {
		return &ValidationError{Field: "sensor_value", Reason: "must be non-negative"}
	}
	return nil
}

func (e *Engine) resolveSeverity(req CreateRequest) (models.Severity, error) {
	if req.SensorValue != nil {
		typ := models.EventType(strings.ToUpper(strings.TrimSpace(req.Type)))
		return e.classifier.Classify(typ, *req.SensorValue), nil
	}
	sev, ok := models.ParseSeverity(req.SeverityLabel)
	if !ok {
		return "", &ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown label %q", req.SeverityLabel)}
	}
	return sev, nil
}

// resolveLocation prefers client-supplied coordinates, then geocoding of
// the location text; any lookup failure lands on the configured default.
func (e *Engine) resolveLocation(ctx context.Context, req CreateRequest) models.Coordinate {
	if req.Coordinates != nil && !req.Coordinates.IsZero() {
		return *req.Coordinates
	}

	city, state := splitLocation(req.LocationText)
	coord, resolved := e.resolver.Resolve(ctx, city, state, "")
	if !resolved && e.metrics != nil {
		e.metrics.GeocodeFallbacks.Inc()
	}
	return coord
}

func splitLocation(text string) (city, state string) {
	parts := strings.SplitN(text, ",", 2)
	city = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		state = strings.TrimSpace(parts[1])
	}
	return city, state
}

// ListEvents returns events inside the named window ("24h", "7d", "30d"),
// optionally filtered by type. Unknown windows fall back to 30 days.
func (e *Engine) ListEvents(ctx context.Context, window, typeFilter string) ([]models.Event, error) {
	now := e.clock.Now().UTC()
	var since time.Time
	switch window {
	case "24h":
		since = now.Add(-24 * time.Hour)
	case "7d":
		since = now.Add(-7 * 24 * time.Hour)
	default:
		since = now.Add(-30 * 24 * time.Hour)
	}

	f := store.Filter{Since: &since}
	if typeFilter != "" && typeFilter != "all" {
		typ := models.EventType(strings.ToUpper(typeFilter))
		f.Type = &typ
	}
	return e.store.List(ctx, f)
}

// GetEvent returns one event by id.
func (e *Engine) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return e.store.GetByID(ctx, id)
}

// Acknowledge marks an event acknowledged by an operator. Returns false
// for unknown ids.
func (e *Engine) Acknowledge(ctx context.Context, id, by string) (bool, error) {
	return e.store.Acknowledge(ctx, id, by, e.clock.Now().UTC())
}

// Close waits for in-flight broadcasts to drain.
func (e *Engine) Close() {
	e.wg.Wait()
}
