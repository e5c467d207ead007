// Package ingest polls the sensor network feed and turns readings into
// pipeline events via a bounded worker pool.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/disasterwatch/alert-engine/internal/config"
	"github.com/disasterwatch/alert-engine/internal/engine"
	"github.com/disasterwatch/alert-engine/internal/models"
	"github.com/disasterwatch/alert-engine/internal/worker"
)

// eventCreator is the slice of the engine the ingestion path needs.
type eventCreator interface {
	CreateEvent(ctx context.Context, req engine.CreateRequest) (*models.Event, error)
}

type Manager struct {
	cfg     *config.Config
	creator eventCreator
	pool    *worker.Pool[Reading]
	wg      sync.WaitGroup

	mu   sync.Mutex
	seen map[string]struct{} // reading IDs already submitted
}

func NewManager(cfg *config.Config, creator eventCreator) *Manager {
	return &Manager{
		cfg:     cfg,
		creator: creator,
		seen:    map[string]struct{}{},
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, m.process)
	m.pool.Start(ctx)

	if m.cfg.Sources.SensorFeedEnabled {
		m.wg.Add(1)
		go m.runPoller(ctx, m.cfg.Sources.SensorFeedURL, m.cfg.Sources.SensorFeedPollInterval)
	}
}

func (m *Manager) process(ctx context.Context, r Reading) error {
	// Faulty sensors occasionally report negative readings. Drop them
	// before they reach classification.
	if r.Value < 0 {
		slog.Warn("discarding negative sensor reading", "id", r.ID, "value", r.Value)
		return nil
	}

	event, err := m.creator.CreateEvent(ctx, engine.CreateRequest{
		Type:         r.SensorType,
		Title:        readingTitle(r),
		Message:      fmt.Sprintf("Automated sensor reading of %.1f near %s.", r.Value, r.Location),
		SensorValue:  &r.Value,
		LocationText: r.Location,
		Coordinates:  r.Coordinates(),
	})
	if err != nil {
		slog.Error("error creating event from reading", "id", r.ID, "error", err)
		return err
	}

	slog.Info("ingested sensor reading", "reading", r.ID, "event", event.ID, "severity", event.Severity)
	return nil
}

func readingTitle(r Reading) string {
	typ := strings.ReplaceAll(strings.ToLower(r.SensorType), "_", " ")
	if r.Location == "" {
		return fmt.Sprintf("Sensor-detected %s", typ)
	}
	return fmt.Sprintf("Sensor-detected %s near %s", typ, r.Location)
}

func (m *Manager) runPoller(ctx context.Context, url string, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting sensor feed poller", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx, url)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sensor feed poller shutting down")
			return
		case <-ticker.C:
			m.poll(ctx, url)
		}
	}
}

func (m *Manager) poll(ctx context.Context, url string) {
	slog.Debug("polling sensor feed")

	readings, err := m.pollFeed(ctx, url)
	if err != nil {
		slog.Error("poll failed", "error", err)
		return
	}

	submitted := 0
	for _, r := range readings {
		if m.markSeen(r.ID) {
			continue
		}
		m.pool.Submit(r)
		submitted++
	}

	slog.Debug("poll complete", "readings", len(readings), "submitted", submitted)
}

// markSeen records the reading ID and reports whether it was already known.
func (m *Manager) markSeen(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[id]; ok {
		return true
	}
	m.seen[id] = struct{}{}
	return false
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("ingestion manager stopped")
}
