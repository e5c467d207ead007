package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/disasterwatch/alert-engine/internal/engine"
	"github.com/disasterwatch/alert-engine/internal/models"
	"github.com/disasterwatch/alert-engine/internal/store"
	"github.com/disasterwatch/alert-engine/internal/stream"
)

// mockService implements eventService for testing
type mockService struct {
	events  []models.Event
	created []engine.CreateRequest
}

func (m *mockService) CreateEvent(ctx context.Context, req engine.CreateRequest) (*models.Event, error) {
	if req.Title == "" {
		return nil, &engine.ValidationError{Field: "title", Reason: "required"}
	}
	m.created = append(m.created, req)
	e := models.Event{
		ID:            "ev-1",
		Type:          models.EventType(req.Type),
		Severity:      models.SeverityHigh,
		Title:         req.Title,
		Message:       req.Message,
		Location:      req.LocationText,
		Coordinates:   models.Coordinate{Lat: 19.076, Lng: 72.8777},
		CreatedAt:     time.Now().UTC(),
		SMSDispatched: true,
	}
	m.events = append(m.events, e)
	return &e, nil
}

func (m *mockService) ListEvents(ctx context.Context, window, typeFilter string) ([]models.Event, error) {
	if typeFilter == "" || typeFilter == "all" {
		return m.events, nil
	}
	var filtered []models.Event
	for _, e := range m.events {
		if strings.EqualFold(string(e.Type), typeFilter) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (m *mockService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	for _, e := range m.events {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockService) Acknowledge(ctx context.Context, id, by string) (bool, error) {
	for _, e := range m.events {
		if e.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// mockRecipients implements recipientSource for testing
type mockRecipients struct {
	recipients []models.Recipient
	degraded   bool
}

func (m *mockRecipients) Recipients(ctx context.Context, region string) ([]models.Recipient, error) {
	if region == "" {
		return m.recipients, nil
	}
	var filtered []models.Recipient
	for _, r := range m.recipients {
		if strings.EqualFold(r.Region, region) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func (m *mockRecipients) Degraded() bool { return m.degraded }

func setupTestRouter(svc eventService, recs recipientSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(svc, recs, stream.NewBroadcaster())
	handler.RegisterRoutes(router)
	return router
}

func sampleEvent(id string, typ models.EventType) models.Event {
	return models.Event{
		ID:          id,
		Type:        typ,
		Severity:    models.SeverityMedium,
		Title:       "title " + id,
		Message:     "message",
		Location:    "Mumbai, Maharashtra",
		Coordinates: models.Coordinate{Lat: 19.076, Lng: 72.8777},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestCreateAlert(t *testing.T) {
	svc := &mockService{}
	router := setupTestRouter(svc, &mockRecipients{})

	body := `{"type":"EARTHQUAKE","title":"Tremors","message":"Move out","severity":"HIGH","location":"Mumbai, Maharashtra"}`
	req := httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var view eventView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if view.ID != "ev-1" || view.Title != "Tremors" || !view.SMSDispatched {
		t.Errorf("unexpected view: %+v", view)
	}
	if len(svc.created) != 1 || svc.created[0].SeverityLabel != "HIGH" {
		t.Errorf("service saw %+v", svc.created)
	}
}

func TestCreateAlert_ValidationError(t *testing.T) {
	router := setupTestRouter(&mockService{}, &mockRecipients{})

	req := httptest.NewRequest(http.MethodPost, "/api/alerts",
		strings.NewReader(`{"type":"FLOOD","message":"m","severity":"LOW","location":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "title") {
		t.Errorf("error body should name the field: %s", w.Body.String())
	}
}

func TestGetAlerts_ReturnsGeoJSON(t *testing.T) {
	svc := &mockService{events: []models.Event{
		sampleEvent("e1", models.EventTypeEarthquake),
		sampleEvent("e2", models.EventTypeFlood),
	}}
	router := setupTestRouter(svc, &mockRecipients{})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts?window=24h", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "geo+json") {
		t.Errorf("Content-Type = %q, want application/geo+json", ct)
	}

	var fc FeatureCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("collection = %+v", fc)
	}
	got := fc.Features[0]
	if got.Geometry.Type != "Point" || got.Geometry.Coordinates[0] != 72.8777 {
		t.Errorf("geometry = %+v, want [lng lat] Point", got.Geometry)
	}
	if got.Properties["severity"] != "MEDIUM" {
		t.Errorf("severity property = %v", got.Properties["severity"])
	}
}

func TestGetAlerts_TypeFilter(t *testing.T) {
	svc := &mockService{events: []models.Event{
		sampleEvent("e1", models.EventTypeEarthquake),
		sampleEvent("e2", models.EventTypeFlood),
	}}
	router := setupTestRouter(svc, &mockRecipients{})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts?type=flood", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var fc FeatureCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].Properties["id"] != "e2" {
		t.Errorf("features = %+v, want just e2", fc.Features)
	}
}

func TestGetAlert_NotFound(t *testing.T) {
	router := setupTestRouter(&mockService{}, &mockRecipients{})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	svc := &mockService{events: []models.Event{sampleEvent("e1", models.EventTypeFlood)}}
	router := setupTestRouter(svc, &mockRecipients{})

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/e1/acknowledge",
		strings.NewReader(`{"acknowledged_by":"operator-7"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	// Unknown id
	req = httptest.NewRequest(http.MethodPost, "/api/alerts/nope/acknowledge",
		strings.NewReader(`{"acknowledged_by":"operator-7"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	// Missing acknowledged_by
	req = httptest.NewRequest(http.MethodPost, "/api/alerts/e1/acknowledge", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetRecipients(t *testing.T) {
	recs := &mockRecipients{recipients: []models.Recipient{
		{ID: "r1", Region: "maharashtra"},
		{ID: "r2", Region: "goa"},
	}}
	router := setupTestRouter(&mockService{}, recs)

	req := httptest.NewRequest(http.MethodGet, "/api/recipients?region=goa", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Recipients []models.Recipient `json:"recipients"`
		Degraded   bool               `json:"degraded"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Recipients) != 1 || resp.Recipients[0].ID != "r2" {
		t.Errorf("recipients = %+v, want just r2", resp.Recipients)
	}
	if resp.Degraded {
		t.Error("degraded = true, want false")
	}
}

func TestHealth_DegradedFlag(t *testing.T) {
	router := setupTestRouter(&mockService{}, &mockRecipients{degraded: true})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"degraded"`) {
		t.Errorf("body = %s, want degraded status", w.Body.String())
	}
}

func TestStreamAlerts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	bus := stream.NewBroadcaster()
	defer bus.Close()
	NewHandler(&mockService{}, &mockRecipients{}, bus).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/alerts/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	// Let the subscription register before publishing.
	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	e := sampleEvent("e1", models.EventTypeTsunami)
	bus.Publish(&e)

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	chunk := string(buf[:n])
	if !strings.Contains(chunk, "event:alert") || !strings.Contains(chunk, `"id":"e1"`) {
		t.Errorf("stream chunk = %q, want alert event for e1", chunk)
	}
	cancel()
}
