package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/disasterwatch/alert-engine/internal/engine"
	"github.com/disasterwatch/alert-engine/internal/models"
	"github.com/disasterwatch/alert-engine/internal/store"
	"github.com/disasterwatch/alert-engine/internal/stream"
)

// eventService is the slice of the engine the HTTP surface needs.
type eventService interface {
	CreateEvent(ctx context.Context, req engine.CreateRequest) (*models.Event, error)
	ListEvents(ctx context.Context, window, typeFilter string) ([]models.Event, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	Acknowledge(ctx context.Context, id, by string) (bool, error)
}

// recipientSource is the registry view exposed over HTTP. Degraded reports
// whether reads are being served from the snapshot fallback.
type recipientSource interface {
	Recipients(ctx context.Context, region string) ([]models.Recipient, error)
	Degraded() bool
}

type Handler struct {
	service     eventService
	recipients  recipientSource
	broadcaster *stream.Broadcaster
}

func NewHandler(service eventService, recipients recipientSource, broadcaster *stream.Broadcaster) *Handler {
	return &Handler{
		service:     service,
		recipients:  recipients,
		broadcaster: broadcaster,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/alerts", h.createAlert)
	r.GET("/api/alerts", h.getAlerts)
	r.GET("/api/alerts/stream", h.streamAlerts)
	r.GET("/api/alerts/:id", h.getAlert)
	r.POST("/api/alerts/:id/acknowledge", h.acknowledgeAlert)
	r.GET("/api/recipients", h.getRecipients)
	r.GET("/health", h.health)
}

type createAlertRequest struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	Severity    string   `json:"severity"`
	SensorValue *float64 `json:"sensor_value"`
	Location    string   `json:"location"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

// eventView is the JSON shape for a single alert.
type eventView struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Severity        string     `json:"severity"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	Location        string     `json:"location"`
	Lat             float64    `json:"lat"`
	Lng             float64    `json:"lng"`
	SensorValue     float64    `json:"sensor_value,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	SMSDispatched   bool       `json:"sms_dispatched"`
	EmailDispatched bool       `json:"email_dispatched"`
	Acknowledged    bool       `json:"acknowledged"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
}

func toView(e *models.Event) eventView {
	return eventView{
		ID:              e.ID,
		Type:            string(e.Type),
		Severity:        string(e.Severity),
		Title:           e.Title,
		Message:         e.Message,
		Location:        e.Location,
		Lat:             e.Coordinates.Lat,
		Lng:             e.Coordinates.Lng,
		SensorValue:     e.SensorValue,
		CreatedAt:       e.CreatedAt,
		SMSDispatched:   e.SMSDispatched,
		EmailDispatched: e.EmailDispatched,
		Acknowledged:    e.Acknowledged,
		AcknowledgedBy:  e.AcknowledgedBy,
		AcknowledgedAt:  e.AcknowledgedAt,
	}
}

func (h *Handler) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	createReq := engine.CreateRequest{
		Type:          req.Type,
		Title:         req.Title,
		Message:       req.Message,
		SeverityLabel: req.Severity,
		SensorValue:   req.SensorValue,
		LocationText:  req.Location,
	}
	if req.Lat != nil && req.Lng != nil {
		createReq.Coordinates = &models.Coordinate{Lat: *req.Lat, Lng: *req.Lng}
	}

	event, err := h.service.CreateEvent(c.Request.Context(), createReq)
	if err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert"})
		return
	}

	c.JSON(http.StatusCreated, toView(event))
}

func (h *Handler) getAlerts(c *gin.Context) {
	window := c.DefaultQuery("window", "30d")
	typeFilter := c.Query("type")

	events, err := h.service.ListEvents(c.Request.Context(), window, typeFilter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alerts"})
		return
	}

	fc := toGeoJSON(events)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) getAlert(c *gin.Context) {
	event, err := h.service.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alert"})
		return
	}
	c.JSON(http.StatusOK, toView(event))
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by" binding:"required"`
}

func (h *Handler) acknowledgeAlert(c *gin.Context) {
	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "acknowledged_by is required"})
		return
	}

	ok, err := h.service.Acknowledge(c.Request.Context(), c.Param("id"), req.AcknowledgedBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to acknowledge alert"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (h *Handler) getRecipients(c *gin.Context) {
	recipients, err := h.recipients.Recipients(c.Request.Context(), c.Query("region"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch recipients"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recipients": recipients,
		"degraded":   h.recipients.Degraded(),
	})
}

// streamAlerts pushes newly created alerts to the client as server-sent
// events until the client disconnects.
func (h *Handler) streamAlerts(c *gin.Context) {
	id, events := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("alert", toView(e))
			return true
		}
	})
}

func (h *Handler) health(c *gin.Context) {
	status := "ok"
	if h.recipients.Degraded() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"degraded": h.recipients.Degraded(),
	})
}
