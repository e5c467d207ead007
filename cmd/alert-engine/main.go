package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/disasterwatch/alert-engine/internal/api"
	"github.com/disasterwatch/alert-engine/internal/config"
	"github.com/disasterwatch/alert-engine/internal/dispatch"
	"github.com/disasterwatch/alert-engine/internal/engine"
	"github.com/disasterwatch/alert-engine/internal/gateway"
	"github.com/disasterwatch/alert-engine/internal/geocode"
	"github.com/disasterwatch/alert-engine/internal/ingest"
	"github.com/disasterwatch/alert-engine/internal/logging"
	"github.com/disasterwatch/alert-engine/internal/models"
	"github.com/disasterwatch/alert-engine/internal/observability"
	"github.com/disasterwatch/alert-engine/internal/severity"
	"github.com/disasterwatch/alert-engine/internal/store"
	"github.com/disasterwatch/alert-engine/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	metrics := observability.NewMetrics()

	// The registry enters snapshot-fallback mode when the primary fails its
	// integrity check; anything else is fatal.
	primary, openErr := store.OpenSQLite(cfg.DB.Path)
	registry, err := store.OpenRegistry(primary, openErr, cfg.DB.SnapshotPath, func() (*store.SQLite, error) {
		return store.OpenSQLite(cfg.DB.Path)
	})
	if err != nil {
		if errors.Is(err, store.ErrNoSnapshot) {
			logging.Fatalf("Database corrupted with no fallback snapshot: %v", err)
		}
		logging.Fatalf("Failed to initialize database: %v", err)
	}

	var events store.EventStore
	if registry.Degraded() {
		metrics.StoreFallback.Set(1)
		events = store.Unavailable{}
	} else {
		events = primary
		defer primary.Close()
	}

	classifier := severity.NewClassifier()
	if cfg.Alerting.ThresholdsPath != "" {
		classifier, err = severity.LoadFile(cfg.Alerting.ThresholdsPath)
		if err != nil {
			logging.Fatalf("Failed to load severity thresholds: %v", err)
		}
	}

	geocoder := geocode.NewCachedGeocoder(
		geocode.NewClient(cfg.Geocoder.URL, cfg.Geocoder.Timeout),
		cfg.Geocoder.CacheSize,
	)
	resolver := geocode.NewResolver(geocoder, models.Coordinate{
		Lat: cfg.Geocoder.DefaultLat,
		Lng: cfg.Geocoder.DefaultLng,
	})

	httpClient := &http.Client{Timeout: cfg.Alerting.DeliveryTimeout}
	gateways := []gateway.Gateway{
		dispatch.WithRetry(
			gateway.NewSMSGateway(cfg.Gateways.SMSURL, cfg.Gateways.SMSFrom, cfg.Gateways.DefaultCountryCode, httpClient),
			cfg.Alerting.MaxRetryAttempts, cfg.Alerting.RetryBaseDelay),
		dispatch.WithRetry(
			gateway.NewEmailGateway(cfg.Gateways.EmailURL, cfg.Gateways.EmailFrom, httpClient),
			cfg.Alerting.MaxRetryAttempts, cfg.Alerting.RetryBaseDelay),
	}

	clock := clockwork.NewRealClock()
	broadcaster := stream.NewBroadcaster()

	eng := engine.New(
		events,
		resolver,
		classifier,
		dispatch.NewSuppressor(events, cfg.Alerting.SuppressionWindow, cfg.Alerting.SuppressionRadiusKm, clock),
		dispatch.NewSelector(registry, map[models.Channel]float64{
			models.ChannelSMS:   cfg.Alerting.SMSRadiusKm,
			models.ChannelEmail: cfg.Alerting.EmailRadiusKm,
		}),
		dispatch.NewDispatcher(gateways, cfg.Alerting.MaxRounds, cfg.Alerting.DeliveryWorkers, cfg.Alerting.DeliveryTimeout, metrics),
		broadcaster,
		metrics,
		clock,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sensor feed ingestion
	mgr := ingest.NewManager(cfg, eng)
	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(5, 10)) // 5 req/s global limit

	handler := api.NewHandler(eng, registry, broadcaster)
	handler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	eng.Close() // wait for in-flight broadcasts
	broadcaster.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
