package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	DB        DatabaseConfig
	Geocoder  GeocoderConfig
	Alerting  AlertingConfig
	Gateways  GatewayConfig
	Worker    WorkerConfig
	Sources   SourcesConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Path         string
	SnapshotPath string
}

type GeocoderConfig struct {
	URL        string
	Timeout    time.Duration
	CacheSize  int
	DefaultLat float64
	DefaultLng float64
}

type AlertingConfig struct {
	SuppressionWindow   time.Duration
	SuppressionRadiusKm float64
	SMSRadiusKm         float64
	EmailRadiusKm       float64
	MaxRounds           int
	DeliveryWorkers     int
	DeliveryTimeout     time.Duration
	RetryBaseDelay      time.Duration
	MaxRetryAttempts    int
	ThresholdsPath      string
}

type GatewayConfig struct {
	SMSURL             string
	SMSFrom            string
	DefaultCountryCode string
	EmailURL           string
	EmailFrom          string
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SourcesConfig struct {
	SensorFeedEnabled      bool
	SensorFeedURL          string
	SensorFeedPollInterval time.Duration
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		DB: DatabaseConfig{
			Path:         getEnv("DB_PATH", "./data/alert-engine.db"),
			SnapshotPath: getEnv("DB_SNAPSHOT_PATH", "./cache/recipients_snapshot.json"),
		},
		Geocoder: GeocoderConfig{
			URL:        getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
			Timeout:    getEnvDuration("GEOCODER_TIMEOUT", 5*time.Second),
			CacheSize:  getEnvInt("GEOCODER_CACHE_SIZE", 512),
			DefaultLat: getEnvFloat("GEOCODER_DEFAULT_LAT", 20.5937), // center of India
			DefaultLng: getEnvFloat("GEOCODER_DEFAULT_LNG", 78.9629),
		},
		Alerting: AlertingConfig{
			SuppressionWindow:   getEnvDuration("SUPPRESSION_WINDOW", 12*time.Hour),
			SuppressionRadiusKm: getEnvFloat("SUPPRESSION_RADIUS_KM", 200),
			SMSRadiusKm:         getEnvFloat("SMS_RADIUS_KM", 200),
			EmailRadiusKm:       getEnvFloat("EMAIL_RADIUS_KM", 200),
			MaxRounds:           getEnvInt("DELIVERY_MAX_ROUNDS", 5),
			DeliveryWorkers:     getEnvInt("DELIVERY_WORKERS", 8),
			DeliveryTimeout:     getEnvDuration("DELIVERY_TIMEOUT", 30*time.Second),
			RetryBaseDelay:      getEnvDuration("RETRY_BASE_DELAY", 100*time.Millisecond),
			MaxRetryAttempts:    getEnvInt("MAX_RETRY_ATTEMPTS", 3),
			ThresholdsPath:      getEnv("SEVERITY_THRESHOLDS_PATH", ""),
		},
		Gateways: GatewayConfig{
			SMSURL:             getEnv("SMS_GATEWAY_URL", "https://api.sms-gateway.local/send"),
			SMSFrom:            getEnv("SMS_FROM", ""),
			DefaultCountryCode: getEnv("SMS_DEFAULT_COUNTRY_CODE", "+91"),
			EmailURL:           getEnv("EMAIL_GATEWAY_URL", "https://api.email-gateway.local/send"),
			EmailFrom:          getEnv("EMAIL_FROM", "alerts@disasterwatch.example"),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Sources: SourcesConfig{
			SensorFeedEnabled:      getEnvBool("SENSOR_FEED_ENABLED", false),
			SensorFeedURL:          getEnv("SENSOR_FEED_URL", ""),
			SensorFeedPollInterval: getEnvDuration("SENSOR_FEED_POLL_INTERVAL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Alerting.SuppressionWindow <= 0 {
		return fmt.Errorf("suppression window must be positive")
	}
	if c.Alerting.SuppressionRadiusKm < 0 || c.Alerting.SMSRadiusKm < 0 || c.Alerting.EmailRadiusKm < 0 {
		return fmt.Errorf("radii must be non-negative")
	}
	if c.Alerting.MaxRounds < 1 {
		return fmt.Errorf("delivery max rounds must be at least 1")
	}
	if c.Alerting.DeliveryTimeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive")
	}
	if c.Sources.SensorFeedEnabled {
		if c.Sources.SensorFeedURL == "" {
			return fmt.Errorf("sensor feed enabled but SENSOR_FEED_URL is empty")
		}
		if c.Sources.SensorFeedPollInterval < time.Minute {
			return fmt.Errorf("sensor feed poll interval must be at least 1 minute")
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
