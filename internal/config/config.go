package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Database
	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseSchema string `envconfig:"DATABASE_SCHEMA" default:"batchmaker"`

	// Fulfillment platform (Picqer-compatible API)
	FulfillSubdomain   string        `envconfig:"FULFILL_SUBDOMAIN"`
	FulfillAPIKey      string        `envconfig:"FULFILL_API_KEY"`
	FulfillBaseURL     string        `envconfig:"FULFILL_BASE_URL"`
	FulfillMinInterval time.Duration `envconfig:"FULFILL_MIN_INTERVAL" default:"150ms"`
	FulfillTimeout     time.Duration `envconfig:"FULFILL_TIMEOUT" default:"30s"`
	FulfillUseMock     bool          `envconfig:"FULFILL_USE_MOCK" default:"false"`

	// Blob storage
	BlobBaseURL string `envconfig:"BLOB_BASE_URL"`
	BlobBucket  string `envconfig:"BLOB_BUCKET" default:"shipment-labels"`
	BlobAPIKey  string `envconfig:"BLOB_API_KEY"`

	// Pipeline
	BatchTimeout   time.Duration `envconfig:"BATCH_TIMEOUT" default:"10m"`
	WebhookURL     string        `envconfig:"BATCH_WEBHOOK_URL"`
	SessionTagName string        `envconfig:"SESSION_TAG_NAME" default:"Batchmaker"`
	SessionTagging bool          `envconfig:"SESSION_TAGGING_ENABLED" default:"true"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"batchmaker"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cfg.FulfillBaseURL == "" && cfg.FulfillSubdomain != "" {
		cfg.FulfillBaseURL = fmt.Sprintf("https://%s.picqer.com/api/v1", cfg.FulfillSubdomain)
	}

	return &cfg, nil
}

// Attributes returns OpenTelemetry resource attributes describing this
// configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool("fulfill.mock", c.FulfillUseMock),
		attribute.Bool("webhook.configured", c.WebhookURL != ""),
	}
}
