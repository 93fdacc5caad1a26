// Package config centralizes process configuration read from the
// environment: one flat struct, one Load(), validated once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageBolt     StorageBackend = "bolt"
	StoragePostgres StorageBackend = "postgres"
)

// Config is centralized process configuration: environment
// variables plus the infra values every cmd/ entrypoint needs.
type Config struct {
	ServiceName    string
	HTTPAddr       string
	HandoffBaseURL string

	StorageBackend StorageBackend
	PostgresDSN    string
	BoltPath       string

	ObjectStoreEndpoint  string
	ObjectStoreAccessKey string
	ObjectStoreSecretKey string
	ObjectStoreBucket    string
	ObjectStoreUseSSL    bool

	WebhookSecret       string
	ReviewerWebhookURL  string
	QueueEndpointURL    string

	IntakeRegistryFile string

	DeliveryBatchSize   int
	ExpiryBatchSize     int
	ExpiryConcurrency   int
	ExpirySweepInterval time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		ServiceName:    "formbridge",
		HTTPAddr:       envOr("FORMBRIDGE_HTTP_ADDR", ":8080"),
		HandoffBaseURL: envOr("FORMBRIDGE_HANDOFF_BASE_URL", "http://localhost:8080"),

		StorageBackend: StorageBackend(envOr("FORMBRIDGE_STORAGE_BACKEND", string(StorageMemory))),
		PostgresDSN:    os.Getenv("FORMBRIDGE_POSTGRES_DSN"),
		BoltPath:       envOr("FORMBRIDGE_BOLT_PATH", "formbridge.db"),

		ObjectStoreEndpoint:  os.Getenv("FORMBRIDGE_OBJECT_STORE_ENDPOINT"),
		ObjectStoreAccessKey: os.Getenv("FORMBRIDGE_OBJECT_STORE_ACCESS_KEY"),
		ObjectStoreSecretKey: os.Getenv("FORMBRIDGE_OBJECT_STORE_SECRET_KEY"),
		ObjectStoreBucket:    envOr("FORMBRIDGE_OBJECT_STORE_BUCKET", "formbridge-uploads"),

		WebhookSecret:      os.Getenv("FORMBRIDGE_WEBHOOK_SECRET"),
		ReviewerWebhookURL: os.Getenv("FORMBRIDGE_REVIEWER_WEBHOOK_URL"),
		QueueEndpointURL:   os.Getenv("FORMBRIDGE_QUEUE_ENDPOINT_URL"),

		IntakeRegistryFile: os.Getenv("FORMBRIDGE_INTAKE_REGISTRY_FILE"),

		DeliveryBatchSize:   envOrInt("FORMBRIDGE_DELIVERY_BATCH_SIZE", 50),
		ExpiryBatchSize:     envOrInt("FORMBRIDGE_EXPIRY_BATCH_SIZE", 100),
		ExpiryConcurrency:   envOrInt("FORMBRIDGE_EXPIRY_CONCURRENCY", 8),
		ExpirySweepInterval: envOrDuration("FORMBRIDGE_EXPIRY_SWEEP_INTERVAL", 30*time.Second),
	}

	cfg.ObjectStoreUseSSL, _ = strconv.ParseBool(envOr("FORMBRIDGE_OBJECT_STORE_USE_SSL", "true"))

	switch cfg.StorageBackend {
	case StorageMemory, StorageBolt, StoragePostgres:
	default:
		return Config{}, fmt.Errorf("config: unknown FORMBRIDGE_STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if cfg.StorageBackend == StoragePostgres && cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("config: FORMBRIDGE_POSTGRES_DSN is required for storage backend postgres")
	}
	if cfg.ExpirySweepInterval > time.Minute {
		return Config{}, fmt.Errorf("config: FORMBRIDGE_EXPIRY_SWEEP_INTERVAL must be at most one minute")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
