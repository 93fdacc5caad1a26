// Package bootstrap is the composition root: it turns a loaded Config into a
// fully wired intake core Module plus whatever platform resources (db
// handles, bolt files) the chosen storage backend owns, keeping construction
// out of domain code and the cmd/ entrypoints trivial.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.etcd.io/bbolt"

	intakecore "formbridge/contexts/intake-core"
	boltadapter "formbridge/contexts/intake-core/adapters/bolt"
	"formbridge/contexts/intake-core/adapters/memory"
	"formbridge/contexts/intake-core/adapters/objectstore"
	postgresadapter "formbridge/contexts/intake-core/adapters/postgres"
	"formbridge/contexts/intake-core/adapters/queue"
	"formbridge/contexts/intake-core/adapters/registryfile"
	"formbridge/contexts/intake-core/adapters/webhook"
	"formbridge/internal/platform/config"
	"formbridge/internal/platform/db"
	"formbridge/internal/platform/httpserver"
)

// APIApp owns the wired HTTP server plus whatever storage handle needs a
// graceful Close on shutdown.
type APIApp struct {
	Server *httpserver.Server
	closer func() error
}

func (a *APIApp) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bootstrap: shutdown http server: %w", err)
	}
	return <-errCh
}

func (a *APIApp) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}

// WorkerApp drives the Delivery Engine and Expiry Sweeper as two
// independently ticking pollers in one process.
type WorkerApp struct {
	module         intakecore.Module
	expiryInterval time.Duration
	logger         *slog.Logger
	closer         func() error
}

func (w *WorkerApp) Run(ctx context.Context) error {
	deliveryTicker := time.NewTicker(2 * time.Second)
	expiryTicker := time.NewTicker(w.expiryInterval)
	defer deliveryTicker.Stop()
	defer expiryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deliveryTicker.C:
			if err := w.module.DeliveryEngine.RunOnce(ctx); err != nil {
				w.logger.Error("delivery engine run failed",
					"event", "worker_delivery_run_failed", "module", "bootstrap", "layer", "worker", "error", err.Error())
			}
		case <-expiryTicker.C:
			if err := w.module.ExpirySweeper.RunOnce(ctx); err != nil {
				w.logger.Error("expiry sweeper run failed",
					"event", "worker_expiry_run_failed", "module", "bootstrap", "layer", "worker", "error", err.Error())
			}
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer()
}

// BuildAPI wires storage, registry, delivery, and the HTTP transport behind
// one intake core Module per the resolved Config.
func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	logger := slog.Default()

	module, closer, err := buildModule(cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(module, logger, cfg.HTTPAddr)
	return &APIApp{Server: server, closer: closer}, nil
}

// BuildModule wires the same intake core Module the API and worker processes
// use, for admin tooling (formbridgectl) that needs direct access to the
// registry and stores without standing up an HTTP server or poll loop.
func BuildModule() (intakecore.Module, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return intakecore.Module{}, nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	return buildModule(cfg, slog.Default())
}

// BuildWorker wires the same module the API uses, against the same storage
// backend, so both processes observe one consistent submission store.
func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	logger := slog.Default()

	module, closer, err := buildModule(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &WorkerApp{module: module, expiryInterval: cfg.ExpirySweepInterval, logger: logger, closer: closer}, nil
}

func buildModule(cfg config.Config, logger *slog.Logger) (intakecore.Module, func() error, error) {
	deps := intakecore.Dependencies{
		Clock: memory.SystemClock{}, IDGenerator: memory.UUIDGenerator{},
		HandoffBaseURL: cfg.HandoffBaseURL,
		DeliveryBatch:  cfg.DeliveryBatchSize, ExpiryBatch: cfg.ExpiryBatchSize, ExpiryConcurrency: cfg.ExpiryConcurrency,
		Logger: logger,
	}
	closer := func() error { return nil }

	switch cfg.StorageBackend {
	case config.StorageMemory:
		store := memory.NewStore(logger)
		registry := memory.NewRegistryStore()
		deps.Submissions, deps.Events, deps.Idempotency, deps.Outbox = store, store, store, store
		deps.Registry = registry
		if cfg.IntakeRegistryFile != "" {
			if err := registryfile.LoadAndRegister(context.Background(), cfg.IntakeRegistryFile, registry, false); err != nil {
				return intakecore.Module{}, nil, fmt.Errorf("bootstrap: load intake registry: %w", err)
			}
		}

	case config.StorageBolt:
		boltDB, err := bbolt.Open(cfg.BoltPath, 0o600, nil)
		if err != nil {
			return intakecore.Module{}, nil, fmt.Errorf("bootstrap: open bolt db: %w", err)
		}
		store, err := boltadapter.Open(boltDB)
		if err != nil {
			return intakecore.Module{}, nil, fmt.Errorf("bootstrap: open bolt store: %w", err)
		}
		deps.Submissions, deps.Events, deps.Idempotency, deps.Outbox = store, store, store, store
		registry := memory.NewRegistryStore()
		deps.Registry = registry
		if cfg.IntakeRegistryFile != "" {
			if err := registryfile.LoadAndRegister(context.Background(), cfg.IntakeRegistryFile, registry, false); err != nil {
				return intakecore.Module{}, nil, fmt.Errorf("bootstrap: load intake registry: %w", err)
			}
		}
		closer = boltDB.Close

	case config.StoragePostgres:
		pg, err := db.Connect(cfg.PostgresDSN)
		if err != nil {
			return intakecore.Module{}, nil, err
		}
		if err := pg.Migrate(); err != nil {
			return intakecore.Module{}, nil, fmt.Errorf("bootstrap: migrate postgres: %w", err)
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		deps.Submissions, deps.Events, deps.Idempotency, deps.Outbox = repo, repo, repo, repo
		registry := memory.NewRegistryStore()
		deps.Registry = registry
		if cfg.IntakeRegistryFile != "" {
			if err := registryfile.LoadAndRegister(context.Background(), cfg.IntakeRegistryFile, registry, false); err != nil {
				return intakecore.Module{}, nil, fmt.Errorf("bootstrap: load intake registry: %w", err)
			}
		}
		closer = pg.Close

	default:
		return intakecore.Module{}, nil, fmt.Errorf("bootstrap: unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.ObjectStoreEndpoint != "" {
		minioClient, err := minio.New(cfg.ObjectStoreEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.ObjectStoreAccessKey, cfg.ObjectStoreSecretKey, ""),
			Secure: cfg.ObjectStoreUseSSL,
		})
		if err != nil {
			return intakecore.Module{}, nil, fmt.Errorf("bootstrap: create object store client: %w", err)
		}
		deps.ObjectStore = objectstore.New(minioClient, cfg.ObjectStoreBucket, 15*time.Minute)
	}

	if cfg.WebhookSecret == "" {
		logger.Warn("FORMBRIDGE_WEBHOOK_SECRET is not set; outbound deliveries will be unsigned",
			"event", "bootstrap_webhook_secret_missing", "module", "bootstrap", "layer", "platform")
	}
	deps.Webhooks = webhook.New(cfg.WebhookSecret)
	if cfg.ReviewerWebhookURL != "" {
		deps.Notifier = webhook.NewNotifier(cfg.ReviewerWebhookURL)
	}
	if cfg.QueueEndpointURL != "" {
		deps.Queues = queue.New(cfg.QueueEndpointURL)
	}

	module := intakecore.NewModule(deps)
	// Every backend registers intakes through the same in-memory registry
	// (the registry is pure lookup, not durable storage), so exposing
	// it on Module is always safe regardless of cfg.StorageBackend.
	if registry, ok := deps.Registry.(*memory.RegistryStore); ok {
		module.Registry = registry
	}
	if store, ok := deps.Submissions.(*memory.Store); ok {
		module.Store = store
	}
	return module, closer, nil
}
