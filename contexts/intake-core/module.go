// Package intakecore is the composition root for the intake bounded context:
// a Dependencies struct of ports, a NewModule that wires every use case
// once, and a NewInMemoryModule convenience constructor for local runs and
// tests.
package intakecore

import (
	"log/slog"

	httpadapter "formbridge/contexts/intake-core/adapters/http"
	"formbridge/contexts/intake-core/adapters/memory"
	application "formbridge/contexts/intake-core/application"
	"formbridge/contexts/intake-core/application/commands"
	"formbridge/contexts/intake-core/application/queries"
	"formbridge/contexts/intake-core/application/workers"
	"formbridge/contexts/intake-core/ports"
)

type Module struct {
	Handler        httpadapter.Handler
	DeliveryEngine workers.DeliveryEngine
	ExpirySweeper  workers.ExpirySweeper
	Store          *memory.Store
	Registry       *memory.RegistryStore
}

type Dependencies struct {
	Submissions       ports.SubmissionRepository
	Events            ports.EventRepository
	Registry          ports.IntakeRegistry
	Idempotency       ports.IdempotencyStore
	Outbox            ports.DeliveryOutbox
	ObjectStore       ports.ObjectStore
	Webhooks          ports.WebhookPublisher
	Queues            ports.QueuePublisher
	Notifier          ports.ReviewNotifier
	Clock             ports.Clock
	IDGenerator       ports.IDGenerator
	Locks             *application.SubmissionLocks
	HandoffBaseURL    string
	DeliveryBatch     int
	ExpiryBatch       int
	ExpiryConcurrency int
	Logger            *slog.Logger
}

func NewModule(deps Dependencies) Module {
	locks := deps.Locks
	if locks == nil {
		locks = application.NewSubmissionLocks()
	}

	createSubmission := commands.CreateSubmissionUseCase{
		Submissions: deps.Submissions, Events: deps.Events, Registry: deps.Registry,
		Idempotency: deps.Idempotency, Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, Logger: deps.Logger,
	}
	setFields := commands.SetFieldsUseCase{
		Submissions: deps.Submissions, Events: deps.Events, Registry: deps.Registry,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, Logger: deps.Logger,
	}
	requestUpload := commands.RequestUploadUseCase{
		Submissions: deps.Submissions, Events: deps.Events, Registry: deps.Registry,
		ObjectStore: deps.ObjectStore, Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, Logger: deps.Logger,
	}
	confirmUpload := commands.ConfirmUploadUseCase{
		Submissions: deps.Submissions, Events: deps.Events, ObjectStore: deps.ObjectStore,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, Logger: deps.Logger,
	}
	submit := commands.SubmitUseCase{
		Submissions: deps.Submissions, Events: deps.Events, Registry: deps.Registry,
		Outbox: deps.Outbox, Notifier: deps.Notifier,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, Logger: deps.Logger,
	}
	cancel := commands.CancelUseCase{
		Submissions: deps.Submissions, Events: deps.Events,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, Logger: deps.Logger,
	}
	generateHandoff := commands.GenerateHandoffUseCase{
		Submissions: deps.Submissions, Events: deps.Events,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, BaseURL: deps.HandoffBaseURL, Logger: deps.Logger,
	}
	emitHandoffResumed := commands.EmitHandoffResumedUseCase{
		Submissions: deps.Submissions, Events: deps.Events,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, Logger: deps.Logger,
	}
	approve := commands.ApproveUseCase{
		Submissions: deps.Submissions, Events: deps.Events, Outbox: deps.Outbox,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, Logger: deps.Logger,
	}
	reject := commands.RejectUseCase{
		Submissions: deps.Submissions, Events: deps.Events,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, Logger: deps.Logger,
	}
	requestChanges := commands.RequestChangesUseCase{
		Submissions: deps.Submissions, Events: deps.Events,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, Logger: deps.Logger,
	}

	handler := httpadapter.Handler{
		CreateSubmission:   createSubmission,
		SetFields:          setFields,
		RequestUpload:      requestUpload,
		ConfirmUpload:      confirmUpload,
		Submit:             submit,
		Cancel:             cancel,
		GenerateHandoff:    generateHandoff,
		EmitHandoffResumed: emitHandoffResumed,
		Approve:            approve,
		Reject:             reject,
		RequestChanges:     requestChanges,
		GetSubmission:      queries.GetSubmissionQuery{Submissions: deps.Submissions},
		GetByResumeToken:   queries.GetByResumeTokenQuery{Submissions: deps.Submissions},
		ListEvents:         queries.ListEventsQuery{Events: deps.Events},
		ExportEvents:       queries.ExportEventsQuery{Events: deps.Events},
		Logger:             deps.Logger,
	}

	deliveryEngine := workers.DeliveryEngine{
		Submissions: deps.Submissions, Events: deps.Events, Registry: deps.Registry,
		Outbox: deps.Outbox, Webhooks: deps.Webhooks, Queues: deps.Queues,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks, BatchSize: deps.DeliveryBatch, Logger: deps.Logger,
	}
	expirySweeper := workers.ExpirySweeper{
		Submissions: deps.Submissions, Events: deps.Events,
		Clock: deps.Clock, IDGenerator: deps.IDGenerator, Locks: locks,
		BatchSize: deps.ExpiryBatch, Concurrency: deps.ExpiryConcurrency, Logger: deps.Logger,
	}

	return Module{Handler: handler, DeliveryEngine: deliveryEngine, ExpirySweeper: expirySweeper}
}

// NewInMemoryModule wires the context against the in-memory adapters, for
// local runs and tests where no durable backend is configured.
func NewInMemoryModule(handoffBaseURL string, logger *slog.Logger) Module {
	store := memory.NewStore(logger)
	registry := memory.NewRegistryStore()
	module := NewModule(Dependencies{
		Submissions: store, Events: store, Registry: registry, Idempotency: store, Outbox: store,
		Clock: memory.SystemClock{}, IDGenerator: memory.UUIDGenerator{},
		HandoffBaseURL: handoffBaseURL, DeliveryBatch: 50, ExpiryBatch: 100, ExpiryConcurrency: 8,
		Logger: logger,
	})
	module.Store = store
	module.Registry = registry
	return module
}
