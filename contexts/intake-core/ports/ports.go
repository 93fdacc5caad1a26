// Package ports declares the interfaces the application layer depends on:
// plain Go interfaces, no framework types. Adapters implement them; use
// cases consume them.
package ports

import (
	"context"
	"time"

	"formbridge/contexts/intake-core/domain/entities"
	contractsv1 "formbridge/contracts/gen/events/v1"
	"formbridge/internal/shared/outbox"
)

// Clock allows deterministic testing of TTL/expiry and token-rotation rules.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts submission/event/upload identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// SubmissionRepository is the submission half of Storage: by-id,
// by-resume-token, and upsert with atomic index maintenance.
type SubmissionRepository interface {
	GetSubmission(ctx context.Context, id string) (entities.Submission, error)
	GetByResumeToken(ctx context.Context, token string) (entities.Submission, error)
	SaveSubmission(ctx context.Context, s entities.Submission) error
	// ListExpirable returns submissions with expiresAt < now in a state the
	// TTL may still lapse (entities.SubmissionState.CanExpire), bounded by
	// limit and ordered soonest-expiring first.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]entities.Submission, error)
}

// EventFilter narrows Event Log reads.
type EventFilter struct {
	Types     []entities.EventType
	ActorKind entities.ActorKind
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// EventStats summarizes the Event Log for operators.
type EventStats struct {
	TotalEvents     int
	SubmissionCount int
	OldestEvent     *time.Time
	NewestEvent     *time.Time
}

// EventRepository is the Event Log component: append-only,
// per-submission versioned, de-duplicated by event id.
type EventRepository interface {
	// AppendEvent assigns the next version and fails with domainerrors.ErrDuplicateEvent
	// if EventID already exists — this is the idempotency signal for event writers.
	AppendEvent(ctx context.Context, e entities.Event) error
	ListEvents(ctx context.Context, submissionID string, filter EventFilter) ([]entities.Event, error)
	Stats(ctx context.Context) (EventStats, error)
}

// IntakeRegistry is pure lookup over registered intake definitions.
type IntakeRegistry interface {
	Register(ctx context.Context, def entities.IntakeDefinition, allowOverwrite bool) error
	GetIntake(ctx context.Context, intakeID string) (entities.IntakeDefinition, error)
	ListIntakes(ctx context.Context) ([]entities.IntakeDefinition, error)
}

// UploadVerificationStatus is what the object-storage backend reports back
// on confirmUpload; `expired` is mapped to `failed` by the caller.
type UploadVerificationStatus string

const (
	VerificationPending   UploadVerificationStatus = "pending"
	VerificationCompleted UploadVerificationStatus = "completed"
	VerificationFailed    UploadVerificationStatus = "failed"
	VerificationExpired   UploadVerificationStatus = "expired"
)

// UploadURLRequest is what requestUpload asks the object store to sign.
type UploadURLRequest struct {
	IntakeID     string
	SubmissionID string
	FieldPath    string
	UploadID     string
	Filename     string
	MimeType     string
	MaxBytes     int64
	Accept       []string
}

// UploadURLResult is the signed handshake returned to the caller.
type UploadURLResult struct {
	Method      string
	URL         string
	Headers     map[string]string
	StorageKey  string
	ExpiresInMs int64
}

// ObjectStore negotiates the two-phase upload protocol.
type ObjectStore interface {
	IssueUploadURL(ctx context.Context, req UploadURLRequest) (UploadURLResult, error)
	VerifyUpload(ctx context.Context, storageKey string) (UploadVerificationStatus, string, error)
}

// IdempotencyRecord caches a verbatim replay response for a (scope, key) pair.
type IdempotencyRecord struct {
	Scope           string
	Key             string
	RequestHash     string
	SubmissionID    string
	ResponsePayload []byte
	ExpiresAt       time.Time
}

// IdempotencyStore backs the create/submit idempotency guarantee.
type IdempotencyStore interface {
	Get(ctx context.Context, scope, key string) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

// WebhookPublisher delivers a finalized submission to a webhook or callback
// destination. Reviewer notification is ReviewNotifier's job, not this one's.
type WebhookPublisher interface {
	Deliver(ctx context.Context, dest entities.Destination, submissionID string, payload map[string]any) error
}

// ReviewNotifier is the optional out-of-band reviewer-notification collaborator;
// its absence must not break the core approval operation.
type ReviewNotifier interface {
	NotifyReviewRequested(ctx context.Context, submissionID, intakeID string) error
}

// QueueEnvelope reuses the canonical cross-runtime envelope contract.
type QueueEnvelope = contractsv1.Envelope

// QueuePublisher delivers a finalized submission to a queue-kind destination.
type QueuePublisher interface {
	Publish(ctx context.Context, topic string, env QueueEnvelope) error
}

// DeliveryOutbox persists the Delivery Engine's retry schedule: one row per
// submission awaiting delivery, advanced or retired by the delivery_engine
// worker.
type DeliveryOutbox interface {
	Enqueue(ctx context.Context, rec outbox.DeliveryRecord) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]outbox.DeliveryRecord, error)
	MarkAttempt(ctx context.Context, submissionID string, attempt int, nextRetryAt time.Time, status string) error
	MarkDone(ctx context.Context, submissionID string, status string) error
}
