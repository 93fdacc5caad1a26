package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	application "formbridge/contexts/intake-core/application"
	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/domain/services"
	"formbridge/contexts/intake-core/ports"
	"formbridge/internal/shared/outbox"
)

// DeliveryEngine drains the delivery outbox, forwarding submitted submissions
// to their configured destination with an exponential retry schedule computed
// by cenkalti/backoff.
type DeliveryEngine struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Registry    ports.IntakeRegistry
	Outbox      ports.DeliveryOutbox
	Webhooks    ports.WebhookPublisher
	Queues      ports.QueuePublisher
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	BatchSize   int
	Logger      *slog.Logger
}

func (e DeliveryEngine) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(e.Logger)
	now := e.now()

	limit := e.BatchSize
	if limit <= 0 {
		limit = 50
	}
	due, err := e.Outbox.ListDue(ctx, now, limit)
	if err != nil {
		logger.Error("delivery list due failed",
			"event", "intake_core_delivery_list_failed",
			"module", "intake-core", "layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	for _, record := range due {
		if err := e.attempt(ctx, record, now, logger); err != nil {
			logger.Error("delivery attempt failed",
				"event", "intake_core_delivery_attempt_error",
				"module", "intake-core", "layer", "worker",
				"submission_id", record.SubmissionID, "error", err.Error(),
			)
			return err
		}
	}
	return nil
}

func (e DeliveryEngine) attempt(ctx context.Context, record outbox.DeliveryRecord, now time.Time, logger *slog.Logger) error {
	unlock := e.Locks.Lock(record.SubmissionID)
	defer unlock()

	submission, err := e.Submissions.GetSubmission(ctx, record.SubmissionID)
	if err != nil {
		return err
	}
	if submission.State.Canonical() != entities.StateSubmitted {
		return e.Outbox.MarkDone(ctx, record.SubmissionID, "succeeded")
	}
	intake, err := e.Registry.GetIntake(ctx, record.IntakeID)
	if err != nil {
		return err
	}

	if err := e.appendEvent(ctx, submission, entities.EventDeliveryAttempted, map[string]any{"attempt": record.Attempt}, now); err != nil {
		return err
	}

	deliverErr := e.dispatch(ctx, intake.Destination, submission)
	if deliverErr == nil {
		if err := services.AssertValidTransition(submission.State, entities.StateFinalized); err != nil {
			return err
		}
		submission.State = entities.StateFinalized
		submission.DeliveryFailed = false
		submission.UpdatedAt = now
		if err := e.Submissions.SaveSubmission(ctx, submission); err != nil {
			return err
		}
		if err := e.appendEvent(ctx, submission, entities.EventDeliverySucceeded, nil, now); err != nil {
			return err
		}
		if err := e.appendEvent(ctx, submission, entities.EventSubmissionFinalized, nil, now); err != nil {
			return err
		}
		logger.Info("delivery succeeded",
			"event", "intake_core_delivery_succeeded",
			"module", "intake-core", "layer", "worker",
			"submission_id", submission.ID,
		)
		return e.Outbox.MarkDone(ctx, record.SubmissionID, "succeeded")
	}

	policy := intake.Delivery.Resolved()
	nextAttempt := record.Attempt + 1
	if nextAttempt <= policy.MaxAttempts {
		delay := backoffDelay(policy, record.Attempt-1)
		if err := e.appendEvent(ctx, submission, entities.EventDeliveryFailed, map[string]any{
			"attempt": record.Attempt, "retryable": true, "retry_after_ms": delay.Milliseconds(), "reason": deliverErr.Error(),
		}, now); err != nil {
			return err
		}
		logger.Warn("delivery failed, rescheduling",
			"event", "intake_core_delivery_retry_scheduled",
			"module", "intake-core", "layer", "worker",
			"submission_id", submission.ID, "attempt", record.Attempt, "next_attempt", nextAttempt,
		)
		return e.Outbox.MarkAttempt(ctx, record.SubmissionID, nextAttempt, now.Add(delay), "pending")
	}

	submission.DeliveryFailed = true
	submission.UpdatedAt = now
	if err := e.Submissions.SaveSubmission(ctx, submission); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, submission, entities.EventDeliveryFailed, map[string]any{
		"attempt": record.Attempt, "retryable": false, "reason": deliverErr.Error(),
	}, now); err != nil {
		return err
	}
	logger.Error("delivery exhausted retries",
		"event", "intake_core_delivery_exhausted",
		"module", "intake-core", "layer", "worker",
		"submission_id", submission.ID,
	)
	return e.Outbox.MarkDone(ctx, record.SubmissionID, "failed")
}

func (e DeliveryEngine) dispatch(ctx context.Context, dest entities.Destination, submission entities.Submission) error {
	switch dest.Kind {
	case entities.DestinationWebhook, entities.DestinationCallback:
		if e.Webhooks == nil {
			return errDeliveryBackendMissing
		}
		return e.Webhooks.Deliver(ctx, dest, submission.ID, submission.Fields)
	case entities.DestinationQueue:
		if e.Queues == nil {
			return errDeliveryBackendMissing
		}
		payload, err := json.Marshal(submission.Fields)
		if err != nil {
			return err
		}
		eventID, err := e.IDGenerator.NewID(ctx)
		if err != nil {
			return err
		}
		return e.Queues.Publish(ctx, dest.Topic, ports.QueueEnvelope{
			EventID: eventID, EventType: string(entities.EventSubmissionFinalized),
			OccurredAt: e.now(), SourceService: "formbridge-intake-core", SchemaVersion: 1,
			PartitionKeyPath: "submission_id", PartitionKey: submission.ID, Data: payload,
		})
	default:
		return errDeliveryBackendMissing
	}
}

func (e DeliveryEngine) appendEvent(ctx context.Context, submission entities.Submission, eventType entities.EventType, payload map[string]any, now time.Time) error {
	eventID, err := e.IDGenerator.NewID(ctx)
	if err != nil {
		return err
	}
	return e.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: entities.Actor{Kind: entities.ActorKindSystem, ID: "delivery-engine"},
		State: submission.State, Type: eventType, Payload: payload,
	})
}

func (e DeliveryEngine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now().UTC()
}

// backoffDelay computes the schedule's next delay using the same exponential
// curve cenkalti/backoff.ExponentialBackOff applies internally, capped by
// the policy's MaxDelayMs. completedAttempt counts the retries already spent
// beyond the first attempt (0 after attempt 1 fails).
func backoffDelay(policy entities.DeliveryPolicy, completedAttempt int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(policy.InitialDelayMs) * time.Millisecond
	eb.Multiplier = policy.BackoffMultiplier
	eb.MaxInterval = time.Duration(policy.MaxDelayMs) * time.Millisecond
	eb.RandomizationFactor = 0
	eb.Reset()
	delay := eb.NextBackOff()
	for i := 0; i < completedAttempt; i++ {
		delay = eb.NextBackOff()
	}
	if delay > eb.MaxInterval {
		delay = eb.MaxInterval
	}
	return delay
}

var errDeliveryBackendMissing = deliveryBackendMissingError{}

type deliveryBackendMissingError struct{}

func (deliveryBackendMissingError) Error() string {
	return "no delivery backend configured for destination kind"
}
