package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	application "formbridge/contexts/intake-core/application"
	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
	"formbridge/contexts/intake-core/domain/services"
	"formbridge/contexts/intake-core/domain/valueobjects"
	"formbridge/contexts/intake-core/ports"
	"formbridge/internal/shared/outbox"
)

type SubmitCommand struct {
	SubmissionID   string
	ResumeToken    string
	IdempotencyKey string
	Actor          entities.Actor
}

type SubmitResult struct {
	Submission     entities.Submission
	NewResumeToken string
	Replayed       bool
}

type SubmitUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Registry    ports.IntakeRegistry
	Outbox      ports.DeliveryOutbox
	Notifier    ports.ReviewNotifier
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

// Execute moves a submission to submitted (queuing it for the Delivery
// Engine, which finalizes it) or routes it for review. needs_review is
// surfaced as the needs_approval error envelope rather than a success
// result, keeping it a caller-correctable outcome rather than a thrown error.
func (u SubmitUseCase) Execute(ctx context.Context, cmd SubmitCommand) (SubmitResult, *valueobjects.ErrorEnvelope, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	unlock := u.Locks.Lock(cmd.SubmissionID)
	defer unlock()

	// A replayed idempotency key answers before any guard runs: the original
	// call already rotated the token and may have parked the submission in a
	// state the token and conflict checks below would refuse.
	if cmd.IdempotencyKey != "" {
		prior, err := u.Submissions.GetSubmission(ctx, cmd.SubmissionID)
		if err != nil {
			return SubmitResult{}, nil, err
		}
		if prior.HasIdempotencyKey(cmd.IdempotencyKey) {
			return u.replay(prior)
		}
	}

	submission, envelope, err := loadAndGuard(ctx, u.Submissions, u.Events, u.IDGenerator, cmd.SubmissionID, cmd.ResumeToken, now, nil)
	if err != nil || envelope != nil {
		return SubmitResult{}, envelope, err
	}
	if submission.State.Canonical() == entities.StateSubmitted {
		return SubmitResult{}, nil, domainerrors.ErrConflict
	}

	intake, err := u.Registry.GetIntake(ctx, submission.IntakeID)
	if err != nil {
		return SubmitResult{}, nil, err
	}

	validation := services.EvaluateFields(intake.Schema, submission.Fields, submission.Uploads, false)
	if !validation.OK {
		return SubmitResult{}, validationEnvelope(validation), nil
	}

	autoApprove, gateName := services.EvaluateApprovalGates(intake.ApprovalGates, submission.Fields)
	if !autoApprove {
		return u.routeToReview(ctx, submission, cmd, gateName, now, logger)
	}
	return u.finalizeSubmit(ctx, submission, cmd, now, logger)
}

func (u SubmitUseCase) routeToReview(ctx context.Context, submission entities.Submission, cmd SubmitCommand, gateName string, now time.Time, logger *slog.Logger) (SubmitResult, *valueobjects.ErrorEnvelope, error) {
	if err := services.AssertValidTransition(submission.State, entities.StateNeedsReview); err != nil {
		return SubmitResult{}, nil, err
	}
	submission.State = entities.StateNeedsReview
	newToken, err := generateResumeToken()
	if err != nil {
		return SubmitResult{}, nil, err
	}
	submission.ResumeToken = newToken
	submission.UpdatedAt = now
	submission.UpdatedBy = cmd.Actor
	submission.RecordIdempotencyKey(cmd.IdempotencyKey)

	if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
		return SubmitResult{}, nil, err
	}
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return SubmitResult{}, nil, err
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: cmd.Actor, State: submission.State, Type: entities.EventReviewRequested,
		Payload: map[string]any{"gate": gateName},
	}); err != nil {
		return SubmitResult{}, nil, err
	}

	notifyReviewerSafely(ctx, u.Notifier, logger, submission.ID, submission.IntakeID)

	env := valueobjects.NewErrorEnvelope(valueobjects.ErrTypeNeedsApproval, fmt.Sprintf("approval gate %q requires review", gateName))
	env.SubmissionID = submission.ID
	env.State = string(submission.State)
	env.Error.NextActions = []valueobjects.NextAction{{Kind: valueobjects.NextActionWaitForReview}}
	return SubmitResult{}, &env, nil
}

func (u SubmitUseCase) finalizeSubmit(ctx context.Context, submission entities.Submission, cmd SubmitCommand, now time.Time, logger *slog.Logger) (SubmitResult, *valueobjects.ErrorEnvelope, error) {
	if err := services.AssertValidTransition(submission.State, entities.StateSubmitted); err != nil {
		return SubmitResult{}, nil, err
	}
	submission.State = entities.StateSubmitted
	newToken, err := generateResumeToken()
	if err != nil {
		return SubmitResult{}, nil, err
	}
	submission.ResumeToken = newToken
	submission.UpdatedAt = now
	submission.UpdatedBy = cmd.Actor
	submission.RecordIdempotencyKey(cmd.IdempotencyKey)

	if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
		return SubmitResult{}, nil, err
	}
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return SubmitResult{}, nil, err
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: cmd.Actor, State: submission.State, Type: entities.EventSubmissionSubmitted,
	}); err != nil {
		return SubmitResult{}, nil, err
	}

	// The actual destination call happens in the Delivery Engine worker's
	// poll loop, so a slow or failing destination never blocks this response;
	// entering submitted only enqueues the outbox row the worker drains. A
	// nil Outbox degrades to the documented delivery_failed-on-reads posture.
	if err := enqueueDelivery(ctx, u.Outbox, submission, now); err != nil {
		return SubmitResult{}, nil, err
	}

	logger.Info("submission submitted",
		"event", "submit_completed",
		"module", "intake-core", "layer", "application",
		"submission_id", submission.ID,
	)
	return SubmitResult{Submission: submission, NewResumeToken: newToken}, nil, nil
}

// enqueueDelivery writes the pending outbox row the Delivery Engine drains,
// due immediately. The attempt counter is 1-based: it names the attempt the
// engine will make next, so audit events report attempts 1..maxAttempts.
func enqueueDelivery(ctx context.Context, out ports.DeliveryOutbox, submission entities.Submission, now time.Time) error {
	if out == nil {
		return nil
	}
	payload, err := json.Marshal(submission.Fields)
	if err != nil {
		return err
	}
	return out.Enqueue(ctx, outbox.DeliveryRecord{
		SubmissionID: submission.ID,
		IntakeID:     submission.IntakeID,
		Payload:      payload,
		Attempt:      1,
		Status:       "pending",
		NextRetryAt:  now,
		CreatedAt:    now,
	})
}

// replay re-describes the submission's current, live state rather than a
// frozen response body, so a resume token issued after the original call is
// never shadowed by a stale replay.
func (u SubmitUseCase) replay(submission entities.Submission) (SubmitResult, *valueobjects.ErrorEnvelope, error) {
	if submission.State.Canonical() == entities.StateNeedsReview {
		env := valueobjects.NewErrorEnvelope(valueobjects.ErrTypeNeedsApproval, "submission requires review")
		env.SubmissionID = submission.ID
		env.State = string(submission.State)
		env.Error.NextActions = []valueobjects.NextAction{{Kind: valueobjects.NextActionWaitForReview}}
		return SubmitResult{}, &env, nil
	}
	return SubmitResult{Submission: submission, NewResumeToken: submission.ResumeToken, Replayed: true}, nil, nil
}

func (u SubmitUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
