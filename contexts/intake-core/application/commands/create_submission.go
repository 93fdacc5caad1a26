package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
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
)

type CreateSubmissionCommand struct {
	IntakeID       string
	Actor          entities.Actor
	IdempotencyKey string
	InitialFields  map[string]any
	TTL            time.Duration
}

type CreateSubmissionResult struct {
	Submission    entities.Submission
	Intake        entities.IntakeDefinition
	MissingFields []string
	Replayed      bool
}

type CreateSubmissionUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Registry    ports.IntakeRegistry
	Idempotency ports.IdempotencyStore
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

const createIdempotencyScopePrefix = "create:"

// Execute returns exactly one of: a successful result, a caller-correctable
// envelope error (validation_error), or a thrown error (not_found and
// friends) that the transport layer maps to a status code.
func (u CreateSubmissionUseCase) Execute(ctx context.Context, cmd CreateSubmissionCommand) (CreateSubmissionResult, *valueobjects.ErrorEnvelope, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	intake, err := u.Registry.GetIntake(ctx, cmd.IntakeID)
	if err != nil {
		logger.Warn("create submission intake lookup failed",
			"event", "create_submission_intake_not_found",
			"module", "intake-core", "layer", "application",
			"intake_id", cmd.IntakeID, "error", err.Error(),
		)
		return CreateSubmissionResult{}, nil, err
	}

	scope := createIdempotencyScopePrefix + cmd.IntakeID
	if cmd.IdempotencyKey != "" {
		// Two concurrent creates replaying the same idempotency key must
		// not both fall through the "not found" branch and mint separate
		// submissions, so the check-then-insert sequence below is
		// serialized per (intake, key) pair.
		unlock := u.Locks.Lock(scope + "|" + cmd.IdempotencyKey)
		defer unlock()

		requestHash := hashCreateRequest(cmd)
		record, found, err := u.Idempotency.Get(ctx, scope, cmd.IdempotencyKey)
		if err != nil {
			return CreateSubmissionResult{}, nil, err
		}
		if found {
			if record.RequestHash != requestHash {
				return CreateSubmissionResult{}, nil, domainerrors.ErrIdempotencyKeyReuse
			}
			existing, err := u.Submissions.GetSubmission(ctx, record.SubmissionID)
			if err != nil {
				return CreateSubmissionResult{}, nil, err
			}
			logger.Info("create submission replayed",
				"event", "create_submission_replayed",
				"module", "intake-core", "layer", "application",
				"submission_id", existing.ID,
			)
			return CreateSubmissionResult{
				Submission: existing, Intake: intake,
				MissingFields: missingFields(services.EvaluateFields(intake.Schema, existing.Fields, existing.Uploads, true)),
				Replayed:      true,
			}, nil, nil
		}
	}

	validation := services.EvaluateFields(intake.Schema, cmd.InitialFields, nil, true)
	if !validation.OK {
		return CreateSubmissionResult{}, validationEnvelope(validation), nil
	}

	submissionID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return CreateSubmissionResult{}, nil, err
	}
	resumeToken, err := generateResumeToken()
	if err != nil {
		return CreateSubmissionResult{}, nil, err
	}

	var expiresAt *time.Time
	ttl := cmd.TTL
	if ttl <= 0 {
		ttl = intake.TTL
	}
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}

	submission := entities.NewSubmission(submissionID, cmd.IntakeID, resumeToken, cmd.Actor, now, expiresAt)
	if len(cmd.InitialFields) > 0 {
		submission.ApplyFields(cmd.InitialFields, cmd.Actor, now)
		submission.State = entities.StateInProgress
	}

	if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
		logger.Error("create submission persist failed",
			"event", "create_submission_persist_failed",
			"module", "intake-core", "layer", "application",
			"submission_id", submissionID, "error", err.Error(),
		)
		return CreateSubmissionResult{}, nil, err
	}

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return CreateSubmissionResult{}, nil, err
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submissionID, Timestamp: now,
		Actor: cmd.Actor, State: submission.State, Type: entities.EventSubmissionCreated,
		Payload: map[string]any{"intake_id": cmd.IntakeID},
	}); err != nil {
		return CreateSubmissionResult{}, nil, err
	}

	if cmd.IdempotencyKey != "" {
		if err := u.Idempotency.Put(ctx, ports.IdempotencyRecord{
			Scope: scope, Key: cmd.IdempotencyKey, RequestHash: hashCreateRequest(cmd),
			SubmissionID: submissionID, ExpiresAt: now.Add(7 * 24 * time.Hour),
		}); err != nil {
			return CreateSubmissionResult{}, nil, err
		}
	}

	logger.Info("submission created",
		"event", "create_submission_created",
		"module", "intake-core", "layer", "application",
		"submission_id", submissionID, "intake_id", cmd.IntakeID, "state", string(submission.State),
	)
	return CreateSubmissionResult{Submission: submission, Intake: intake, MissingFields: missingFields(validation)}, nil, nil
}

// missingFields extracts the still-to-collect field paths from a partial
// validation pass, for the create response's missingFields hint.
func missingFields(v services.ValidationResult) []string {
	var paths []string
	for _, na := range v.NextActions {
		switch na.Kind {
		case valueobjects.NextActionCollectField, valueobjects.NextActionRequestUpload:
			paths = append(paths, na.Field)
		}
	}
	return paths
}

func (u CreateSubmissionUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

func hashCreateRequest(cmd CreateSubmissionCommand) string {
	fields, _ := json.Marshal(cmd.InitialFields)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", cmd.IntakeID, cmd.Actor.ID, fields)))
	return hex.EncodeToString(sum[:])
}

// validationEnvelope converts a domain ValidationResult into the response
// envelope shape used for validation_error outcomes.
func validationEnvelope(v services.ValidationResult) *valueobjects.ErrorEnvelope {
	env := valueobjects.NewErrorEnvelope(valueobjects.ErrTypeValidationError, "one or more fields failed validation")
	env.Error.Fields = v.Errors
	env.Error.NextActions = v.NextActions
	return &env
}
