package commands

import (
	"context"
	"log/slog"
	"time"

	application "formbridge/contexts/intake-core/application"
	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/domain/services"
	"formbridge/contexts/intake-core/domain/valueobjects"
	"formbridge/contexts/intake-core/ports"
)

type SetFieldsCommand struct {
	SubmissionID string
	ResumeToken  string
	Actor        entities.Actor
	Fields       map[string]any
}

type SetFieldsResult struct {
	Submission     entities.Submission
	NewResumeToken string
	Expired        bool
}

type SetFieldsUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Registry    ports.IntakeRegistry
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

// Execute applies a merged field update to the submission a caller currently
// holds the resume token for, rotating that token on success.
func (u SetFieldsUseCase) Execute(ctx context.Context, cmd SetFieldsCommand) (SetFieldsResult, *valueobjects.ErrorEnvelope, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	unlock := u.Locks.Lock(cmd.SubmissionID)
	defer unlock()

	submission, envelope, err := loadAndGuard(ctx, u.Submissions, u.Events, u.IDGenerator, cmd.SubmissionID, cmd.ResumeToken, now,
		func(s entities.SubmissionState) bool { return s.Canonical() == entities.StateSubmitted })
	if err != nil || envelope != nil {
		return SetFieldsResult{Expired: envelope != nil}, envelope, err
	}

	intake, err := u.Registry.GetIntake(ctx, submission.IntakeID)
	if err != nil {
		return SetFieldsResult{}, nil, err
	}

	merged := make(map[string]any, len(submission.Fields)+len(cmd.Fields))
	for k, v := range submission.Fields {
		merged[k] = v
	}
	for k, v := range cmd.Fields {
		merged[k] = v
	}
	validation := services.EvaluateFields(intake.Schema, merged, submission.Uploads, true)
	for path := range cmd.Fields {
		if entities.IsReservedFieldPath(path) {
			validation.OK = false
			validation.Errors = append(validation.Errors, valueobjects.FieldError{
				Path: path, Code: valueobjects.FieldErrInvalidValue, Message: "field path is reserved",
			})
		}
	}
	if !validation.OK {
		return SetFieldsResult{}, validationEnvelope(validation), nil
	}

	diffs := submission.ApplyFields(cmd.Fields, cmd.Actor, now)

	if submission.State.Canonical() == entities.StateDraft {
		if err := services.AssertValidTransition(submission.State, entities.StateInProgress); err != nil {
			return SetFieldsResult{}, nil, err
		}
		submission.State = entities.StateInProgress
	}

	newToken, err := generateResumeToken()
	if err != nil {
		return SetFieldsResult{}, nil, err
	}
	submission.ResumeToken = newToken

	if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
		logger.Error("set fields persist failed",
			"event", "set_fields_persist_failed",
			"module", "intake-core", "layer", "application",
			"submission_id", submission.ID, "error", err.Error(),
		)
		return SetFieldsResult{}, nil, err
	}

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return SetFieldsResult{}, nil, err
	}
	payload := make(map[string]any, len(diffs))
	for _, d := range diffs {
		payload[d.FieldPath] = map[string]any{"old_value": d.OldValue, "new_value": d.NewValue}
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: cmd.Actor, State: submission.State, Type: entities.EventFieldsUpdated,
		Payload: payload,
	}); err != nil {
		return SetFieldsResult{}, nil, err
	}

	logger.Info("fields updated",
		"event", "set_fields_completed",
		"module", "intake-core", "layer", "application",
		"submission_id", submission.ID, "field_count", len(cmd.Fields),
	)
	return SetFieldsResult{Submission: submission, NewResumeToken: newToken}, nil, nil
}

func (u SetFieldsUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
