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

type CancelCommand struct {
	SubmissionID string
	Actor        entities.Actor
	Reason       string
}

type CancelResult struct {
	Submission     entities.Submission
	NewResumeToken string
	AlreadyDone    bool
}

type CancelUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

// Execute drives a terminal cancellation that is idempotent: re-cancelling
// an already-cancelled submission returns success rather than conflict.
func (u CancelUseCase) Execute(ctx context.Context, cmd CancelCommand) (CancelResult, *valueobjects.ErrorEnvelope, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	unlock := u.Locks.Lock(cmd.SubmissionID)
	defer unlock()

	submission, err := u.Submissions.GetSubmission(ctx, cmd.SubmissionID)
	if err != nil {
		return CancelResult{}, nil, err
	}
	if submission.State.Canonical() == entities.StateCancelled {
		return CancelResult{Submission: submission, AlreadyDone: true}, nil, nil
	}
	if submission.State.Terminal() {
		env := valueobjects.NewErrorEnvelope(valueobjects.ErrTypeConflict, "submission is already in a terminal state")
		env.SubmissionID = submission.ID
		env.State = string(submission.State)
		return CancelResult{}, &env, nil
	}

	if err := services.AssertValidTransition(submission.State, entities.StateCancelled); err != nil {
		return CancelResult{}, nil, err
	}
	submission.State = entities.StateCancelled
	// Terminal or not, a state-mutating write rotates the token: the link a
	// departing actor still holds must not keep naming this submission.
	newToken, err := generateResumeToken()
	if err != nil {
		return CancelResult{}, nil, err
	}
	submission.ResumeToken = newToken
	submission.UpdatedAt = now
	submission.UpdatedBy = cmd.Actor

	if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
		return CancelResult{}, nil, err
	}
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return CancelResult{}, nil, err
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: cmd.Actor, State: submission.State, Type: entities.EventSubmissionCancelled,
		Payload: map[string]any{"reason": cmd.Reason},
	}); err != nil {
		return CancelResult{}, nil, err
	}

	logger.Info("submission cancelled",
		"event", "cancel_completed",
		"module", "intake-core", "layer", "application",
		"submission_id", submission.ID,
	)
	return CancelResult{Submission: submission, NewResumeToken: newToken}, nil, nil
}

func (u CancelUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

type ExpireCommand struct {
	SubmissionID string
}

type ExpireResult struct {
	Submission     entities.Submission
	NewResumeToken string
	AlreadyDone    bool
}

// ExpireUseCase is invoked by the expiry sweeper worker, not via HTTP: the
// system actor, not an end user, drives this transition.
type ExpireUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

func (u ExpireUseCase) Execute(ctx context.Context, cmd ExpireCommand) (ExpireResult, error) {
	now := u.now()

	unlock := u.Locks.Lock(cmd.SubmissionID)
	defer unlock()

	submission, err := u.Submissions.GetSubmission(ctx, cmd.SubmissionID)
	if err != nil {
		return ExpireResult{}, err
	}
	if submission.State.Canonical() == entities.StateExpired {
		return ExpireResult{Submission: submission, AlreadyDone: true}, nil
	}
	if submission.State.Terminal() {
		return ExpireResult{Submission: submission, AlreadyDone: true}, nil
	}
	if err := services.AssertValidTransition(submission.State, entities.StateExpired); err != nil {
		return ExpireResult{}, err
	}
	submission.State = entities.StateExpired
	newToken, err := generateResumeToken()
	if err != nil {
		return ExpireResult{}, err
	}
	submission.ResumeToken = newToken
	submission.UpdatedAt = now

	if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
		return ExpireResult{}, err
	}
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return ExpireResult{}, err
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: entities.Actor{Kind: entities.ActorKindSystem, ID: "expiry-sweeper"},
		State: submission.State, Type: entities.EventSubmissionExpired,
	}); err != nil {
		return ExpireResult{}, err
	}
	return ExpireResult{Submission: submission, NewResumeToken: newToken}, nil
}

func (u ExpireUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
