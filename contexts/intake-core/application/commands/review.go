package commands

import (
	"context"
	"log/slog"
	"time"

	application "formbridge/contexts/intake-core/application"
	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
	"formbridge/contexts/intake-core/domain/services"
	"formbridge/contexts/intake-core/ports"
)

// reviewGuard resolves the submission and enforces the two preconditions
// every Approval Manager operation shares: state == needs_review (else
// conflict) and a valid reviewer resume token.
func reviewGuard(ctx context.Context, submissions ports.SubmissionRepository, submissionID, resumeToken string) (entities.Submission, error) {
	submission, err := submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return entities.Submission{}, err
	}
	if submission.State.Canonical() != entities.StateNeedsReview {
		return entities.Submission{}, domainerrors.ErrConflict
	}
	if err := verifyResumeToken(submission.ResumeToken, resumeToken); err != nil {
		return entities.Submission{}, err
	}
	return submission, nil
}

// notifyReviewerSafely degrades silently when no ReviewNotifier is wired;
// its absence must not break the core approval operation.
func notifyReviewerSafely(ctx context.Context, notifier ports.ReviewNotifier, logger *slog.Logger, submissionID, intakeID string) {
	if notifier == nil {
		return
	}
	if err := notifier.NotifyReviewRequested(ctx, submissionID, intakeID); err != nil {
		logger.Warn("reviewer notification failed",
			"event", "review_notify_failed",
			"module", "intake-core", "layer", "application",
			"submission_id", submissionID, "error", err.Error(),
		)
	}
}

type ApproveCommand struct {
	SubmissionID string
	ResumeToken  string
	Actor        entities.Actor
	Comment      string
}

type ApproveResult struct {
	Submission     entities.Submission
	NewResumeToken string
}

type ApproveUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Outbox      ports.DeliveryOutbox
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

// Execute runs the needs_review -> approved -> submitted chain in one call:
// an approval always hands the submission straight to the Delivery Engine
// rather than parking it in `approved`.
func (u ApproveUseCase) Execute(ctx context.Context, cmd ApproveCommand) (ApproveResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	unlock := u.Locks.Lock(cmd.SubmissionID)
	defer unlock()

	submission, err := reviewGuard(ctx, u.Submissions, cmd.SubmissionID, cmd.ResumeToken)
	if err != nil {
		return ApproveResult{}, err
	}

	if err := services.AssertValidTransition(submission.State, entities.StateApproved); err != nil {
		return ApproveResult{}, err
	}
	submission.State = entities.StateApproved
	if err := services.AssertValidTransition(submission.State, entities.StateSubmitted); err != nil {
		return ApproveResult{}, err
	}
	submission.State = entities.StateSubmitted

	newToken, err := generateResumeToken()
	if err != nil {
		return ApproveResult{}, err
	}
	submission.ResumeToken = newToken
	submission.UpdatedAt = now
	submission.UpdatedBy = cmd.Actor
	submission.ReviewDecisions = append(submission.ReviewDecisions, entities.ReviewDecision{
		Action: entities.ReviewApprove, Actor: cmd.Actor, Timestamp: now, Comment: cmd.Comment,
	})

	if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
		return ApproveResult{}, err
	}
	if err := u.appendEvent(ctx, submission, cmd.Actor, entities.EventReviewApproved, now, map[string]any{"comment": cmd.Comment}); err != nil {
		return ApproveResult{}, err
	}
	if err := u.appendEvent(ctx, submission, cmd.Actor, entities.EventSubmissionSubmitted, now, nil); err != nil {
		return ApproveResult{}, err
	}
	if err := enqueueDelivery(ctx, u.Outbox, submission, now); err != nil {
		return ApproveResult{}, err
	}

	logger.Info("submission approved",
		"event", "approve_completed",
		"module", "intake-core", "layer", "application",
		"submission_id", submission.ID,
	)
	return ApproveResult{Submission: submission, NewResumeToken: newToken}, nil
}

func (u ApproveUseCase) appendEvent(ctx context.Context, submission entities.Submission, actor entities.Actor, eventType entities.EventType, now time.Time, payload map[string]any) error {
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return err
	}
	return u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: actor, State: submission.State, Type: eventType, Payload: payload,
	})
}

func (u ApproveUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

type RejectCommand struct {
	SubmissionID string
	ResumeToken  string
	Actor        entities.Actor
	Reason       string
	Comment      string
}

type RejectResult struct {
	Submission     entities.Submission
	NewResumeToken string
}

type RejectUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

func (u RejectUseCase) Execute(ctx context.Context, cmd RejectCommand) (RejectResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	unlock := u.Locks.Lock(cmd.SubmissionID)
	defer unlock()

	submission, err := reviewGuard(ctx, u.Submissions, cmd.SubmissionID, cmd.ResumeToken)
	if err != nil {
		return RejectResult{}, err
	}
	if err := services.AssertValidTransition(submission.State, entities.StateRejected); err != nil {
		return RejectResult{}, err
	}
	submission.State = entities.StateRejected
	newToken, err := generateResumeToken()
	if err != nil {
		return RejectResult{}, err
	}
	submission.ResumeToken = newToken
	submission.UpdatedAt = now
	submission.UpdatedBy = cmd.Actor
	submission.ReviewDecisions = append(submission.ReviewDecisions, entities.ReviewDecision{
		Action: entities.ReviewReject, Actor: cmd.Actor, Timestamp: now, Reason: cmd.Reason, Comment: cmd.Comment,
	})

	if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
		return RejectResult{}, err
	}
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RejectResult{}, err
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: cmd.Actor, State: submission.State, Type: entities.EventReviewRejected,
		Payload: map[string]any{"reason": cmd.Reason, "comment": cmd.Comment},
	}); err != nil {
		return RejectResult{}, err
	}

	logger.Info("submission rejected",
		"event", "reject_completed",
		"module", "intake-core", "layer", "application",
		"submission_id", submission.ID,
	)
	return RejectResult{Submission: submission, NewResumeToken: newToken}, nil
}

func (u RejectUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

type RequestChangesCommand struct {
	SubmissionID  string
	ResumeToken   string
	Actor         entities.Actor
	FieldComments []entities.FieldComment
	Comment       string
}

type RequestChangesResult struct {
	Submission     entities.Submission
	NewResumeToken string
}

type RequestChangesUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

// Execute transitions a submission under review back to draft rather than a
// dedicated state, which is why draft is a legal successor of needs_review
// in the transition table.
func (u RequestChangesUseCase) Execute(ctx context.Context, cmd RequestChangesCommand) (RequestChangesResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	unlock := u.Locks.Lock(cmd.SubmissionID)
	defer unlock()

	submission, err := reviewGuard(ctx, u.Submissions, cmd.SubmissionID, cmd.ResumeToken)
	if err != nil {
		return RequestChangesResult{}, err
	}
	if err := services.AssertValidTransition(submission.State, entities.StateDraft); err != nil {
		return RequestChangesResult{}, err
	}
	submission.State = entities.StateDraft

	newToken, err := generateResumeToken()
	if err != nil {
		return RequestChangesResult{}, err
	}
	submission.ResumeToken = newToken
	submission.UpdatedAt = now
	submission.UpdatedBy = cmd.Actor
	submission.ReviewDecisions = append(submission.ReviewDecisions, entities.ReviewDecision{
		Action: entities.ReviewRequestChanges, Actor: cmd.Actor, Timestamp: now,
		Comment: cmd.Comment, FieldComments: cmd.FieldComments,
	})

	if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
		return RequestChangesResult{}, err
	}
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RequestChangesResult{}, err
	}
	fieldPaths := make([]string, 0, len(cmd.FieldComments))
	for _, fc := range cmd.FieldComments {
		fieldPaths = append(fieldPaths, fc.FieldPath)
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: cmd.Actor, State: submission.State, Type: entities.EventReviewRequested,
		Payload: map[string]any{"action": "request_changes", "fields": fieldPaths, "comment": cmd.Comment},
	}); err != nil {
		return RequestChangesResult{}, err
	}

	logger.Info("changes requested",
		"event", "request_changes_completed",
		"module", "intake-core", "layer", "application",
		"submission_id", submission.ID,
	)
	return RequestChangesResult{Submission: submission, NewResumeToken: newToken}, nil
}

func (u RequestChangesUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
