package commands

import (
	"context"
	"time"

	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
	"formbridge/contexts/intake-core/domain/valueobjects"
	"formbridge/contexts/intake-core/ports"
)

// loadAndGuard centralizes the resolve/conflict-check/token-verify/expiry-check
// sequence every state-mutating operation performs. isBlocked reports whether
// the submission's current state conflicts with the requested operation,
// beyond the universal terminal-state block.
func loadAndGuard(
	ctx context.Context,
	submissions ports.SubmissionRepository,
	events ports.EventRepository,
	idGenerator ports.IDGenerator,
	submissionID, resumeToken string,
	now time.Time,
	isBlocked func(entities.SubmissionState) bool,
) (entities.Submission, *valueobjects.ErrorEnvelope, error) {
	submission, err := submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return entities.Submission{}, nil, err
	}
	if submission.State.Terminal() || (isBlocked != nil && isBlocked(submission.State)) {
		return entities.Submission{}, nil, domainerrors.ErrConflict
	}
	if err := verifyResumeToken(submission.ResumeToken, resumeToken); err != nil {
		return entities.Submission{}, nil, err
	}
	// Lapsed TTL only forces the expired transition for states that carry an
	// expired edge; a submission parked in review keeps its reviewer queue.
	if submission.IsExpired(now) && submission.State.CanExpire() {
		submission.State = entities.StateExpired
		newToken, err := generateResumeToken()
		if err != nil {
			return entities.Submission{}, nil, err
		}
		submission.ResumeToken = newToken
		submission.UpdatedAt = now
		if err := submissions.SaveSubmission(ctx, submission); err != nil {
			return entities.Submission{}, nil, err
		}
		eventID, err := idGenerator.NewID(ctx)
		if err != nil {
			return entities.Submission{}, nil, err
		}
		if err := events.AppendEvent(ctx, entities.Event{
			EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
			Actor: entities.Actor{Kind: entities.ActorKindSystem, ID: "expiry-sweeper"},
			State: submission.State, Type: entities.EventSubmissionExpired,
		}); err != nil {
			return entities.Submission{}, nil, err
		}
		env := valueobjects.NewErrorEnvelope(valueobjects.ErrTypeExpired, "submission expired")
		env.SubmissionID = submission.ID
		env.State = string(submission.State)
		return entities.Submission{}, &env, nil
	}
	return submission, nil, nil
}
