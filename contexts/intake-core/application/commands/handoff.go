package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	application "formbridge/contexts/intake-core/application"
	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/ports"
)

type GenerateHandoffURLCommand struct {
	SubmissionID string
	Actor        entities.Actor
}

type GenerateHandoffURLResult struct {
	URL         string
	ResumeToken string
}

// GenerateHandoffUseCase embeds the *current* resume token in a URL without
// rotating it, so that handing the link to another actor does not itself
// invalidate it.
type GenerateHandoffUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	BaseURL     string
	Logger      *slog.Logger
}

func (u GenerateHandoffUseCase) Execute(ctx context.Context, cmd GenerateHandoffURLCommand) (GenerateHandoffURLResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	unlock := u.Locks.Lock(cmd.SubmissionID)
	defer unlock()

	submission, err := u.Submissions.GetSubmission(ctx, cmd.SubmissionID)
	if err != nil {
		return GenerateHandoffURLResult{}, err
	}

	resumeURL := fmt.Sprintf("%s/resume?token=%s", u.BaseURL, url.QueryEscape(submission.ResumeToken))

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return GenerateHandoffURLResult{}, err
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: cmd.Actor, State: submission.State, Type: entities.EventHandoffLinkIssued,
	}); err != nil {
		return GenerateHandoffURLResult{}, err
	}

	logger.Info("handoff url issued",
		"event", "handoff_link_issued",
		"module", "intake-core", "layer", "application",
		"submission_id", submission.ID,
	)
	return GenerateHandoffURLResult{URL: resumeURL, ResumeToken: submission.ResumeToken}, nil
}

func (u GenerateHandoffUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

type EmitHandoffResumedCommand struct {
	ResumeToken string
	Actor       entities.Actor
}

type EmitHandoffResumedResult struct {
	Submission entities.Submission
}

// EmitHandoffResumedUseCase is the dual of GenerateHandoffUseCase: it
// resolves by token, records the event, and deliberately does not mutate
// submission state or rotate the token.
type EmitHandoffResumedUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

func (u EmitHandoffResumedUseCase) Execute(ctx context.Context, cmd EmitHandoffResumedCommand) (EmitHandoffResumedResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	submission, err := u.Submissions.GetByResumeToken(ctx, cmd.ResumeToken)
	if err != nil {
		return EmitHandoffResumedResult{}, err
	}

	unlock := u.Locks.Lock(submission.ID)
	defer unlock()

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return EmitHandoffResumedResult{}, err
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: cmd.Actor, State: submission.State, Type: entities.EventHandoffResumed,
	}); err != nil {
		return EmitHandoffResumedResult{}, err
	}

	logger.Info("handoff resumed",
		"event", "handoff_resumed",
		"module", "intake-core", "layer", "application",
		"submission_id", submission.ID, "actor_kind", string(cmd.Actor.Kind),
	)
	return EmitHandoffResumedResult{Submission: submission}, nil
}

func (u EmitHandoffResumedUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
