package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	application "formbridge/contexts/intake-core/application"
	"formbridge/contexts/intake-core/application/commands"
	"formbridge/contexts/intake-core/ports"
)

// ExpirySweeper periodically transitions submissions whose TTL has lapsed to
// `expired`. The batch fans out concurrently since each submission's
// transition is independent and serialized only by its own per-submission
// lock, shared with the rest of the application layer so a sweep can never
// race a concurrent command against the same submission.
type ExpirySweeper struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	BatchSize   int
	Concurrency int
	Logger      *slog.Logger
}

func (s ExpirySweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}

	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}
	due, err := s.Submissions.ListExpirable(ctx, now, limit)
	if err != nil {
		logger.Error("expiry sweep list failed",
			"event", "intake_core_expiry_list_failed",
			"module", "intake-core", "layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(due) == 0 {
		return nil
	}

	expirer := commands.ExpireUseCase{
		Submissions: s.Submissions, Events: s.Events,
		Clock: s.Clock, IDGenerator: s.IDGenerator, Locks: s.Locks, Logger: s.Logger,
	}

	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	var expiredCount atomic.Int64
	for _, submission := range due {
		submissionID := submission.ID
		group.Go(func() error {
			result, err := expirer.Execute(groupCtx, commands.ExpireCommand{SubmissionID: submissionID})
			if err != nil {
				logger.Error("expiry sweep transition failed",
					"event", "intake_core_expiry_transition_failed",
					"module", "intake-core", "layer", "worker",
					"submission_id", submissionID, "error", err.Error(),
				)
				return err
			}
			if !result.AlreadyDone {
				expiredCount.Add(1)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if n := expiredCount.Load(); n > 0 {
		logger.Info("expiry sweep completed",
			"event", "intake_core_expiry_sweep_completed",
			"module", "intake-core", "layer", "worker",
			"expired_count", n,
		)
	}
	return nil
}
