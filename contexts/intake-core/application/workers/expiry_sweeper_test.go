package workers_test

import (
	"context"
	"testing"
	"time"

	"formbridge/contexts/intake-core/adapters/memory"
	"formbridge/contexts/intake-core/application/workers"
	"formbridge/contexts/intake-core/domain/entities"
)

func TestExpirySweeperExpiresLapsedSubmissions(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fixedClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ids := &sequentialIDs{}

	past := clock.now.Add(-time.Minute)
	lapsed := entities.NewSubmission("sub-lapsed", "intake-1", "tok-1", entities.Actor{}, clock.now.Add(-time.Hour), &past)
	if err := store.SaveSubmission(context.Background(), lapsed); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	future := clock.now.Add(time.Hour)
	live := entities.NewSubmission("sub-live", "intake-1", "tok-2", entities.Actor{}, clock.now.Add(-time.Hour), &future)
	if err := store.SaveSubmission(context.Background(), live); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	sweeper := workers.ExpirySweeper{Submissions: store, Events: store, Clock: clock, IDGenerator: ids}
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}

	expired, err := store.GetSubmission(context.Background(), "sub-lapsed")
	if err != nil {
		t.Fatalf("unexpected lookup failure: %v", err)
	}
	if expired.State != entities.StateExpired {
		t.Fatalf("expected the lapsed submission to be expired, got %s", expired.State)
	}

	notExpired, err := store.GetSubmission(context.Background(), "sub-live")
	if err != nil {
		t.Fatalf("unexpected lookup failure: %v", err)
	}
	if notExpired.State == entities.StateExpired {
		t.Fatalf("a submission with a future expiry must not be swept")
	}
}

// A submission already in a terminal state is never enumerated by the
// sweep, let alone re-transitioned or double-evented.
func TestExpirySweeperSkipsTerminalSubmissions(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fixedClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ids := &sequentialIDs{}

	past := clock.now.Add(-time.Minute)
	cancelled := entities.NewSubmission("sub-cancelled", "intake-1", "tok-1", entities.Actor{}, clock.now.Add(-time.Hour), &past)
	cancelled.State = entities.StateCancelled
	if err := store.SaveSubmission(context.Background(), cancelled); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	sweeper := workers.ExpirySweeper{Submissions: store, Events: store, Clock: clock, IDGenerator: ids}
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}

	stored, err := store.GetSubmission(context.Background(), "sub-cancelled")
	if err != nil {
		t.Fatalf("unexpected lookup failure: %v", err)
	}
	if stored.State != entities.StateCancelled {
		t.Fatalf("expected a cancelled submission to remain cancelled, got %s", stored.State)
	}
}
