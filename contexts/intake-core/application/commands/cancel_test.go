package commands_test

import (
	"context"
	"testing"
	"time"

	"formbridge/contexts/intake-core/application/commands"
	"formbridge/contexts/intake-core/domain/entities"
)

func TestCancelTransitionsDraftToTerminalCancelled(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	created := createDraft(t, h)

	result, envelope, err := h.Cancel.Execute(context.Background(), commands.CancelCommand{
		SubmissionID: created.Submission.ID, Actor: humanActor("human-1"), Reason: "no longer needed",
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure: envelope=%+v err=%v", envelope, err)
	}
	if result.Submission.State != entities.StateCancelled {
		t.Fatalf("expected cancelled state, got %s", result.Submission.State)
	}
	if result.AlreadyDone {
		t.Fatalf("the first cancel call must not be reported as already done")
	}
	if result.NewResumeToken == "" || result.NewResumeToken == created.Submission.ResumeToken {
		t.Fatalf("expected cancel to rotate the resume token like every other state-mutating write")
	}
}

// TestCancelIsIdempotent re-cancels an already-cancelled submission and
// expects success (AlreadyDone=true) rather than a conflict.
func TestCancelIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	created := createDraft(t, h)

	_, envelope, err := h.Cancel.Execute(context.Background(), commands.CancelCommand{SubmissionID: created.Submission.ID, Actor: humanActor("human-1")})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure on first cancel: envelope=%+v err=%v", envelope, err)
	}

	result, envelope, err := h.Cancel.Execute(context.Background(), commands.CancelCommand{SubmissionID: created.Submission.ID, Actor: humanActor("human-1")})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure on re-cancel: envelope=%+v err=%v", envelope, err)
	}
	if !result.AlreadyDone {
		t.Fatalf("expected re-cancelling an already-cancelled submission to be reported as already done")
	}
}

func TestCancelOnOtherTerminalStateIsConflict(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	created := createDraft(t, h)

	_, err := h.Expire.Execute(context.Background(), commands.ExpireCommand{SubmissionID: created.Submission.ID})
	if err != nil {
		t.Fatalf("unexpected expire failure: %v", err)
	}

	_, envelope, err := h.Cancel.Execute(context.Background(), commands.CancelCommand{SubmissionID: created.Submission.ID, Actor: humanActor("human-1")})
	if err != nil {
		t.Fatalf("unexpected thrown error: %v", err)
	}
	if envelope == nil || envelope.Error.Type != "conflict" {
		t.Fatalf("expected a conflict envelope cancelling an expired submission, got %+v", envelope)
	}
}

func TestExpireTransitionsLapsedSubmissionToExpired(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	created := createDraft(t, h)

	result, err := h.Expire.Execute(context.Background(), commands.ExpireCommand{SubmissionID: created.Submission.ID})
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if result.Submission.State != entities.StateExpired {
		t.Fatalf("expected expired state, got %s", result.Submission.State)
	}
	if result.NewResumeToken == "" || result.NewResumeToken == created.Submission.ResumeToken {
		t.Fatalf("expected the expiry transition to rotate the resume token")
	}
}

// Sweeping an already-terminal submission a second time is a no-op, not an
// error, and emits no new event.
func TestExpireIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	created := createDraft(t, h)

	_, err := h.Expire.Execute(context.Background(), commands.ExpireCommand{SubmissionID: created.Submission.ID})
	if err != nil {
		t.Fatalf("unexpected failure on first expire: %v", err)
	}

	h.clock.Advance(time.Hour)
	result, err := h.Expire.Execute(context.Background(), commands.ExpireCommand{SubmissionID: created.Submission.ID})
	if err != nil {
		t.Fatalf("unexpected failure on second expire: %v", err)
	}
	if !result.AlreadyDone {
		t.Fatalf("expected a repeated expire sweep to be reported as already done")
	}
}

func TestExpireOnCancelledSubmissionIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	created := createDraft(t, h)

	_, envelope, err := h.Cancel.Execute(context.Background(), commands.CancelCommand{SubmissionID: created.Submission.ID, Actor: humanActor("human-1")})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected cancel failure: envelope=%+v err=%v", envelope, err)
	}

	result, err := h.Expire.Execute(context.Background(), commands.ExpireCommand{SubmissionID: created.Submission.ID})
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if !result.AlreadyDone || result.Submission.State != entities.StateCancelled {
		t.Fatalf("expiring a cancelled submission must leave it cancelled and be a no-op, got %+v", result)
	}
}
