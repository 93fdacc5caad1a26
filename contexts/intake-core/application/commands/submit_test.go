package commands_test

import (
	"context"
	"testing"

	"formbridge/contexts/intake-core/application/commands"
	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
	"formbridge/contexts/intake-core/ports"
)

func completeContactForm(t *testing.T, h *harness) (entities.Submission, string) {
	t.Helper()
	created := createDraft(t, h)
	result, envelope, err := h.SetFields.Execute(context.Background(), commands.SetFieldsCommand{
		SubmissionID: created.Submission.ID, ResumeToken: created.Submission.ResumeToken,
		Actor: humanActor("human-1"), Fields: map[string]any{"name": "John", "email": "john@a.co", "message": "hi"},
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected setFields failure: envelope=%+v err=%v", envelope, err)
	}
	return result.Submission, result.NewResumeToken
}

func TestSubmitHappyPathGoesToSubmitted(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	sub, token := completeContactForm(t, h)

	result, envelope, err := h.Submit.Execute(context.Background(), commands.SubmitCommand{
		SubmissionID: sub.ID, ResumeToken: token, IdempotencyKey: "k1", Actor: humanActor("human-1"),
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure: envelope=%+v err=%v", envelope, err)
	}
	if result.Submission.State != entities.StateSubmitted {
		t.Fatalf("expected submitted state, got %s", result.Submission.State)
	}

	due, err := h.store.ListDue(context.Background(), h.clock.now, 10)
	if err != nil {
		t.Fatalf("unexpected list due failure: %v", err)
	}
	if len(due) != 1 || due[0].SubmissionID != sub.ID {
		t.Fatalf("expected submit to enqueue exactly one pending delivery, got %+v", due)
	}
}

func TestSubmitMissingRequiredFieldFailsValidation(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	created := createDraft(t, h)

	_, envelope, err := h.Submit.Execute(context.Background(), commands.SubmitCommand{
		SubmissionID: created.Submission.ID, ResumeToken: created.Submission.ResumeToken, Actor: agentActor("agent-1"),
	})
	if err != nil {
		t.Fatalf("unexpected thrown error: %v", err)
	}
	if envelope == nil {
		t.Fatalf("expected a validation_error envelope for an incomplete submission")
	}
}

// A replayed submit with the same idempotency key returns the same
// identifiers without emitting a second submission.submitted event.
func TestSubmitIdempotentByKey(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	sub, token := completeContactForm(t, h)

	first, envelope, err := h.Submit.Execute(context.Background(), commands.SubmitCommand{
		SubmissionID: sub.ID, ResumeToken: token, IdempotencyKey: "k9", Actor: humanActor("human-1"),
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure on first submit: envelope=%+v err=%v", envelope, err)
	}

	eventsBefore, err := h.store.ListEvents(context.Background(), sub.ID, ports.EventFilter{})
	if err != nil {
		t.Fatalf("unexpected list events failure: %v", err)
	}

	// The replay deliberately presents the token the first call consumed:
	// an idempotency-matched request must answer before token verification,
	// since the original call already rotated the token away.
	second, envelope, err := h.Submit.Execute(context.Background(), commands.SubmitCommand{
		SubmissionID: sub.ID, ResumeToken: token, IdempotencyKey: "k9", Actor: humanActor("human-1"),
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure on replayed submit: envelope=%+v err=%v", envelope, err)
	}
	if !second.Replayed {
		t.Fatalf("expected the replayed submit to be flagged as such")
	}
	if first.Submission.ID != second.Submission.ID {
		t.Fatalf("expected identical submissionId on replay")
	}

	eventsAfter, err := h.store.ListEvents(context.Background(), sub.ID, ports.EventFilter{})
	if err != nil {
		t.Fatalf("unexpected list events failure: %v", err)
	}
	if len(eventsAfter) != len(eventsBefore) {
		t.Fatalf("expected no new events on a replayed submit, had %d now have %d", len(eventsBefore), len(eventsAfter))
	}
}

func TestSubmitWithApprovalGateRoutesToNeedsReview(t *testing.T) {
	h := newHarness(t)
	intake := contactFormIntake()
	intake.ApprovalGates = []entities.ApprovalGate{{Name: "manual-review", AutoApproveIf: false}}
	h.registerIntake(intake)
	sub, token := completeContactForm(t, h)

	result, envelope, err := h.Submit.Execute(context.Background(), commands.SubmitCommand{
		SubmissionID: sub.ID, ResumeToken: token, Actor: humanActor("human-1"),
	})
	if err != nil {
		t.Fatalf("unexpected thrown error: %v", err)
	}
	if envelope == nil || envelope.Error.Type != "needs_approval" {
		t.Fatalf("expected a needs_approval envelope, got %+v", envelope)
	}
	if envelope.Error.Retryable {
		t.Fatalf("needs_approval must be non-retryable")
	}
	if len(envelope.Error.NextActions) != 1 || envelope.Error.NextActions[0].Kind != "wait_for_review" {
		t.Fatalf("expected a single wait_for_review next-action, got %+v", envelope.Error.NextActions)
	}
	if result.Submission.ID != "" {
		t.Fatalf("expected a zero-value result alongside a needs_approval envelope")
	}

	stored, err := h.store.GetSubmission(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("unexpected lookup failure: %v", err)
	}
	if stored.State != entities.StateNeedsReview {
		t.Fatalf("expected submission to be parked in needs_review, got %s", stored.State)
	}
}

func TestSubmitOnAlreadySubmittedWithoutIdempotencyKeyIsConflict(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	sub, token := completeContactForm(t, h)

	result, envelope, err := h.Submit.Execute(context.Background(), commands.SubmitCommand{
		SubmissionID: sub.ID, ResumeToken: token, Actor: humanActor("human-1"),
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure on first submit: envelope=%+v err=%v", envelope, err)
	}

	_, _, err = h.Submit.Execute(context.Background(), commands.SubmitCommand{
		SubmissionID: sub.ID, ResumeToken: result.NewResumeToken, Actor: humanActor("human-1"),
	})
	if err != domainerrors.ErrConflict {
		t.Fatalf("expected conflict re-submitting without a matching idempotency key, got %v", err)
	}
}
