package commands_test

import (
	"context"
	"testing"

	"formbridge/contexts/intake-core/application/commands"
	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
)

func TestCreateSubmissionWithNoInitialFieldsStartsDraft(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())

	result, envelope, err := h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{
		IntakeID: "contact_form", Actor: agentActor("agent-1"),
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure: envelope=%+v err=%v", envelope, err)
	}
	if result.Submission.State != entities.StateDraft {
		t.Fatalf("expected draft state with no initial fields, got %s", result.Submission.State)
	}
	if len(result.Submission.ResumeToken) == 0 {
		t.Fatalf("expected a resume token to be issued")
	}
}

func TestCreateSubmissionWithInitialFieldsStartsInProgress(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())

	result, envelope, err := h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{
		IntakeID: "contact_form", Actor: agentActor("agent-1"), InitialFields: map[string]any{"name": "John"},
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure: envelope=%+v err=%v", envelope, err)
	}
	if result.Submission.State != entities.StateInProgress {
		t.Fatalf("expected in_progress state once a field is accepted, got %s", result.Submission.State)
	}
	if result.Submission.FieldAttribution["name"].ID != "agent-1" {
		t.Fatalf("expected initial field attribution to the creating actor")
	}
}

func TestCreateSubmissionUnknownIntakeReturnsNotFound(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{IntakeID: "does-not-exist", Actor: agentActor("a1")})
	if err != domainerrors.ErrIntakeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCreateSubmissionRejectsReservedFieldPaths(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())

	_, envelope, err := h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{
		IntakeID: "contact_form", Actor: agentActor("a1"), InitialFields: map[string]any{"__proto__": "x"},
	})
	if err != nil {
		t.Fatalf("unexpected thrown error: %v", err)
	}
	if envelope == nil {
		t.Fatalf("expected a validation_error envelope for a reserved field path")
	}
}

func TestCreateSubmissionInvalidInitialFieldFailsValidation(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())

	_, envelope, err := h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{
		IntakeID: "contact_form", Actor: agentActor("a1"), InitialFields: map[string]any{"email": "not-an-email"},
	})
	if err != nil {
		t.Fatalf("unexpected thrown error: %v", err)
	}
	if envelope == nil {
		t.Fatalf("expected validation_error envelope for an invalid email")
	}
}

// Two creates with the same (intakeId, idempotencyKey) must resolve to the
// same submissionId.
func TestCreateSubmissionIdempotentByKey(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())

	cmd := commands.CreateSubmissionCommand{
		IntakeID: "contact_form", Actor: agentActor("agent-1"), IdempotencyKey: "k1",
		InitialFields: map[string]any{"name": "John"},
	}
	first, envelope, err := h.Create.Execute(context.Background(), cmd)
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure on first create: envelope=%+v err=%v", envelope, err)
	}

	second, envelope, err := h.Create.Execute(context.Background(), cmd)
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure on replayed create: envelope=%+v err=%v", envelope, err)
	}
	if !second.Replayed {
		t.Fatalf("expected the second call to be reported as a replay")
	}
	if first.Submission.ID != second.Submission.ID {
		t.Fatalf("expected identical submissionId across replays, got %s and %s", first.Submission.ID, second.Submission.ID)
	}
}

func TestCreateSubmissionIdempotencyKeyReuseWithDifferentPayloadIsRejected(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())

	_, _, err := h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{
		IntakeID: "contact_form", Actor: agentActor("agent-1"), IdempotencyKey: "k1",
		InitialFields: map[string]any{"name": "John"},
	})
	if err != nil {
		t.Fatalf("unexpected failure on first create: %v", err)
	}

	_, _, err = h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{
		IntakeID: "contact_form", Actor: agentActor("agent-1"), IdempotencyKey: "k1",
		InitialFields: map[string]any{"name": "Someone Else"},
	})
	if err != domainerrors.ErrIdempotencyKeyReuse {
		t.Fatalf("expected idempotency key reuse error, got %v", err)
	}
}
