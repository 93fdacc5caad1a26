package commands_test

import (
	"context"
	"strings"
	"testing"

	"formbridge/contexts/intake-core/application/commands"
	"formbridge/contexts/intake-core/domain/entities"
)

// TestHandoffFullCycle: generateHandoffUrl issues a link
// embedding the live token without rotating it, and emitHandoffResumed
// resolves that token without mutating submission state.
func TestHandoffFullCycle(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	created := createDraft(t, h)

	handoff, err := h.GenerateHandoff.Execute(context.Background(), commands.GenerateHandoffURLCommand{
		SubmissionID: created.Submission.ID, Actor: agentActor("agent-1"),
	})
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if handoff.ResumeToken != created.Submission.ResumeToken {
		t.Fatalf("generateHandoffUrl must not rotate the resume token")
	}
	if !strings.Contains(handoff.URL, handoff.ResumeToken) {
		t.Fatalf("expected the handoff URL to embed the resume token, got %q", handoff.URL)
	}

	resumed, err := h.EmitResumed.Execute(context.Background(), commands.EmitHandoffResumedCommand{
		ResumeToken: handoff.ResumeToken, Actor: humanActor("human-1"),
	})
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if resumed.Submission.ID != created.Submission.ID {
		t.Fatalf("expected emitHandoffResumed to resolve the same submission")
	}
	if resumed.Submission.State != entities.StateDraft {
		t.Fatalf("emitHandoffResumed must not mutate submission state, got %s", resumed.Submission.State)
	}

	after, err := h.store.GetSubmission(context.Background(), created.Submission.ID)
	if err != nil {
		t.Fatalf("unexpected lookup failure: %v", err)
	}
	if after.ResumeToken != created.Submission.ResumeToken {
		t.Fatalf("emitHandoffResumed must not rotate the resume token")
	}
}

func TestGenerateHandoffUnknownSubmissionReturnsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.GenerateHandoff.Execute(context.Background(), commands.GenerateHandoffURLCommand{SubmissionID: "does-not-exist", Actor: agentActor("a1")})
	if err == nil {
		t.Fatalf("expected an error for an unknown submission")
	}
}
