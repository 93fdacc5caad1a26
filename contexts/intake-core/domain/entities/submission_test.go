package entities

import (
	"testing"
	"time"
)

func TestIsReservedFieldPath(t *testing.T) {
	reserved := []string{"constructor", "prototype", "__proto__", "__uploads", "__anything"}
	for _, p := range reserved {
		if !IsReservedFieldPath(p) {
			t.Errorf("expected %q to be reserved", p)
		}
	}
	for _, p := range []string{"name", "email", "address.line1"} {
		if IsReservedFieldPath(p) {
			t.Errorf("expected %q not to be reserved", p)
		}
	}
}

func TestApplyFieldsLastWriterWinsAttribution(t *testing.T) {
	now := time.Now().UTC()
	s := NewSubmission("sub-1", "intake-1", "tok-1", Actor{Kind: ActorKindAgent, ID: "agent-1"}, now, nil)

	s.ApplyFields(map[string]any{"name": "John"}, Actor{Kind: ActorKindAgent, ID: "agent-1"}, now)
	s.ApplyFields(map[string]any{"name": "Johnny"}, Actor{Kind: ActorKindHuman, ID: "human-1"}, now)

	if s.Fields["name"] != "Johnny" {
		t.Fatalf("expected last write to win, got %v", s.Fields["name"])
	}
	if s.FieldAttribution["name"].ID != "human-1" {
		t.Fatalf("expected attribution to track the most recent writer, got %+v", s.FieldAttribution["name"])
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	s := NewSubmission("sub-1", "intake-1", "tok-1", Actor{}, now, &past)
	if !s.IsExpired(now) {
		t.Fatalf("expected submission with past ExpiresAt to be expired")
	}
	s.ExpiresAt = &future
	if s.IsExpired(now) {
		t.Fatalf("expected submission with future ExpiresAt not to be expired")
	}
	s.ExpiresAt = nil
	if s.IsExpired(now) {
		t.Fatalf("a submission with no ExpiresAt never expires")
	}
}

func TestIdempotencyKeyRecording(t *testing.T) {
	s := NewSubmission("sub-1", "intake-1", "tok-1", Actor{}, time.Now().UTC(), nil)
	if s.HasIdempotencyKey("k1") {
		t.Fatalf("unrecorded key should not be present")
	}
	s.RecordIdempotencyKey("k1")
	if !s.HasIdempotencyKey("k1") {
		t.Fatalf("expected key to be recorded")
	}
}

func TestStateCanonicalAliasesCreatedToDraft(t *testing.T) {
	if StateCreated.Canonical() != StateDraft {
		t.Fatalf("expected created to alias to draft")
	}
	if !StateCreated.Valid() {
		t.Fatalf("expected legacy created state to remain valid on read")
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []SubmissionState{StateFinalized, StateCancelled, StateExpired, StateRejected} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []SubmissionState{StateDraft, StateInProgress, StateAwaitingUpload, StateSubmitted, StateNeedsReview, StateApproved} {
		if s.Terminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}
