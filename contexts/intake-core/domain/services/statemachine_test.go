package services

import (
	"errors"
	"testing"

	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
)

func TestAssertValidTransitionAllowsDocumentedEdges(t *testing.T) {
	cases := []struct {
		from, to entities.SubmissionState
	}{
		{entities.StateDraft, entities.StateInProgress},
		{entities.StateDraft, entities.StateAwaitingUpload},
		{entities.StateDraft, entities.StateCancelled},
		{entities.StateInProgress, entities.StateNeedsReview},
		{entities.StateAwaitingUpload, entities.StateInProgress},
		{entities.StateSubmitted, entities.StateFinalized},
		{entities.StateNeedsReview, entities.StateDraft},
		{entities.StateNeedsReview, entities.StateApproved},
		{entities.StateApproved, entities.StateSubmitted},
		{entities.StateCreated, entities.StateInProgress},
	}
	for _, c := range cases {
		if err := AssertValidTransition(c.from, c.to); err != nil {
			t.Errorf("expected %s -> %s to be legal, got %v", c.from, c.to, err)
		}
	}
}

func TestAssertValidTransitionRejectsTerminalOutgoingEdges(t *testing.T) {
	for _, terminal := range []entities.SubmissionState{
		entities.StateFinalized, entities.StateCancelled, entities.StateExpired, entities.StateRejected,
	} {
		if err := AssertValidTransition(terminal, entities.StateDraft); !errors.Is(err, domainerrors.ErrIllegalTransition) {
			t.Errorf("expected illegal transition out of %s, got %v", terminal, err)
		}
	}
}

func TestAssertValidTransitionRejectsUndeclaredStates(t *testing.T) {
	err := AssertValidTransition(entities.StateDraft, entities.SubmissionState("bogus"))
	if !errors.Is(err, domainerrors.ErrUnknownState) {
		t.Fatalf("expected unknown state error, got %v", err)
	}
}

func TestAssertValidTransitionRejectsUndeclaredEdge(t *testing.T) {
	err := AssertValidTransition(entities.StateSubmitted, entities.StateApproved)
	if !errors.Is(err, domainerrors.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
}
