// Package services holds free-function domain services: pure functions over
// plain domain types, no interfaces, no side effects.
package services

import (
	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
)

// transitionTable is the single source of truth for what a submission may
// become next. Terminal states have no outgoing edges.
var transitionTable = map[entities.SubmissionState]map[entities.SubmissionState]struct{}{
	entities.StateDraft: set(
		entities.StateInProgress, entities.StateAwaitingUpload, entities.StateSubmitted,
		entities.StateNeedsReview, entities.StateCancelled, entities.StateExpired,
	),
	entities.StateInProgress: set(
		entities.StateAwaitingUpload, entities.StateSubmitted, entities.StateNeedsReview,
		entities.StateCancelled, entities.StateExpired,
	),
	entities.StateAwaitingUpload: set(
		entities.StateInProgress, entities.StateCancelled, entities.StateExpired,
	),
	entities.StateSubmitted: set(
		entities.StateFinalized, entities.StateCancelled,
	),
	entities.StateNeedsReview: set(
		entities.StateApproved, entities.StateRejected, entities.StateDraft,
	),
	entities.StateApproved: set(
		entities.StateSubmitted, entities.StateFinalized,
	),
	entities.StateRejected:  {},
	entities.StateFinalized: {},
	entities.StateCancelled: {},
	entities.StateExpired:   {},
}

func set(states ...entities.SubmissionState) map[entities.SubmissionState]struct{} {
	m := make(map[entities.SubmissionState]struct{}, len(states))
	for _, s := range states {
		m[s] = struct{}{}
	}
	return m
}

// AssertValidTransition is called before every state write. A violation is a
// programmer error, returned as ErrIllegalTransition or ErrUnknownState the
// same way in every environment; nothing here panics or logs it.
// Callers never swallow this error; they propagate it.
func AssertValidTransition(from, to entities.SubmissionState) error {
	from, to = from.Canonical(), to.Canonical()
	if !from.Valid() || !to.Valid() {
		return domainerrors.ErrUnknownState
	}
	edges, ok := transitionTable[from]
	if !ok {
		return domainerrors.ErrUnknownState
	}
	if _, legal := edges[to]; !legal {
		return domainerrors.ErrIllegalTransition
	}
	return nil
}
