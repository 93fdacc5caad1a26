package entities

// SubmissionState is one of the ten lifecycle states plus the legacy
// `created` alias (accepted on read, never written).
type SubmissionState string

const (
	StateCreated         SubmissionState = "created" // legacy alias for StateDraft, read-only
	StateDraft           SubmissionState = "draft"
	StateInProgress      SubmissionState = "in_progress"
	StateAwaitingUpload  SubmissionState = "awaiting_upload"
	StateSubmitted       SubmissionState = "submitted"
	StateNeedsReview     SubmissionState = "needs_review"
	StateApproved        SubmissionState = "approved"
	StateFinalized       SubmissionState = "finalized"
	StateCancelled       SubmissionState = "cancelled"
	StateExpired         SubmissionState = "expired"
	StateRejected        SubmissionState = "rejected"
)

// Canonical normalizes the legacy created alias to draft.
func (s SubmissionState) Canonical() SubmissionState {
	if s == StateCreated {
		return StateDraft
	}
	return s
}

func (s SubmissionState) Valid() bool {
	switch s.Canonical() {
	case StateDraft, StateInProgress, StateAwaitingUpload, StateSubmitted,
		StateNeedsReview, StateApproved, StateFinalized, StateCancelled,
		StateExpired, StateRejected:
		return true
	default:
		return false
	}
}

// CanExpire reports whether the TTL may lapse this state to expired. Only
// the pre-submission states carry an expired edge in the transition table;
// a submission parked in review or delivery is no longer TTL-governed.
func (s SubmissionState) CanExpire() bool {
	switch s.Canonical() {
	case StateDraft, StateInProgress, StateAwaitingUpload:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are legal from this state.
func (s SubmissionState) Terminal() bool {
	switch s.Canonical() {
	case StateFinalized, StateCancelled, StateExpired, StateRejected:
		return true
	default:
		return false
	}
}
