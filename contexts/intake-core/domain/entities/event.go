package entities

import "time"

// EventType enumerates the append-only audit events the core emits.
// Both the singular and plural field-update variants are declared, though
// setFields only ever emits the plural, batched form (see DESIGN.md
// "Event type granularity").
type EventType string

const (
	EventSubmissionCreated   EventType = "submission.created"
	EventFieldUpdated        EventType = "field.updated"
	EventFieldsUpdated       EventType = "fields.updated"
	EventValidationPassed    EventType = "validation.passed"
	EventValidationFailed    EventType = "validation.failed"
	EventUploadRequested     EventType = "upload.requested"
	EventUploadCompleted     EventType = "upload.completed"
	EventUploadFailed        EventType = "upload.failed"
	EventSubmissionSubmitted EventType = "submission.submitted"
	EventReviewRequested     EventType = "review.requested"
	EventReviewApproved      EventType = "review.approved"
	EventReviewRejected      EventType = "review.rejected"
	EventDeliveryAttempted   EventType = "delivery.attempted"
	EventDeliverySucceeded   EventType = "delivery.succeeded"
	EventDeliveryFailed      EventType = "delivery.failed"
	EventSubmissionFinalized EventType = "submission.finalized"
	EventSubmissionCancelled EventType = "submission.cancelled"
	EventSubmissionExpired   EventType = "submission.expired"
	EventHandoffLinkIssued   EventType = "handoff.link_issued"
	EventHandoffResumed      EventType = "handoff.resumed"
)

// Event is an append-only, per-submission versioned audit record.
// Events are opaque to the rest of the system; current state always lives
// on the Submission record.
type Event struct {
	EventID      string
	SubmissionID string
	Version      int
	Timestamp    time.Time
	Actor        Actor
	State        SubmissionState
	Type         EventType
	Payload      map[string]any
}
