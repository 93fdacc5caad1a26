// Package outbox holds the Delivery Engine's persisted retry-attempt row,
// adapted from the generic outbox message shape used elsewhere in this
// codebase: a row written alongside a state transition, read back by a
// background worker that advances or retires it.
package outbox

import "time"

// DeliveryRecord tracks one submitted submission's progress through the
// Delivery Engine's retry schedule, up to finalization or terminal failure.
type DeliveryRecord struct {
	SubmissionID string
	IntakeID     string
	Payload      []byte // JSON-encoded field snapshot taken at enqueue time; the engine sends the submission's stored fields, not this copy
	Attempt      int
	Status       string // pending, succeeded, failed
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
