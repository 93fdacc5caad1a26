// Package events holds the outbound webhook payload envelope: the JSON body
// actually POSTed to a webhook/callback destination. Distinct from the
// canonical contracts/gen/events/v1.Envelope, which is reserved for
// queue-kind delivery.
package events

import "time"

// WebhookPayload is the body signed and POSTed by adapters/webhook for
// webhook and callback destinations.
type WebhookPayload struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	SubmissionID  string         `json:"submission_id"`
	IntakeID      string         `json:"intake_id"`
	OccurredAtUTC time.Time      `json:"occurred_at_utc"`
	Fields        map[string]any `json:"fields"`
}
