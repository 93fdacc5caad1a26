package entities

import "time"

type ReviewAction string

const (
	ReviewApprove        ReviewAction = "approve"
	ReviewReject         ReviewAction = "reject"
	ReviewRequestChanges ReviewAction = "request_changes"
)

// FieldComment annotates a single field during a request_changes decision.
type FieldComment struct {
	FieldPath string
	Comment   string
}

// ReviewDecision records one approval-gate decision against a submission.
type ReviewDecision struct {
	Action        ReviewAction
	Actor         Actor
	Timestamp     time.Time
	Comment       string
	Reason        string
	FieldComments []FieldComment
}
