package entities

import (
	"strings"
	"time"
)

// Submission is the root aggregate of the intake core.
type Submission struct {
	ID              string
	IntakeID        string
	State           SubmissionState
	ResumeToken     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       *time.Time
	Fields          map[string]any
	FieldAttribution map[string]Actor
	Uploads         map[string]UploadRecord
	CreatedBy       Actor
	UpdatedBy       Actor
	IdempotencyKeys map[string]struct{}
	ReviewDecisions []ReviewDecision
	DeliveryFailed  bool
}

// ReservedFieldPrefixes guards against prototype-pollution-style field
// paths and internal namespace collisions.
var ReservedFieldPrefixes = []string{"constructor", "prototype", "__proto__"}

// IsReservedFieldPath reports whether path hits a reserved prefix or the
// internal double-underscore namespace.
func IsReservedFieldPath(path string) bool {
	if strings.HasPrefix(path, "__") {
		return true
	}
	for _, prefix := range ReservedFieldPrefixes {
		if path == prefix {
			return true
		}
	}
	return false
}

// NewSubmission constructs a fresh aggregate in the given initial state.
// Callers (application/commands) are responsible for generating id and token.
func NewSubmission(id, intakeID, resumeToken string, createdBy Actor, now time.Time, expiresAt *time.Time) Submission {
	return Submission{
		ID:               id,
		IntakeID:         intakeID,
		State:            StateDraft,
		ResumeToken:      resumeToken,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        expiresAt,
		Fields:           make(map[string]any),
		FieldAttribution: make(map[string]Actor),
		Uploads:          make(map[string]UploadRecord),
		CreatedBy:        createdBy,
		UpdatedBy:        createdBy,
		IdempotencyKeys:  make(map[string]struct{}),
		ReviewDecisions:  nil,
	}
}

// FieldDiff records the before/after of one field write, used in field.updated
// and fields.updated event payloads.
type FieldDiff struct {
	FieldPath string
	OldValue  any
	NewValue  any
}

// ApplyFields writes accepted fields, updates attribution (last-writer-wins),
// and returns the diffs in write order for event emission.
func (s *Submission) ApplyFields(fields map[string]any, actor Actor, now time.Time) []FieldDiff {
	diffs := make([]FieldDiff, 0, len(fields))
	for path, value := range fields {
		old, existed := s.Fields[path]
		if !existed {
			old = nil
		}
		s.Fields[path] = value
		s.FieldAttribution[path] = actor
		diffs = append(diffs, FieldDiff{FieldPath: path, OldValue: old, NewValue: value})
	}
	s.UpdatedAt = now
	s.UpdatedBy = actor
	return diffs
}

// HasPendingUpload reports whether any upload on the submission is still pending.
func (s Submission) HasPendingUpload() bool {
	for _, u := range s.Uploads {
		if u.Pending() {
			return true
		}
	}
	return false
}

// IsExpired reports whether the submission's TTL has lapsed as of now.
func (s Submission) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// HasIdempotencyKey reports whether key has already been honored.
func (s Submission) HasIdempotencyKey(key string) bool {
	if key == "" {
		return false
	}
	_, ok := s.IdempotencyKeys[key]
	return ok
}

// RecordIdempotencyKey marks key as honored on this submission.
func (s *Submission) RecordIdempotencyKey(key string) {
	if key == "" {
		return
	}
	if s.IdempotencyKeys == nil {
		s.IdempotencyKeys = make(map[string]struct{})
	}
	s.IdempotencyKeys[key] = struct{}{}
}
