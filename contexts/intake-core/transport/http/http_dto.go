// Package httptransport holds the request/response DTOs for the intake-core
// HTTP surface: plain structs, JSON tags, one ErrorResponse shape reused
// across every route.
package httptransport

import "formbridge/contexts/intake-core/domain/valueobjects"

// ActorDTO is the wire shape of entities.Actor.
type ActorDTO struct {
	Kind     string            `json:"kind"`
	ID       string            `json:"id"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type CreateSubmissionRequest struct {
	Actor          ActorDTO       `json:"actor"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	InitialFields  map[string]any `json:"initialFields,omitempty"`
	TTLMs          int64          `json:"ttlMs,omitempty"`
}

type CreateSubmissionResponse struct {
	Ok            bool             `json:"ok"`
	SubmissionID  string           `json:"submissionId"`
	State         string           `json:"state"`
	ResumeToken   string           `json:"resumeToken"`
	Schema        []SchemaFieldDTO `json:"schema"`
	MissingFields []string         `json:"missingFields,omitempty"`
	Fields        map[string]any   `json:"fields,omitempty"`
}

// SchemaFieldDTO is the wire shape of one declared intake field, echoed back
// on create so the caller knows what the intake expects without a second
// round trip.
type SchemaFieldDTO struct {
	Path     string   `json:"path"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	MinLen   int      `json:"minLen,omitempty"`
	MaxLen   int      `json:"maxLen,omitempty"`
	Accept   []string `json:"accept,omitempty"`
	MaxBytes int64    `json:"maxBytes,omitempty"`
}

type SetFieldsRequest struct {
	ResumeToken string         `json:"resumeToken"`
	Actor       ActorDTO       `json:"actor"`
	Fields      map[string]any `json:"fields"`
}

type SetFieldsResponse struct {
	Ok          bool           `json:"ok"`
	State       string         `json:"state"`
	ResumeToken string         `json:"resumeToken"`
	Fields      map[string]any `json:"fields,omitempty"`
}

type SubmitRequest struct {
	ResumeToken    string   `json:"resumeToken"`
	Actor          ActorDTO `json:"actor"`
	IdempotencyKey string   `json:"idempotencyKey"`
}

type SubmitResponse struct {
	Ok           bool   `json:"ok"`
	SubmissionID string `json:"submissionId"`
	State        string `json:"state"`
	ResumeToken  string `json:"resumeToken,omitempty"`
}

type RequestUploadRequest struct {
	ResumeToken string   `json:"resumeToken"`
	Actor       ActorDTO `json:"actor"`
	FieldPath   string   `json:"fieldPath"`
	Filename    string   `json:"filename"`
	MimeType    string   `json:"mimeType"`
	SizeBytes   int64    `json:"sizeBytes"`
}

type RequestUploadResponse struct {
	Ok          bool              `json:"ok"`
	UploadID    string            `json:"uploadId"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	ExpiresInMs int64             `json:"expiresInMs"`
	Constraints UploadConstraints `json:"constraints"`
	ResumeToken string            `json:"resumeToken"`
}

type UploadConstraints struct {
	Accept   []string `json:"accept,omitempty"`
	MaxBytes int64    `json:"maxBytes,omitempty"`
}

type ConfirmUploadRequest struct {
	ResumeToken string   `json:"resumeToken"`
	Actor       ActorDTO `json:"actor"`
}

type ConfirmUploadResponse struct {
	Ok           bool   `json:"ok"`
	SubmissionID string `json:"submissionId"`
	State        string `json:"state"`
	ResumeToken  string `json:"resumeToken"`
	FieldPath    string `json:"fieldPath"`
}

type ApproveRequest struct {
	ResumeToken string   `json:"resumeToken"`
	Actor       ActorDTO `json:"actor"`
	Comment     string   `json:"comment,omitempty"`
}

type RejectRequest struct {
	ResumeToken string   `json:"resumeToken"`
	Actor       ActorDTO `json:"actor"`
	Reason      string   `json:"reason"`
	Comment     string   `json:"comment,omitempty"`
}

type FieldCommentDTO struct {
	FieldPath string `json:"fieldPath"`
	Comment   string `json:"comment"`
}

type RequestChangesRequest struct {
	ResumeToken   string            `json:"resumeToken"`
	Actor         ActorDTO          `json:"actor"`
	FieldComments []FieldCommentDTO `json:"fieldComments,omitempty"`
	Comment       string            `json:"comment,omitempty"`
}

type ReviewResponse struct {
	Ok           bool   `json:"ok"`
	SubmissionID string `json:"submissionId"`
	State        string `json:"state"`
	ResumeToken  string `json:"resumeToken,omitempty"`
}

type CancelRequest struct {
	Actor  ActorDTO `json:"actor"`
	Reason string   `json:"reason,omitempty"`
}

type HandoffRequest struct {
	Actor ActorDTO `json:"actor"`
}

type HandoffResponse struct {
	Ok  bool   `json:"ok"`
	URL string `json:"url"`
}

type ResumedRequest struct {
	Actor ActorDTO `json:"actor"`
}

// SubmissionDTO is the full read-model view returned by GET routes.
type SubmissionDTO struct {
	ID               string                    `json:"id"`
	IntakeID         string                    `json:"intakeId"`
	State            string                    `json:"state"`
	CreatedAt        string                    `json:"createdAt"`
	UpdatedAt        string                    `json:"updatedAt"`
	ExpiresAt        string                    `json:"expiresAt,omitempty"`
	Fields           map[string]any            `json:"fields"`
	FieldAttribution map[string]ActorDTO       `json:"fieldAttribution"`
	Uploads          map[string]UploadEntryDTO `json:"uploads,omitempty"`
	DeliveryFailed   bool                      `json:"deliveryFailed,omitempty"`
}

type UploadEntryDTO struct {
	UploadID   string `json:"uploadId"`
	FieldPath  string `json:"fieldPath"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	SizeBytes  int64  `json:"sizeBytes"`
	Status     string `json:"status"`
	UploadedAt string `json:"uploadedAt,omitempty"`
	ExpiresAt  string `json:"expiresAt"`
}

// ErrorResponse wraps a domain/valueobjects.ErrorEnvelope for thrown errors
// that never produced one of their own (not_found, invalid_resume_token,
// internal_error). The error envelope is a closed taxonomy, so thrown errors
// are normalized into the same shape at the HTTP boundary.
type ErrorResponse = valueobjects.ErrorEnvelope
