// Package errors holds the flat sentinel-error taxonomy for the intake core.
// These are "thrown" errors: programmer or precondition failures compared
// with errors.Is, distinct from the structured envelope errors returned to
// callers (see domain/valueobjects).
package errors

import "errors"

var (
	ErrInvalidActor          = errors.New("invalid actor")
	ErrIntakeNotFound        = errors.New("intake not found")
	ErrIntakeAlreadyExists   = errors.New("intake already registered")
	ErrInvalidIntakeDef      = errors.New("invalid intake definition")
	ErrSubmissionNotFound    = errors.New("submission not found")
	ErrInvalidResumeToken    = errors.New("invalid resume token")
	ErrConflict              = errors.New("submission is in a terminal or conflicting state")
	ErrExpired               = errors.New("submission expired")
	ErrValidation            = errors.New("field validation failed")
	ErrNeedsApproval         = errors.New("submission requires review")
	ErrIllegalTransition     = errors.New("illegal state transition")
	ErrUnknownState          = errors.New("unknown submission state")
	ErrReservedFieldPath     = errors.New("field path is reserved")
	ErrFieldNotFileTyped     = errors.New("field is not declared as a file upload")
	ErrUploadNotFound        = errors.New("upload not found")
	ErrUploadFailed          = errors.New("upload failed")
	ErrObjectStoreMissing    = errors.New("object storage backend is not configured")
	ErrIdempotencyKeyReuse   = errors.New("idempotency key reused with a different request")
	ErrDuplicateEvent        = errors.New("duplicate event id")
	ErrInvalidReviewDecision = errors.New("invalid review decision")
)
