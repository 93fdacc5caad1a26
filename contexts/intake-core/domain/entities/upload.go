package entities

import "time"

type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// UploadRecord tracks one in-flight or resolved file upload against a field.
type UploadRecord struct {
	UploadID   string
	FieldPath  string
	Filename   string
	MimeType   string
	SizeBytes  int64
	Status     UploadStatus
	StorageKey string
	UploadedAt *time.Time
	ExpiresAt  time.Time
}

func (u UploadRecord) Pending() bool {
	return u.Status == UploadPending
}
