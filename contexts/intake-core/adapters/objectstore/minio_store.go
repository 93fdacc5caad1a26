// Package objectstore negotiates the two-phase upload handshake against an
// S3-compatible bucket via minio-go: a presigned PUT to start, a stat of the
// object to confirm.
package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"

	"formbridge/contexts/intake-core/ports"
)

// Store issues presigned PUT URLs for upload and verifies completed objects
// by statting them, implementing ports.ObjectStore.
type Store struct {
	client     *minio.Client
	bucket     string
	urlTTL     time.Duration
}

func New(client *minio.Client, bucket string, urlTTL time.Duration) *Store {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &Store{client: client, bucket: bucket, urlTTL: urlTTL}
}

func (s *Store) IssueUploadURL(ctx context.Context, req ports.UploadURLRequest) (ports.UploadURLResult, error) {
	key := objectKey(req.IntakeID, req.SubmissionID, req.UploadID, req.Filename)

	signedURL, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.urlTTL)
	if err != nil {
		return ports.UploadURLResult{}, err
	}

	headers := map[string]string{}
	if req.MimeType != "" {
		headers["Content-Type"] = req.MimeType
	}

	return ports.UploadURLResult{
		Method:      http.MethodPut,
		URL:         signedURL.String(),
		Headers:     headers,
		StorageKey:  key,
		ExpiresInMs: s.urlTTL.Milliseconds(),
	}, nil
}

func (s *Store) VerifyUpload(ctx context.Context, storageKey string) (ports.UploadVerificationStatus, string, error) {
	info, err := s.client.StatObject(ctx, s.bucket, storageKey, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return ports.VerificationPending, "", nil
		}
		return ports.VerificationFailed, err.Error(), nil
	}
	if info.Size == 0 {
		return ports.VerificationFailed, "uploaded object is empty", nil
	}
	return ports.VerificationCompleted, "", nil
}

func objectKey(intakeID, submissionID, uploadID, filename string) string {
	return fmt.Sprintf("intake/%s/%s/%s-%s", intakeID, submissionID, uploadID, filename)
}
