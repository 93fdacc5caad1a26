package commands

import (
	"context"
	"log/slog"
	"time"

	application "formbridge/contexts/intake-core/application"
	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
	"formbridge/contexts/intake-core/domain/services"
	"formbridge/contexts/intake-core/domain/valueobjects"
	"formbridge/contexts/intake-core/ports"
)

type RequestUploadCommand struct {
	SubmissionID string
	ResumeToken  string
	Actor        entities.Actor
	FieldPath    string
	Filename     string
	MimeType     string
	SizeBytes    int64
}

type RequestUploadResult struct {
	UploadID       string
	Method         string
	URL            string
	Headers        map[string]string
	ExpiresInMs    int64
	Accept         []string
	MaxBytes       int64
	NewResumeToken string
}

type RequestUploadUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	Registry    ports.IntakeRegistry
	ObjectStore ports.ObjectStore
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

func (u RequestUploadUseCase) Execute(ctx context.Context, cmd RequestUploadCommand) (RequestUploadResult, *valueobjects.ErrorEnvelope, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	unlock := u.Locks.Lock(cmd.SubmissionID)
	defer unlock()

	submission, envelope, err := loadAndGuard(ctx, u.Submissions, u.Events, u.IDGenerator, cmd.SubmissionID, cmd.ResumeToken, now,
		func(s entities.SubmissionState) bool {
			c := s.Canonical()
			return c != entities.StateDraft && c != entities.StateInProgress && c != entities.StateAwaitingUpload
		})
	if err != nil || envelope != nil {
		return RequestUploadResult{}, envelope, err
	}

	intake, err := u.Registry.GetIntake(ctx, submission.IntakeID)
	if err != nil {
		return RequestUploadResult{}, nil, err
	}
	field, ok := intake.Schema.Field(cmd.FieldPath)
	if !ok || field.Type != "file" {
		env := valueobjects.NewErrorEnvelope(valueobjects.ErrTypeValidationError, "field is not declared as a file upload")
		env.Error.Fields = []valueobjects.FieldError{{Path: cmd.FieldPath, Code: valueobjects.FieldErrInvalidValue, Message: "not a file field"}}
		return RequestUploadResult{}, &env, nil
	}
	if field.MaxBytes > 0 && cmd.SizeBytes > field.MaxBytes {
		env := valueobjects.NewErrorEnvelope(valueobjects.ErrTypeValidationError, "file exceeds the declared size limit")
		env.Error.Fields = []valueobjects.FieldError{{Path: cmd.FieldPath, Code: valueobjects.FieldErrFileTooLarge, Message: "file exceeds the declared size limit"}}
		return RequestUploadResult{}, &env, nil
	}
	if len(field.Accept) > 0 && !mimeAccepted(field.Accept, cmd.MimeType) {
		env := valueobjects.NewErrorEnvelope(valueobjects.ErrTypeValidationError, "file type is not accepted for this field")
		env.Error.Fields = []valueobjects.FieldError{{Path: cmd.FieldPath, Code: valueobjects.FieldErrFileWrongType, Message: "file type is not accepted for this field"}}
		return RequestUploadResult{}, &env, nil
	}

	if u.ObjectStore == nil {
		return RequestUploadResult{}, nil, domainerrors.ErrObjectStoreMissing
	}

	uploadID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RequestUploadResult{}, nil, err
	}
	signed, err := u.ObjectStore.IssueUploadURL(ctx, ports.UploadURLRequest{
		IntakeID: submission.IntakeID, SubmissionID: submission.ID, FieldPath: cmd.FieldPath,
		UploadID: uploadID, Filename: cmd.Filename, MimeType: cmd.MimeType,
		MaxBytes: field.MaxBytes, Accept: field.Accept,
	})
	if err != nil {
		logger.Error("request upload signing failed",
			"event", "request_upload_sign_failed",
			"module", "intake-core", "layer", "application",
			"submission_id", submission.ID, "field_path", cmd.FieldPath, "error", err.Error(),
		)
		return RequestUploadResult{}, nil, err
	}

	expiresAt := now.Add(time.Duration(signed.ExpiresInMs) * time.Millisecond)
	if submission.Uploads == nil {
		submission.Uploads = make(map[string]entities.UploadRecord)
	}
	submission.Uploads[uploadID] = entities.UploadRecord{
		UploadID: uploadID, FieldPath: cmd.FieldPath, Filename: cmd.Filename,
		MimeType: cmd.MimeType, SizeBytes: cmd.SizeBytes, Status: entities.UploadPending,
		StorageKey: signed.StorageKey, ExpiresAt: expiresAt,
	}

	if c := submission.State.Canonical(); c == entities.StateDraft || c == entities.StateInProgress {
		if err := services.AssertValidTransition(submission.State, entities.StateAwaitingUpload); err != nil {
			return RequestUploadResult{}, nil, err
		}
		submission.State = entities.StateAwaitingUpload
	}

	newToken, err := generateResumeToken()
	if err != nil {
		return RequestUploadResult{}, nil, err
	}
	submission.ResumeToken = newToken
	submission.UpdatedAt = now
	submission.UpdatedBy = cmd.Actor

	if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
		return RequestUploadResult{}, nil, err
	}
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RequestUploadResult{}, nil, err
	}
	if err := u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: cmd.Actor, State: submission.State, Type: entities.EventUploadRequested,
		Payload: map[string]any{"upload_id": uploadID, "field_path": cmd.FieldPath},
	}); err != nil {
		return RequestUploadResult{}, nil, err
	}

	return RequestUploadResult{
		UploadID: uploadID, Method: signed.Method, URL: signed.URL, Headers: signed.Headers,
		ExpiresInMs: signed.ExpiresInMs, Accept: field.Accept, MaxBytes: field.MaxBytes,
		NewResumeToken: newToken,
	}, nil, nil
}

func mimeAccepted(accept []string, mimeType string) bool {
	for _, a := range accept {
		if a == mimeType {
			return true
		}
	}
	return false
}

func (u RequestUploadUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

type ConfirmUploadCommand struct {
	SubmissionID string
	ResumeToken  string
	UploadID     string
	Actor        entities.Actor
}

type ConfirmUploadResult struct {
	Submission     entities.Submission
	NewResumeToken string
	FieldPath      string
}

type ConfirmUploadUseCase struct {
	Submissions ports.SubmissionRepository
	Events      ports.EventRepository
	ObjectStore ports.ObjectStore
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Locks       *application.SubmissionLocks
	Logger      *slog.Logger
}

func (u ConfirmUploadUseCase) Execute(ctx context.Context, cmd ConfirmUploadCommand) (ConfirmUploadResult, *valueobjects.ErrorEnvelope, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	unlock := u.Locks.Lock(cmd.SubmissionID)
	defer unlock()

	submission, envelope, err := loadAndGuard(ctx, u.Submissions, u.Events, u.IDGenerator, cmd.SubmissionID, cmd.ResumeToken, now, nil)
	if err != nil || envelope != nil {
		return ConfirmUploadResult{}, envelope, err
	}

	upload, ok := submission.Uploads[cmd.UploadID]
	if !ok {
		return ConfirmUploadResult{}, nil, domainerrors.ErrUploadNotFound
	}
	if u.ObjectStore == nil {
		return ConfirmUploadResult{}, nil, domainerrors.ErrObjectStoreMissing
	}

	status, reason, err := u.ObjectStore.VerifyUpload(ctx, upload.StorageKey)
	if err != nil {
		return ConfirmUploadResult{}, nil, err
	}
	if status == ports.VerificationExpired {
		status = ports.VerificationFailed
	}

	switch status {
	case ports.VerificationCompleted:
		upload.Status = entities.UploadCompleted
		uploadedAt := now
		upload.UploadedAt = &uploadedAt
		submission.Uploads[cmd.UploadID] = upload

		if submission.State.Canonical() == entities.StateAwaitingUpload && !submission.HasPendingUpload() {
			if err := services.AssertValidTransition(submission.State, entities.StateInProgress); err != nil {
				return ConfirmUploadResult{}, nil, err
			}
			submission.State = entities.StateInProgress
		}
		newToken, err := generateResumeToken()
		if err != nil {
			return ConfirmUploadResult{}, nil, err
		}
		submission.ResumeToken = newToken
		submission.UpdatedAt = now
		submission.UpdatedBy = cmd.Actor
		if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
			return ConfirmUploadResult{}, nil, err
		}
		if err := u.appendUploadEvent(ctx, submission, cmd.Actor, entities.EventUploadCompleted, cmd.UploadID, upload.FieldPath, now); err != nil {
			return ConfirmUploadResult{}, nil, err
		}
		logger.Info("upload confirmed",
			"event", "confirm_upload_completed",
			"module", "intake-core", "layer", "application",
			"submission_id", submission.ID, "upload_id", cmd.UploadID,
		)
		return ConfirmUploadResult{Submission: submission, NewResumeToken: newToken, FieldPath: upload.FieldPath}, nil, nil

	case ports.VerificationPending:
		env := valueobjects.NewErrorEnvelope(valueobjects.ErrTypeUploadPending, "upload has not completed yet")
		env.SubmissionID = submission.ID
		env.State = string(submission.State)
		return ConfirmUploadResult{}, &env, nil

	default: // failed
		upload.Status = entities.UploadFailed
		submission.Uploads[cmd.UploadID] = upload
		submission.UpdatedAt = now
		// Token is deliberately NOT rotated on upload failure so the client
		// can retry the same handshake.
		if err := u.Submissions.SaveSubmission(ctx, submission); err != nil {
			return ConfirmUploadResult{}, nil, err
		}
		if err := u.appendUploadEvent(ctx, submission, cmd.Actor, entities.EventUploadFailed, cmd.UploadID, upload.FieldPath, now); err != nil {
			return ConfirmUploadResult{}, nil, err
		}
		message := "upload failed"
		if reason != "" {
			message = reason
		}
		env := valueobjects.NewErrorEnvelope(valueobjects.ErrTypeInvalid, message)
		env.SubmissionID = submission.ID
		env.State = string(submission.State)
		return ConfirmUploadResult{}, &env, nil
	}
}

func (u ConfirmUploadUseCase) appendUploadEvent(ctx context.Context, submission entities.Submission, actor entities.Actor, eventType entities.EventType, uploadID, fieldPath string, now time.Time) error {
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return err
	}
	return u.Events.AppendEvent(ctx, entities.Event{
		EventID: eventID, SubmissionID: submission.ID, Timestamp: now,
		Actor: actor, State: submission.State, Type: eventType,
		Payload: map[string]any{"upload_id": uploadID, "field_path": fieldPath},
	})
}

func (u ConfirmUploadUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
