package commands_test

import (
	"context"
	"testing"

	"formbridge/contexts/intake-core/application/commands"
	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
	"formbridge/contexts/intake-core/ports"
)

func avatarIntake() entities.IntakeDefinition {
	def := contactFormIntake()
	def.ID = "avatar_form"
	def.Schema.Fields = append(def.Schema.Fields, entities.SchemaField{
		Path: "avatar", Type: "file", Accept: []string{"image/png"}, MaxBytes: 1 << 20,
	})
	return def
}

func TestRequestUploadSignsURLAndMovesToAwaitingUpload(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(avatarIntake())
	created, envelope, err := h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{
		IntakeID: "avatar_form", Actor: agentActor("agent-1"),
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected create failure: %+v %v", envelope, err)
	}

	result, envelope, err := h.RequestUpload.Execute(context.Background(), commands.RequestUploadCommand{
		SubmissionID: created.Submission.ID, ResumeToken: created.Submission.ResumeToken,
		Actor: humanActor("human-1"), FieldPath: "avatar", Filename: "me.png", MimeType: "image/png", SizeBytes: 1024,
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure: envelope=%+v err=%v", envelope, err)
	}
	if result.ExpiresInMs <= 0 {
		t.Fatalf("expected a positive expiry window on the signed URL")
	}
	if result.URL == "" || result.UploadID == "" {
		t.Fatalf("expected a signed URL and upload id, got %+v", result)
	}

	sub, err := h.store.GetSubmission(context.Background(), created.Submission.ID)
	if err != nil {
		t.Fatalf("unexpected lookup failure: %v", err)
	}
	if sub.State != entities.StateAwaitingUpload {
		t.Fatalf("expected awaiting_upload state, got %s", sub.State)
	}
}

func TestRequestUploadOnUndeclaredFieldIsValidationError(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(contactFormIntake())
	created := createDraft(t, h)

	_, envelope, err := h.RequestUpload.Execute(context.Background(), commands.RequestUploadCommand{
		SubmissionID: created.Submission.ID, ResumeToken: created.Submission.ResumeToken,
		Actor: humanActor("human-1"), FieldPath: "name",
	})
	if err != nil {
		t.Fatalf("unexpected thrown error: %v", err)
	}
	if envelope == nil {
		t.Fatalf("expected a validation_error envelope for a field that is not a file field")
	}
}

func TestRequestUploadEnforcesDeclaredConstraints(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(avatarIntake())
	created, _, err := h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{IntakeID: "avatar_form", Actor: agentActor("a1")})
	if err != nil {
		t.Fatalf("unexpected create failure: %v", err)
	}

	_, envelope, err := h.RequestUpload.Execute(context.Background(), commands.RequestUploadCommand{
		SubmissionID: created.Submission.ID, ResumeToken: created.Submission.ResumeToken,
		Actor: humanActor("h1"), FieldPath: "avatar", Filename: "huge.png", MimeType: "image/png", SizeBytes: 2 << 20,
	})
	if err != nil || envelope == nil || envelope.Error.Fields[0].Code != "file_too_large" {
		t.Fatalf("expected file_too_large for an oversized file, got envelope=%+v err=%v", envelope, err)
	}

	_, envelope, err = h.RequestUpload.Execute(context.Background(), commands.RequestUploadCommand{
		SubmissionID: created.Submission.ID, ResumeToken: created.Submission.ResumeToken,
		Actor: humanActor("h1"), FieldPath: "avatar", Filename: "doc.pdf", MimeType: "application/pdf", SizeBytes: 1024,
	})
	if err != nil || envelope == nil || envelope.Error.Fields[0].Code != "file_wrong_type" {
		t.Fatalf("expected file_wrong_type for an undeclared mime type, got envelope=%+v err=%v", envelope, err)
	}
}

func TestRequestUploadWithoutObjectStoreConfiguredIsMisconfigured(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(avatarIntake())
	created, _, err := h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{IntakeID: "avatar_form", Actor: agentActor("a1")})
	if err != nil {
		t.Fatalf("unexpected create failure: %v", err)
	}

	unconfigured := h.RequestUpload
	unconfigured.ObjectStore = nil
	_, _, err = unconfigured.Execute(context.Background(), commands.RequestUploadCommand{
		SubmissionID: created.Submission.ID, ResumeToken: created.Submission.ResumeToken,
		Actor: humanActor("h1"), FieldPath: "avatar", Filename: "me.png", MimeType: "image/png",
	})
	if err != domainerrors.ErrObjectStoreMissing {
		t.Fatalf("expected ErrObjectStoreMissing, got %v", err)
	}
}

func requestAvatarUpload(t *testing.T, h *harness) (commands.CreateSubmissionResult, commands.RequestUploadResult) {
	t.Helper()
	created, envelope, err := h.Create.Execute(context.Background(), commands.CreateSubmissionCommand{
		IntakeID: "avatar_form", Actor: agentActor("agent-1"),
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected create failure: %+v %v", envelope, err)
	}
	upload, envelope, err := h.RequestUpload.Execute(context.Background(), commands.RequestUploadCommand{
		SubmissionID: created.Submission.ID, ResumeToken: created.Submission.ResumeToken,
		Actor: humanActor("human-1"), FieldPath: "avatar", Filename: "me.png", MimeType: "image/png", SizeBytes: 1024,
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected request upload failure: envelope=%+v err=%v", envelope, err)
	}
	return created, upload
}

func TestConfirmUploadCompletedRotatesTokenAndResumesProgress(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(avatarIntake())
	created, upload := requestAvatarUpload(t, h)

	result, envelope, err := h.ConfirmUpload.Execute(context.Background(), commands.ConfirmUploadCommand{
		SubmissionID: created.Submission.ID, ResumeToken: upload.NewResumeToken,
		UploadID: upload.UploadID, Actor: humanActor("human-1"),
	})
	if err != nil || envelope != nil {
		t.Fatalf("unexpected failure: envelope=%+v err=%v", envelope, err)
	}
	if result.Submission.State != entities.StateInProgress {
		t.Fatalf("expected in_progress once the only pending upload completes, got %s", result.Submission.State)
	}
	if result.NewResumeToken == upload.NewResumeToken {
		t.Fatalf("expected the resume token to rotate on a successful upload confirmation")
	}
}

// TestConfirmUploadFailedDoesNotRotateToken exercises the exception case:
// a failed upload confirmation must not rotate the resume token so the caller
// can retry the handshake with the token they already hold.
func TestConfirmUploadFailedDoesNotRotateToken(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(avatarIntake())
	created, upload := requestAvatarUpload(t, h)

	sub, err := h.store.GetSubmission(context.Background(), created.Submission.ID)
	if err != nil {
		t.Fatalf("unexpected lookup failure: %v", err)
	}
	storageKey := sub.Uploads[upload.UploadID].StorageKey
	h.objectStore.stage(storageKey, ports.VerificationFailed)

	_, envelope, err := h.ConfirmUpload.Execute(context.Background(), commands.ConfirmUploadCommand{
		SubmissionID: created.Submission.ID, ResumeToken: upload.NewResumeToken,
		UploadID: upload.UploadID, Actor: humanActor("human-1"),
	})
	if err != nil {
		t.Fatalf("unexpected thrown error: %v", err)
	}
	if envelope == nil {
		t.Fatalf("expected an error envelope for a failed upload")
	}

	after, err := h.store.GetSubmission(context.Background(), created.Submission.ID)
	if err != nil {
		t.Fatalf("unexpected lookup failure: %v", err)
	}
	if after.ResumeToken != upload.NewResumeToken {
		t.Fatalf("expected the resume token to survive a failed confirmation unchanged")
	}
	if after.Uploads[upload.UploadID].Status != entities.UploadFailed {
		t.Fatalf("expected the upload record to be marked failed, got %s", after.Uploads[upload.UploadID].Status)
	}
}

func TestConfirmUploadPendingReturnsUploadPendingEnvelope(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(avatarIntake())
	created, upload := requestAvatarUpload(t, h)

	sub, err := h.store.GetSubmission(context.Background(), created.Submission.ID)
	if err != nil {
		t.Fatalf("unexpected lookup failure: %v", err)
	}
	storageKey := sub.Uploads[upload.UploadID].StorageKey
	h.objectStore.stage(storageKey, ports.VerificationPending)

	_, envelope, err := h.ConfirmUpload.Execute(context.Background(), commands.ConfirmUploadCommand{
		SubmissionID: created.Submission.ID, ResumeToken: upload.NewResumeToken,
		UploadID: upload.UploadID, Actor: humanActor("human-1"),
	})
	if err != nil {
		t.Fatalf("unexpected thrown error: %v", err)
	}
	if envelope == nil || envelope.Error.Type != "upload_pending" {
		t.Fatalf("expected upload_pending envelope, got %+v", envelope)
	}
}

func TestConfirmUploadUnknownUploadIDReturnsNotFound(t *testing.T) {
	h := newHarness(t)
	h.registerIntake(avatarIntake())
	created, upload := requestAvatarUpload(t, h)

	_, _, err := h.ConfirmUpload.Execute(context.Background(), commands.ConfirmUploadCommand{
		SubmissionID: created.Submission.ID, ResumeToken: upload.NewResumeToken, UploadID: "nope", Actor: humanActor("h1"),
	})
	if err != domainerrors.ErrUploadNotFound {
		t.Fatalf("expected ErrUploadNotFound, got %v", err)
	}
}
