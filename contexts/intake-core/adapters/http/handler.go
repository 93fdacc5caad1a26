// Package httpadapter exposes the intake-core use cases as typed handler
// methods: context + plain args in, a typed response (or a
// caller-correctable ErrorEnvelope, or a thrown error) out.
// internal/platform/httpserver does the raw net/http <-> JSON translation
// and status-code mapping.
package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "formbridge/contexts/intake-core/application"
	"formbridge/contexts/intake-core/application/commands"
	"formbridge/contexts/intake-core/application/queries"
	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/domain/valueobjects"
	"formbridge/contexts/intake-core/ports"
	httptransport "formbridge/contexts/intake-core/transport/http"
)

type Handler struct {
	CreateSubmission    commands.CreateSubmissionUseCase
	SetFields           commands.SetFieldsUseCase
	RequestUpload       commands.RequestUploadUseCase
	ConfirmUpload       commands.ConfirmUploadUseCase
	Submit              commands.SubmitUseCase
	Cancel              commands.CancelUseCase
	GenerateHandoff     commands.GenerateHandoffUseCase
	EmitHandoffResumed  commands.EmitHandoffResumedUseCase
	Approve             commands.ApproveUseCase
	Reject              commands.RejectUseCase
	RequestChanges      commands.RequestChangesUseCase
	GetSubmission       queries.GetSubmissionQuery
	GetByResumeToken    queries.GetByResumeTokenQuery
	ListEvents          queries.ListEventsQuery
	ExportEvents        queries.ExportEventsQuery
	Logger              *slog.Logger
}

func actorFromDTO(dto httptransport.ActorDTO) entities.Actor {
	return entities.Actor{Kind: entities.ActorKind(dto.Kind), ID: dto.ID, Name: dto.Name, Metadata: dto.Metadata}
}

// CreateSubmissionHandler godoc
// @Summary Create submission
// @Description Creates a new intake submission, optionally seeded with initial fields.
// @Tags intake-core
// @Accept json
// @Produce json
// @Param intake_id path string true "Intake id"
// @Param request body httptransport.CreateSubmissionRequest true "Create payload"
// @Success 201 {object} httptransport.CreateSubmissionResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /intake/{intake_id}/submissions [post]
func (h Handler) CreateSubmissionHandler(ctx context.Context, intakeID string, req httptransport.CreateSubmissionRequest) (httptransport.CreateSubmissionResponse, *valueobjects.ErrorEnvelope, error) {
	logger := application.ResolveLogger(h.Logger)
	result, envelope, err := h.CreateSubmission.Execute(ctx, commands.CreateSubmissionCommand{
		IntakeID: intakeID, Actor: actorFromDTO(req.Actor), IdempotencyKey: req.IdempotencyKey,
		InitialFields: req.InitialFields, TTL: time.Duration(req.TTLMs) * time.Millisecond,
	})
	if err != nil || envelope != nil {
		logger.Warn("create submission request did not succeed",
			"event", "intake_core_http_create_submission_failed",
			"module", "intake-core", "layer", "adapter", "intake_id", intakeID,
		)
		return httptransport.CreateSubmissionResponse{}, envelope, err
	}
	return httptransport.CreateSubmissionResponse{
		Ok: true, SubmissionID: result.Submission.ID, State: string(result.Submission.State),
		ResumeToken: result.Submission.ResumeToken,
		Schema:      mapSchema(result.Intake.Schema), MissingFields: result.MissingFields,
		Fields: result.Submission.Fields,
	}, nil, nil
}

func mapSchema(schema entities.Schema) []httptransport.SchemaFieldDTO {
	out := make([]httptransport.SchemaFieldDTO, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		out = append(out, httptransport.SchemaFieldDTO{
			Path: f.Path, Type: f.Type, Required: f.Required,
			MinLen: f.MinLen, MaxLen: f.MaxLen, Accept: f.Accept, MaxBytes: f.MaxBytes,
		})
	}
	return out
}

// GetSubmissionHandler godoc
// @Summary Get submission
// @Tags intake-core
// @Produce json
// @Param submission_id path string true "Submission id"
// @Success 200 {object} httptransport.SubmissionDTO
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /intake/{intake_id}/submissions/{submission_id} [get]
func (h Handler) GetSubmissionHandler(ctx context.Context, submissionID string) (httptransport.SubmissionDTO, error) {
	submission, err := h.GetSubmission.Execute(ctx, submissionID)
	if err != nil {
		return httptransport.SubmissionDTO{}, err
	}
	return mapSubmission(submission), nil
}

// SetFieldsHandler godoc
// @Summary Set fields
// @Tags intake-core
// @Accept json
// @Produce json
// @Param submission_id path string true "Submission id"
// @Param request body httptransport.SetFieldsRequest true "Field write payload"
// @Success 200 {object} httptransport.SetFieldsResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /intake/{intake_id}/submissions/{submission_id} [patch]
func (h Handler) SetFieldsHandler(ctx context.Context, submissionID string, req httptransport.SetFieldsRequest) (httptransport.SetFieldsResponse, *valueobjects.ErrorEnvelope, error) {
	result, envelope, err := h.SetFields.Execute(ctx, commands.SetFieldsCommand{
		SubmissionID: submissionID, ResumeToken: req.ResumeToken, Actor: actorFromDTO(req.Actor), Fields: req.Fields,
	})
	if err != nil || envelope != nil {
		return httptransport.SetFieldsResponse{}, envelope, err
	}
	return httptransport.SetFieldsResponse{
		Ok: true, State: string(result.Submission.State), ResumeToken: result.NewResumeToken, Fields: result.Submission.Fields,
	}, nil, nil
}

// SubmitHandler godoc
// @Summary Submit submission
// @Tags intake-core
// @Accept json
// @Produce json
// @Param submission_id path string true "Submission id"
// @Param request body httptransport.SubmitRequest true "Submit payload"
// @Success 200 {object} httptransport.SubmitResponse
// @Success 202 {object} httptransport.SubmitResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /intake/{intake_id}/submissions/{submission_id}/submit [post]
func (h Handler) SubmitHandler(ctx context.Context, submissionID string, req httptransport.SubmitRequest) (httptransport.SubmitResponse, *valueobjects.ErrorEnvelope, error) {
	result, envelope, err := h.Submit.Execute(ctx, commands.SubmitCommand{
		SubmissionID: submissionID, ResumeToken: req.ResumeToken, IdempotencyKey: req.IdempotencyKey, Actor: actorFromDTO(req.Actor),
	})
	if err != nil || envelope != nil {
		return httptransport.SubmitResponse{}, envelope, err
	}
	return httptransport.SubmitResponse{
		Ok: true, SubmissionID: result.Submission.ID, State: string(result.Submission.State), ResumeToken: result.NewResumeToken,
	}, nil, nil
}

// RequestUploadHandler godoc
// @Summary Negotiate a file upload
// @Tags intake-core
// @Accept json
// @Produce json
// @Param submission_id path string true "Submission id"
// @Param request body httptransport.RequestUploadRequest true "Upload negotiation payload"
// @Success 200 {object} httptransport.RequestUploadResponse
// @Router /intake/{intake_id}/submissions/{submission_id}/uploads [post]
func (h Handler) RequestUploadHandler(ctx context.Context, submissionID string, req httptransport.RequestUploadRequest) (httptransport.RequestUploadResponse, *valueobjects.ErrorEnvelope, error) {
	result, envelope, err := h.RequestUpload.Execute(ctx, commands.RequestUploadCommand{
		SubmissionID: submissionID, ResumeToken: req.ResumeToken, Actor: actorFromDTO(req.Actor),
		FieldPath: req.FieldPath, Filename: req.Filename, MimeType: req.MimeType, SizeBytes: req.SizeBytes,
	})
	if err != nil || envelope != nil {
		return httptransport.RequestUploadResponse{}, envelope, err
	}
	return httptransport.RequestUploadResponse{
		Ok: true, UploadID: result.UploadID, Method: result.Method, URL: result.URL, Headers: result.Headers,
		ExpiresInMs: result.ExpiresInMs, ResumeToken: result.NewResumeToken,
		Constraints: httptransport.UploadConstraints{Accept: result.Accept, MaxBytes: result.MaxBytes},
	}, nil, nil
}

// ConfirmUploadHandler godoc
// @Summary Confirm a file upload
// @Tags intake-core
// @Accept json
// @Produce json
// @Param submission_id path string true "Submission id"
// @Param upload_id path string true "Upload id"
// @Param request body httptransport.ConfirmUploadRequest true "Confirm payload"
// @Success 200 {object} httptransport.ConfirmUploadResponse
// @Router /intake/{intake_id}/submissions/{submission_id}/uploads/{upload_id}/confirm [post]
func (h Handler) ConfirmUploadHandler(ctx context.Context, submissionID, uploadID string, req httptransport.ConfirmUploadRequest) (httptransport.ConfirmUploadResponse, *valueobjects.ErrorEnvelope, error) {
	result, envelope, err := h.ConfirmUpload.Execute(ctx, commands.ConfirmUploadCommand{
		SubmissionID: submissionID, ResumeToken: req.ResumeToken, UploadID: uploadID, Actor: actorFromDTO(req.Actor),
	})
	if err != nil || envelope != nil {
		return httptransport.ConfirmUploadResponse{}, envelope, err
	}
	return httptransport.ConfirmUploadResponse{
		Ok: true, SubmissionID: result.Submission.ID, State: string(result.Submission.State),
		ResumeToken: result.NewResumeToken, FieldPath: result.FieldPath,
	}, nil, nil
}

// ApproveHandler godoc
// @Summary Approve a submission under review
// @Tags intake-core
// @Accept json
// @Produce json
// @Param submission_id path string true "Submission id"
// @Param request body httptransport.ApproveRequest true "Approve payload"
// @Success 200 {object} httptransport.ReviewResponse
// @Router /submissions/{submission_id}/approve [post]
func (h Handler) ApproveHandler(ctx context.Context, submissionID string, req httptransport.ApproveRequest) (httptransport.ReviewResponse, error) {
	result, err := h.Approve.Execute(ctx, commands.ApproveCommand{
		SubmissionID: submissionID, ResumeToken: req.ResumeToken, Actor: actorFromDTO(req.Actor), Comment: req.Comment,
	})
	if err != nil {
		return httptransport.ReviewResponse{}, err
	}
	return httptransport.ReviewResponse{Ok: true, SubmissionID: result.Submission.ID, State: string(result.Submission.State), ResumeToken: result.NewResumeToken}, nil
}

// RejectHandler godoc
// @Summary Reject a submission under review
// @Tags intake-core
// @Accept json
// @Produce json
// @Param submission_id path string true "Submission id"
// @Param request body httptransport.RejectRequest true "Reject payload"
// @Success 200 {object} httptransport.ReviewResponse
// @Router /submissions/{submission_id}/reject [post]
func (h Handler) RejectHandler(ctx context.Context, submissionID string, req httptransport.RejectRequest) (httptransport.ReviewResponse, error) {
	result, err := h.Reject.Execute(ctx, commands.RejectCommand{
		SubmissionID: submissionID, ResumeToken: req.ResumeToken, Actor: actorFromDTO(req.Actor), Reason: req.Reason, Comment: req.Comment,
	})
	if err != nil {
		return httptransport.ReviewResponse{}, err
	}
	return httptransport.ReviewResponse{Ok: true, SubmissionID: result.Submission.ID, State: string(result.Submission.State), ResumeToken: result.NewResumeToken}, nil
}

// RequestChangesHandler godoc
// @Summary Send a submission back to draft with field comments
// @Tags intake-core
// @Accept json
// @Produce json
// @Param submission_id path string true "Submission id"
// @Param request body httptransport.RequestChangesRequest true "Request-changes payload"
// @Success 200 {object} httptransport.ReviewResponse
// @Router /submissions/{submission_id}/request-changes [post]
func (h Handler) RequestChangesHandler(ctx context.Context, submissionID string, req httptransport.RequestChangesRequest) (httptransport.ReviewResponse, error) {
	comments := make([]entities.FieldComment, 0, len(req.FieldComments))
	for _, c := range req.FieldComments {
		comments = append(comments, entities.FieldComment{FieldPath: c.FieldPath, Comment: c.Comment})
	}
	result, err := h.RequestChanges.Execute(ctx, commands.RequestChangesCommand{
		SubmissionID: submissionID, ResumeToken: req.ResumeToken, Actor: actorFromDTO(req.Actor),
		FieldComments: comments, Comment: req.Comment,
	})
	if err != nil {
		return httptransport.ReviewResponse{}, err
	}
	return httptransport.ReviewResponse{Ok: true, SubmissionID: result.Submission.ID, State: string(result.Submission.State), ResumeToken: result.NewResumeToken}, nil
}

// CancelHandler godoc
// @Summary Cancel a submission
// @Tags intake-core
// @Accept json
// @Produce json
// @Param submission_id path string true "Submission id"
// @Param request body httptransport.CancelRequest true "Cancel payload"
// @Success 200 {object} httptransport.ReviewResponse
// @Router /submissions/{submission_id}/cancel [post]
func (h Handler) CancelHandler(ctx context.Context, submissionID string, req httptransport.CancelRequest) (httptransport.ReviewResponse, *valueobjects.ErrorEnvelope, error) {
	result, envelope, err := h.Cancel.Execute(ctx, commands.CancelCommand{SubmissionID: submissionID, Actor: actorFromDTO(req.Actor), Reason: req.Reason})
	if err != nil || envelope != nil {
		return httptransport.ReviewResponse{}, envelope, err
	}
	return httptransport.ReviewResponse{Ok: true, SubmissionID: result.Submission.ID, State: string(result.Submission.State), ResumeToken: result.NewResumeToken}, nil, nil
}

// HandoffHandler godoc
// @Summary Issue a resume handoff URL
// @Tags intake-core
// @Accept json
// @Produce json
// @Param submission_id path string true "Submission id"
// @Param request body httptransport.HandoffRequest true "Handoff payload"
// @Success 200 {object} httptransport.HandoffResponse
// @Router /submissions/{submission_id}/handoff [post]
func (h Handler) HandoffHandler(ctx context.Context, submissionID string, req httptransport.HandoffRequest) (httptransport.HandoffResponse, error) {
	result, err := h.GenerateHandoff.Execute(ctx, commands.GenerateHandoffURLCommand{SubmissionID: submissionID, Actor: actorFromDTO(req.Actor)})
	if err != nil {
		return httptransport.HandoffResponse{}, err
	}
	return httptransport.HandoffResponse{Ok: true, URL: result.URL}, nil
}

// ResumeByTokenHandler godoc
// @Summary Resolve a submission by its resume token
// @Tags intake-core
// @Produce json
// @Param resume_token path string true "Resume token"
// @Success 200 {object} httptransport.SubmissionDTO
// @Router /submissions/resume/{resume_token} [get]
func (h Handler) ResumeByTokenHandler(ctx context.Context, resumeToken string) (httptransport.SubmissionDTO, error) {
	submission, err := h.GetByResumeToken.Execute(ctx, resumeToken)
	if err != nil {
		return httptransport.SubmissionDTO{}, err
	}
	return mapSubmission(submission), nil
}

// ResumedHandler godoc
// @Summary Emit handoff.resumed for the actor that just opened the resume URL
// @Tags intake-core
// @Accept json
// @Param resume_token path string true "Resume token"
// @Param request body httptransport.ResumedRequest true "Resumed-by payload"
// @Success 204
// @Router /submissions/resume/{resume_token}/resumed [post]
func (h Handler) ResumedHandler(ctx context.Context, resumeToken string, req httptransport.ResumedRequest) error {
	_, err := h.EmitHandoffResumed.Execute(ctx, commands.EmitHandoffResumedCommand{ResumeToken: resumeToken, Actor: actorFromDTO(req.Actor)})
	return err
}

// ListEventsHandler godoc
// @Summary List a submission's event stream
// @Tags intake-core
// @Produce json
// @Param submission_id path string true "Submission id"
// @Success 200 {array} entities.Event
// @Router /submissions/{submission_id}/events [get]
func (h Handler) ListEventsHandler(ctx context.Context, submissionID string, filter ports.EventFilter) ([]entities.Event, error) {
	return h.ListEvents.Execute(ctx, submissionID, filter)
}

// ExportEventsHandler godoc
// @Summary Export a submission's event stream
// @Tags intake-core
// @Produce json
// @Param submission_id path string true "Submission id"
// @Param format query string false "json or jsonl"
// @Success 200 {string} string "event stream"
// @Router /submissions/{submission_id}/events/export [get]
func (h Handler) ExportEventsHandler(ctx context.Context, submissionID string, filter ports.EventFilter, format string) ([]byte, string, error) {
	return h.ExportEvents.Execute(ctx, submissionID, filter, queries.ExportFormat(format))
}

func mapSubmission(s entities.Submission) httptransport.SubmissionDTO {
	attribution := make(map[string]httptransport.ActorDTO, len(s.FieldAttribution))
	for path, actor := range s.FieldAttribution {
		attribution[path] = httptransport.ActorDTO{Kind: string(actor.Kind), ID: actor.ID, Name: actor.Name}
	}
	uploads := make(map[string]httptransport.UploadEntryDTO, len(s.Uploads))
	for id, u := range s.Uploads {
		entry := httptransport.UploadEntryDTO{
			UploadID: u.UploadID, FieldPath: u.FieldPath, Filename: u.Filename, MimeType: u.MimeType,
			SizeBytes: u.SizeBytes, Status: string(u.Status), ExpiresAt: u.ExpiresAt.Format(time.RFC3339),
		}
		if u.UploadedAt != nil {
			entry.UploadedAt = u.UploadedAt.Format(time.RFC3339)
		}
		uploads[id] = entry
	}
	dto := httptransport.SubmissionDTO{
		ID: s.ID, IntakeID: s.IntakeID, State: string(s.State),
		CreatedAt: s.CreatedAt.Format(time.RFC3339), UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
		Fields: s.Fields, FieldAttribution: attribution, Uploads: uploads, DeliveryFailed: s.DeliveryFailed,
	}
	if s.ExpiresAt != nil {
		dto.ExpiresAt = s.ExpiresAt.Format(time.RFC3339)
	}
	return dto
}
