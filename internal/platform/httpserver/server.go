// Package httpserver exposes the intake core over HTTP: a *http.ServeMux,
// one registerRoutes pass, and a writeDomainError switch translating
// sentinel errors to the status table statusForErrorType documents.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	intakecore "formbridge/contexts/intake-core"
	httpadapter "formbridge/contexts/intake-core/adapters/http"
	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
	"formbridge/contexts/intake-core/domain/valueobjects"
	"formbridge/contexts/intake-core/ports"
	httptransport "formbridge/contexts/intake-core/transport/http"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	httpServer *http.Server
	handler    httpadapter.Handler
}

// New builds the server around an already-wired intake core module; the
// transport adapter is a thin translation layer, not a use case owner.
func New(module intakecore.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}
	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		handler: module.Handler,
	}
	s.registerRoutes()
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.mux}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if s.httpServer == nil {
		s.httpServer = &http.Server{Addr: s.addr, Handler: s.mux}
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	s.mux.HandleFunc("POST /intake/{intakeId}/submissions", s.handleCreateSubmission)
	s.mux.HandleFunc("GET /intake/{intakeId}/submissions/{id}", s.handleGetSubmission)
	s.mux.HandleFunc("PATCH /intake/{intakeId}/submissions/{id}", s.handleSetFields)
	s.mux.HandleFunc("POST /intake/{intakeId}/submissions/{id}/submit", s.handleSubmit)
	s.mux.HandleFunc("POST /intake/{intakeId}/submissions/{id}/uploads", s.handleRequestUpload)
	s.mux.HandleFunc("POST /intake/{intakeId}/submissions/{id}/uploads/{uploadId}/confirm", s.handleConfirmUpload)

	s.mux.HandleFunc("POST /submissions/{id}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /submissions/{id}/reject", s.handleReject)
	s.mux.HandleFunc("POST /submissions/{id}/request-changes", s.handleRequestChanges)
	s.mux.HandleFunc("POST /submissions/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("POST /submissions/{id}/handoff", s.handleHandoff)
	s.mux.HandleFunc("GET /submissions/resume/{resumeToken}", s.handleResumeByToken)
	s.mux.HandleFunc("POST /submissions/resume/{resumeToken}/resumed", s.handleResumed)
	// The events reads share one tail-wildcard pattern: a literal
	// "GET /submissions/{id}/events" would conflict with the resume route
	// above (ServeMux rejects the overlap on /submissions/resume/events),
	// whereas the resume route is strictly more specific than this one.
	s.mux.HandleFunc("GET /submissions/{id}/{tail...}", s.handleSubmissionEvents)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, valueobjects.ErrTypeInvalidRequest, "request body must be valid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, errType valueobjects.ErrorType, message string) {
	env := valueobjects.NewErrorEnvelope(errType, message)
	writeJSON(w, status, env)
}

func writeEnvelope(w http.ResponseWriter, env *valueobjects.ErrorEnvelope) {
	writeJSON(w, statusForErrorType(env.Error.Type), env)
}

// statusForErrorType implements the status table for envelope
// errors that already carry a closed-taxonomy type.
func statusForErrorType(t valueobjects.ErrorType) int {
	switch t {
	case valueobjects.ErrTypeMissing, valueobjects.ErrTypeInvalid, valueobjects.ErrTypeInvalidRequest, valueobjects.ErrTypeValidationError:
		return http.StatusBadRequest
	case valueobjects.ErrTypeInvalidResumeToken, valueobjects.ErrTypeExpired:
		return http.StatusForbidden
	case valueobjects.ErrTypeNotFound:
		return http.StatusNotFound
	case valueobjects.ErrTypeConflict, valueobjects.ErrTypeNeedsApproval, valueobjects.ErrTypeCancelled, valueobjects.ErrTypeUploadPending, valueobjects.ErrTypeDeliveryFailed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps thrown domain/errors sentinels to the same status
// table for call paths that never produced their own ErrorEnvelope:
// reads, reviews, handoff.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrSubmissionNotFound),
		errors.Is(err, domainerrors.ErrIntakeNotFound),
		errors.Is(err, domainerrors.ErrUploadNotFound):
		writeError(w, http.StatusNotFound, valueobjects.ErrTypeNotFound, err.Error())
	case errors.Is(err, domainerrors.ErrInvalidResumeToken):
		writeError(w, http.StatusForbidden, valueobjects.ErrTypeInvalidResumeToken, err.Error())
	case errors.Is(err, domainerrors.ErrExpired):
		writeError(w, http.StatusForbidden, valueobjects.ErrTypeExpired, err.Error())
	case errors.Is(err, domainerrors.ErrConflict),
		errors.Is(err, domainerrors.ErrIllegalTransition),
		errors.Is(err, domainerrors.ErrInvalidReviewDecision),
		errors.Is(err, domainerrors.ErrIdempotencyKeyReuse),
		errors.Is(err, domainerrors.ErrDuplicateEvent):
		writeError(w, http.StatusConflict, valueobjects.ErrTypeConflict, err.Error())
	case errors.Is(err, domainerrors.ErrNeedsApproval):
		writeError(w, http.StatusConflict, valueobjects.ErrTypeNeedsApproval, err.Error())
	case errors.Is(err, domainerrors.ErrValidation),
		errors.Is(err, domainerrors.ErrReservedFieldPath),
		errors.Is(err, domainerrors.ErrFieldNotFileTyped),
		errors.Is(err, domainerrors.ErrInvalidActor),
		errors.Is(err, domainerrors.ErrInvalidIntakeDef):
		writeError(w, http.StatusBadRequest, valueobjects.ErrTypeInvalid, err.Error())
	case errors.Is(err, domainerrors.ErrUploadFailed),
		errors.Is(err, domainerrors.ErrObjectStoreMissing):
		writeError(w, http.StatusInternalServerError, valueobjects.ErrTypeInternal, "upload backend unavailable")
	default:
		writeError(w, http.StatusInternalServerError, valueobjects.ErrTypeInternal, "internal server error")
	}
}

func getIntakeID(r *http.Request) string { return r.PathValue("intakeId") }

func parseEventFilter(r *http.Request) ports.EventFilter {
	q := r.URL.Query()
	var filter ports.EventFilter
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			filter.Types = append(filter.Types, entities.EventType(t))
		}
	}
	filter.ActorKind = entities.ActorKind(q.Get("actorKind"))
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = &ts
		}
	}
	if raw := strings.TrimSpace(q.Get("until")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Until = &ts
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Offset = n
		}
	}
	return filter
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req httptransport.CreateSubmissionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, envelope, err := s.handler.CreateSubmissionHandler(r.Context(), getIntakeID(r), req)
	if envelope != nil {
		writeEnvelope(w, envelope)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	resp, err := s.handler.GetSubmissionHandler(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetFields(w http.ResponseWriter, r *http.Request) {
	var req httptransport.SetFieldsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, envelope, err := s.handler.SetFieldsHandler(r.Context(), r.PathValue("id"), req)
	if envelope != nil {
		writeEnvelope(w, envelope)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req httptransport.SubmitRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, envelope, err := s.handler.SubmitHandler(r.Context(), r.PathValue("id"), req)
	if envelope != nil {
		writeEnvelope(w, envelope)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Delivery runs asynchronously, so a submission accepted into the
	// submitted state answers 202 rather than 200.
	status := http.StatusOK
	if resp.State == string(entities.StateSubmitted) {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleRequestUpload(w http.ResponseWriter, r *http.Request) {
	var req httptransport.RequestUploadRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, envelope, err := s.handler.RequestUploadHandler(r.Context(), r.PathValue("id"), req)
	if envelope != nil {
		writeEnvelope(w, envelope)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	var req httptransport.ConfirmUploadRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, envelope, err := s.handler.ConfirmUploadHandler(r.Context(), r.PathValue("id"), r.PathValue("uploadId"), req)
	if envelope != nil {
		writeEnvelope(w, envelope)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req httptransport.ApproveRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.handler.ApproveHandler(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req httptransport.RejectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.handler.RejectHandler(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRequestChanges(w http.ResponseWriter, r *http.Request) {
	var req httptransport.RequestChangesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.handler.RequestChangesHandler(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req httptransport.CancelRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, envelope, err := s.handler.CancelHandler(r.Context(), r.PathValue("id"), req)
	if envelope != nil {
		writeEnvelope(w, envelope)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHandoff(w http.ResponseWriter, r *http.Request) {
	var req httptransport.HandoffRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.handler.HandoffHandler(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResumeByToken(w http.ResponseWriter, r *http.Request) {
	resp, err := s.handler.ResumeByTokenHandler(r.Context(), r.PathValue("resumeToken"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResumed(w http.ResponseWriter, r *http.Request) {
	var req httptransport.ResumedRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.handler.ResumedHandler(r.Context(), r.PathValue("resumeToken"), req); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmissionEvents(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("tail") {
	case "events":
		s.handleListEvents(w, r)
	case "events/export":
		s.handleExportEvents(w, r)
	default:
		writeError(w, http.StatusNotFound, valueobjects.ErrTypeNotFound, "unknown submission resource")
	}
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.handler.ListEventsHandler(r.Context(), r.PathValue("id"), parseEventFilter(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "jsonl"
	}
	body, contentType, err := s.handler.ExportEventsHandler(r.Context(), r.PathValue("id"), parseEventFilter(r), format)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
