package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	intakecore "formbridge/contexts/intake-core"
	"formbridge/contexts/intake-core/domain/entities"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	module := intakecore.NewInMemoryModule("https://forms.test", nil)
	if err := module.Registry.Register(context.Background(), entities.IntakeDefinition{
		ID: "contact_form", Version: 1, Name: "Contact form",
		Schema: entities.Schema{Fields: []entities.SchemaField{
			{Path: "name", Type: "string", Required: true},
			{Path: "email", Type: "email", Required: true},
			{Path: "message", Type: "string", Required: true},
		}},
		Destination: entities.Destination{Kind: entities.DestinationWebhook, URL: "https://example.test/hook"},
	}, false); err != nil {
		t.Fatalf("register intake: %v", err)
	}
	return New(module, nil, "")
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func TestCreateSubmissionThenGet(t *testing.T) {
	server := newTestServer(t)

	rr := doJSON(t, server, http.MethodPost, "/intake/contact_form/submissions", map[string]any{
		"actor":         map[string]string{"kind": "agent", "id": "agent-1"},
		"initialFields": map[string]any{"name": "John"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created struct {
		SubmissionID string `json:"submissionId"`
		State        string `json:"state"`
		ResumeToken  string `json:"resumeToken"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.State != "in_progress" {
		t.Fatalf("expected in_progress state after accepted initial fields, got %q", created.State)
	}

	getRR := doJSON(t, server, http.MethodGet, "/intake/contact_form/submissions/"+created.SubmissionID, nil)
	if getRR.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", getRR.Code, getRR.Body.String())
	}
}

func TestCreateSubmissionUnknownIntakeReturns404(t *testing.T) {
	server := newTestServer(t)

	rr := doJSON(t, server, http.MethodPost, "/intake/does-not-exist/submissions", map[string]any{
		"actor": map[string]string{"kind": "agent", "id": "agent-1"},
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHappyPathCreateSetFieldsSubmit(t *testing.T) {
	server := newTestServer(t)

	createRR := doJSON(t, server, http.MethodPost, "/intake/contact_form/submissions", map[string]any{
		"actor":         map[string]string{"kind": "agent", "id": "agent-1"},
		"initialFields": map[string]any{"name": "John"},
	})
	var created struct {
		SubmissionID string `json:"submissionId"`
		ResumeToken  string `json:"resumeToken"`
	}
	if err := json.Unmarshal(createRR.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	setRR := doJSON(t, server, http.MethodPatch, "/intake/contact_form/submissions/"+created.SubmissionID, map[string]any{
		"resumeToken": created.ResumeToken,
		"actor":       map[string]string{"kind": "human", "id": "human-1"},
		"fields":      map[string]any{"email": "john@a.co", "message": "hi"},
	})
	if setRR.Code != http.StatusOK {
		t.Fatalf("expected 200 from setFields, got %d body=%s", setRR.Code, setRR.Body.String())
	}
	var setResp struct {
		ResumeToken string `json:"resumeToken"`
	}
	if err := json.Unmarshal(setRR.Body.Bytes(), &setResp); err != nil {
		t.Fatalf("decode setFields response: %v", err)
	}

	submitRR := doJSON(t, server, http.MethodPost, "/intake/contact_form/submissions/"+created.SubmissionID+"/submit", map[string]any{
		"resumeToken":    setResp.ResumeToken,
		"actor":          map[string]string{"kind": "human", "id": "human-1"},
		"idempotencyKey": "k1",
	})
	if submitRR.Code != http.StatusOK && submitRR.Code != http.StatusAccepted {
		t.Fatalf("expected 200 or 202 from submit, got %d body=%s", submitRR.Code, submitRR.Body.String())
	}
	var submitResp struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(submitRR.Body.Bytes(), &submitResp); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if submitResp.State != "finalized" && submitResp.State != "submitted" {
		t.Fatalf("expected submitted or finalized state, got %q", submitResp.State)
	}
}

func TestResumeAndEventRoutesCoexist(t *testing.T) {
	server := newTestServer(t)

	createRR := doJSON(t, server, http.MethodPost, "/intake/contact_form/submissions", map[string]any{
		"actor": map[string]string{"kind": "agent", "id": "agent-1"},
	})
	var created struct {
		SubmissionID string `json:"submissionId"`
		ResumeToken  string `json:"resumeToken"`
	}
	if err := json.Unmarshal(createRR.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	resumeRR := doJSON(t, server, http.MethodGet, "/submissions/resume/"+created.ResumeToken, nil)
	if resumeRR.Code != http.StatusOK {
		t.Fatalf("expected 200 resolving by resume token, got %d body=%s", resumeRR.Code, resumeRR.Body.String())
	}

	eventsRR := doJSON(t, server, http.MethodGet, "/submissions/"+created.SubmissionID+"/events", nil)
	if eventsRR.Code != http.StatusOK {
		t.Fatalf("expected 200 listing events, got %d body=%s", eventsRR.Code, eventsRR.Body.String())
	}
	var events []map[string]any
	if err := json.Unmarshal(eventsRR.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events response: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected the submission.created event, got %d events", len(events))
	}

	exportRR := doJSON(t, server, http.MethodGet, "/submissions/"+created.SubmissionID+"/events/export?format=jsonl", nil)
	if exportRR.Code != http.StatusOK {
		t.Fatalf("expected 200 exporting events, got %d body=%s", exportRR.Code, exportRR.Body.String())
	}

	bogusRR := doJSON(t, server, http.MethodGet, "/submissions/"+created.SubmissionID+"/nonsense", nil)
	if bogusRR.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown submission resource, got %d", bogusRR.Code)
	}
}

func TestSetFieldsWithStaleResumeTokenIsForbidden(t *testing.T) {
	server := newTestServer(t)

	createRR := doJSON(t, server, http.MethodPost, "/intake/contact_form/submissions", map[string]any{
		"actor": map[string]string{"kind": "agent", "id": "agent-1"},
	})
	var created struct {
		SubmissionID string `json:"submissionId"`
		ResumeToken  string `json:"resumeToken"`
	}
	if err := json.Unmarshal(createRR.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	// first write rotates the token, so replaying the original token fails.
	doJSON(t, server, http.MethodPatch, "/intake/contact_form/submissions/"+created.SubmissionID, map[string]any{
		"resumeToken": created.ResumeToken,
		"actor":       map[string]string{"kind": "human", "id": "human-1"},
		"fields":      map[string]any{"name": "John"},
	})

	staleRR := doJSON(t, server, http.MethodPatch, "/intake/contact_form/submissions/"+created.SubmissionID, map[string]any{
		"resumeToken": created.ResumeToken,
		"actor":       map[string]string{"kind": "human", "id": "human-1"},
		"fields":      map[string]any{"email": "john@a.co"},
	})
	if staleRR.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stale resume token, got %d body=%s", staleRR.Code, staleRR.Body.String())
	}
}
