package commands_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"formbridge/contexts/intake-core/adapters/memory"
	"formbridge/contexts/intake-core/application/commands"
	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/ports"
)

// fakeClock gives tests deterministic control over now() without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// sequentialIDs hands out predictable, collision-free ids so assertions can
// read cleanly instead of matching against opaque UUIDs.
type sequentialIDs struct {
	prefix  string
	counter atomic.Int64
}

func (g *sequentialIDs) NewID(_ context.Context) (string, error) {
	n := g.counter.Add(1)
	return fmt.Sprintf("%s-%d", g.prefix, n), nil
}

type harness struct {
	t           *testing.T
	store       *memory.Store
	reg         *memory.RegistryStore
	clock       *fakeClock
	ids         *sequentialIDs
	objectStore *fakeObjectStore

	Create         commands.CreateSubmissionUseCase
	SetFields      commands.SetFieldsUseCase
	RequestUpload  commands.RequestUploadUseCase
	ConfirmUpload  commands.ConfirmUploadUseCase
	Submit         commands.SubmitUseCase
	Cancel         commands.CancelUseCase
	Expire         commands.ExpireUseCase
	GenerateHandoff commands.GenerateHandoffUseCase
	EmitResumed    commands.EmitHandoffResumedUseCase
	Approve        commands.ApproveUseCase
	Reject         commands.RejectUseCase
	RequestChanges commands.RequestChangesUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore(nil)
	reg := memory.NewRegistryStore()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ids := &sequentialIDs{prefix: "id"}

	objectStore := newFakeObjectStore()

	h := &harness{t: t, store: store, reg: reg, clock: clock, ids: ids, objectStore: objectStore}
	h.Create = commands.CreateSubmissionUseCase{Submissions: store, Events: store, Registry: reg, Idempotency: store, Clock: clock, IDGenerator: ids}
	h.SetFields = commands.SetFieldsUseCase{Submissions: store, Events: store, Registry: reg, Clock: clock, IDGenerator: ids}
	h.RequestUpload = commands.RequestUploadUseCase{Submissions: store, Events: store, Registry: reg, ObjectStore: objectStore, Clock: clock, IDGenerator: ids}
	h.ConfirmUpload = commands.ConfirmUploadUseCase{Submissions: store, Events: store, ObjectStore: objectStore, Clock: clock, IDGenerator: ids}
	h.Submit = commands.SubmitUseCase{Submissions: store, Events: store, Registry: reg, Outbox: store, Clock: clock, IDGenerator: ids}
	h.Cancel = commands.CancelUseCase{Submissions: store, Events: store, Clock: clock, IDGenerator: ids}
	h.Expire = commands.ExpireUseCase{Submissions: store, Events: store, Clock: clock, IDGenerator: ids}
	h.GenerateHandoff = commands.GenerateHandoffUseCase{Submissions: store, Events: store, Clock: clock, IDGenerator: ids, BaseURL: "https://forms.test"}
	h.EmitResumed = commands.EmitHandoffResumedUseCase{Submissions: store, Events: store, Clock: clock, IDGenerator: ids}
	h.Approve = commands.ApproveUseCase{Submissions: store, Events: store, Outbox: store, Clock: clock, IDGenerator: ids}
	h.Reject = commands.RejectUseCase{Submissions: store, Events: store, Clock: clock, IDGenerator: ids}
	h.RequestChanges = commands.RequestChangesUseCase{Submissions: store, Events: store, Clock: clock, IDGenerator: ids}
	return h
}

func (h *harness) registerIntake(def entities.IntakeDefinition) {
	h.t.Helper()
	if err := h.reg.Register(context.Background(), def, false); err != nil {
		h.t.Fatalf("register intake %q: %v", def.ID, err)
	}
}

func contactFormIntake() entities.IntakeDefinition {
	return entities.IntakeDefinition{
		ID: "contact_form", Version: 1, Name: "Contact form",
		Schema: entities.Schema{Fields: []entities.SchemaField{
			{Path: "name", Type: "string", Required: true},
			{Path: "email", Type: "email", Required: true},
			{Path: "message", Type: "string", Required: true},
		}},
		Destination: entities.Destination{Kind: entities.DestinationWebhook, URL: "https://example.test/hook"},
	}
}

func agentActor(id string) entities.Actor  { return entities.Actor{Kind: entities.ActorKindAgent, ID: id} }
func humanActor(id string) entities.Actor  { return entities.Actor{Kind: entities.ActorKindHuman, ID: id} }
func systemActor(id string) entities.Actor { return entities.Actor{Kind: entities.ActorKindSystem, ID: id} }

// fakeObjectStore is a minimal in-memory ObjectStore double: it always signs
// successfully and reports whatever status was staged for a given storage key,
// defaulting to "completed" so happy-path upload flows need no extra setup.
type fakeObjectStore struct {
	mu       sync.Mutex
	statuses map[string]ports.UploadVerificationStatus
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{statuses: make(map[string]ports.UploadVerificationStatus)}
}

func (s *fakeObjectStore) stage(storageKey string, status ports.UploadVerificationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[storageKey] = status
}

func (s *fakeObjectStore) IssueUploadURL(_ context.Context, req ports.UploadURLRequest) (ports.UploadURLResult, error) {
	storageKey := req.SubmissionID + "/" + req.FieldPath + "/" + req.UploadID
	return ports.UploadURLResult{
		Method: "PUT", URL: "https://objects.test/" + storageKey, StorageKey: storageKey, ExpiresInMs: 900000,
	}, nil
}

func (s *fakeObjectStore) VerifyUpload(_ context.Context, storageKey string) (ports.UploadVerificationStatus, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[storageKey]
	if !ok {
		return ports.VerificationCompleted, "", nil
	}
	reason := ""
	if status == ports.VerificationFailed {
		reason = "checksum mismatch"
	}
	return status, reason, nil
}
