package queries_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"formbridge/contexts/intake-core/adapters/memory"
	"formbridge/contexts/intake-core/application/queries"
	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/ports"
)

func seedEvents(t *testing.T, store *memory.Store, submissionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.AppendEvent(context.Background(), entities.Event{
			EventID: "evt-" + string(rune('a'+i)), SubmissionID: submissionID,
			Timestamp: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
			Actor:     entities.Actor{Kind: entities.ActorKindSystem, ID: "system"},
			State:     entities.StateDraft, Type: entities.EventSubmissionCreated,
		})
		if err != nil {
			t.Fatalf("seed event failed: %v", err)
		}
	}
}

func TestExportEventsJSONLOneObjectPerLine(t *testing.T) {
	store := memory.NewStore(nil)
	seedEvents(t, store, "sub-1", 3)

	query := queries.ExportEventsQuery{Events: store}
	body, contentType, err := query.Execute(context.Background(), "sub-1", ports.EventFilter{}, queries.ExportFormatJSONL)
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if contentType != "application/jsonl" {
		t.Fatalf("expected application/jsonl, got %s", contentType)
	}
	lines := bytes.Split(bytes.TrimRight(body, "\n"), []byte("\n"))
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	var decoded entities.Event
	if err := json.Unmarshal(lines[0], &decoded); err != nil {
		t.Fatalf("expected each line to be a standalone JSON object: %v", err)
	}
}

func TestExportEventsJSONIsOneArray(t *testing.T) {
	store := memory.NewStore(nil)
	seedEvents(t, store, "sub-1", 2)

	query := queries.ExportEventsQuery{Events: store}
	body, contentType, err := query.Execute(context.Background(), "sub-1", ports.EventFilter{}, queries.ExportFormatJSON)
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if contentType != "application/json" {
		t.Fatalf("expected application/json, got %s", contentType)
	}
	var decoded []entities.Event
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("expected a single JSON array: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 events, got %d", len(decoded))
	}
}

func TestExportEventsUnsupportedFormatFails(t *testing.T) {
	store := memory.NewStore(nil)
	query := queries.ExportEventsQuery{Events: store}
	_, _, err := query.Execute(context.Background(), "sub-1", ports.EventFilter{}, queries.ExportFormat("xml"))
	if err == nil {
		t.Fatalf("expected an error for an unsupported export format")
	}
}

func TestListEventsReturnsSeededEventsInOrder(t *testing.T) {
	store := memory.NewStore(nil)
	seedEvents(t, store, "sub-1", 3)

	query := queries.ListEventsQuery{Events: store}
	events, err := query.Execute(context.Background(), "sub-1", ports.EventFilter{})
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("expected events in chronological order")
		}
	}
}
