package queries

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/ports"
)

// ListEventsQuery backs `GET /submissions/{id}/events`, the filterable
// audit-trail read.
type ListEventsQuery struct {
	Events ports.EventRepository
}

func (q ListEventsQuery) Execute(ctx context.Context, submissionID string, filter ports.EventFilter) ([]entities.Event, error) {
	return q.Events.ListEvents(ctx, submissionID, filter)
}

// ExportFormat enumerates the two serializations `GET .../events/export`
// supports: one JSON array, or one event object per line.
type ExportFormat string

const (
	ExportFormatJSON  ExportFormat = "json"
	ExportFormatJSONL ExportFormat = "jsonl"
)

// ExportEventsQuery renders a submission's event log to a portable byte
// stream. Event records are JSONL-serializable one-per-line directly by
// this query, independent of whatever the storage adapter uses internally.
type ExportEventsQuery struct {
	Events ports.EventRepository
}

func (q ExportEventsQuery) Execute(ctx context.Context, submissionID string, filter ports.EventFilter, format ExportFormat) ([]byte, string, error) {
	events, err := q.Events.ListEvents(ctx, submissionID, filter)
	if err != nil {
		return nil, "", err
	}
	switch format {
	case ExportFormatJSONL, "":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return nil, "", err
			}
		}
		return buf.Bytes(), "application/jsonl", nil
	case ExportFormatJSON:
		body, err := json.Marshal(events)
		if err != nil {
			return nil, "", err
		}
		return body, "application/json", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}
