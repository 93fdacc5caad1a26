// Package memory is an in-memory adapter implementing the intake-core ports
// for local runtime and tests: a mutex-guarded map store, never intended as
// production persistence.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	application "formbridge/contexts/intake-core/application"
	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
	"formbridge/contexts/intake-core/ports"
	"formbridge/internal/shared/outbox"
)

// Store backs SubmissionRepository, EventRepository, IdempotencyStore, and
// DeliveryOutbox with plain maps under one mutex.
type Store struct {
	mu sync.RWMutex

	submissions    map[string]entities.Submission
	byResumeToken  map[string]string // resume token -> submission id
	events         map[string][]entities.Event
	eventDedup     map[string]struct{} // submissionID|eventID
	idempotency    map[string]ports.IdempotencyRecord
	deliveryQueue  map[string]outbox.DeliveryRecord
	logger         *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		submissions:   make(map[string]entities.Submission),
		byResumeToken: make(map[string]string),
		events:        make(map[string][]entities.Event),
		eventDedup:    make(map[string]struct{}),
		idempotency:   make(map[string]ports.IdempotencyRecord),
		deliveryQueue: make(map[string]outbox.DeliveryRecord),
		logger:        application.ResolveLogger(logger),
	}
}

// --- SubmissionRepository ---

func (s *Store) GetSubmission(_ context.Context, id string) (entities.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return entities.Submission{}, domainerrors.ErrSubmissionNotFound
	}
	return sub, nil
}

func (s *Store) GetByResumeToken(_ context.Context, token string) (entities.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byResumeToken[token]
	if !ok {
		return entities.Submission{}, domainerrors.ErrInvalidResumeToken
	}
	sub, ok := s.submissions[id]
	if !ok {
		return entities.Submission{}, domainerrors.ErrSubmissionNotFound
	}
	return sub, nil
}

func (s *Store) SaveSubmission(_ context.Context, sub entities.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if previous, ok := s.submissions[sub.ID]; ok && previous.ResumeToken != sub.ResumeToken {
		delete(s.byResumeToken, previous.ResumeToken)
	}
	s.submissions[sub.ID] = sub
	s.byResumeToken[sub.ResumeToken] = sub.ID
	return nil
}

func (s *Store) ListExpirable(_ context.Context, now time.Time, limit int) ([]entities.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []entities.Submission
	for _, sub := range s.submissions {
		if !sub.State.CanExpire() {
			continue
		}
		if sub.ExpiresAt == nil || !sub.ExpiresAt.Before(now) {
			continue
		}
		due = append(due, sub)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(*due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// --- EventRepository ---

func (s *Store) AppendEvent(_ context.Context, e entities.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dedupKey := e.SubmissionID + "|" + e.EventID
	if _, dup := s.eventDedup[dedupKey]; dup {
		return domainerrors.ErrDuplicateEvent
	}
	history := s.events[e.SubmissionID]
	e.Version = len(history) + 1
	s.events[e.SubmissionID] = append(history, e)
	s.eventDedup[dedupKey] = struct{}{}
	return nil
}

func (s *Store) ListEvents(_ context.Context, submissionID string, filter ports.EventFilter) ([]entities.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	typeSet := make(map[entities.EventType]struct{}, len(filter.Types))
	for _, t := range filter.Types {
		typeSet[t] = struct{}{}
	}

	var filtered []entities.Event
	for _, e := range s.events[submissionID] {
		if len(typeSet) > 0 {
			if _, ok := typeSet[e.Type]; !ok {
				continue
			}
		}
		if filter.ActorKind != "" && e.Actor.Kind != filter.ActorKind {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && e.Timestamp.After(*filter.Until) {
			continue
		}
		filtered = append(filtered, e)
	}

	offset := filter.Offset
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := len(filtered)
	if filter.Limit > 0 && offset+filter.Limit < end {
		end = offset + filter.Limit
	}
	return append([]entities.Event(nil), filtered[offset:end]...), nil
}

func (s *Store) Stats(_ context.Context) (ports.EventStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ports.EventStats{SubmissionCount: len(s.events)}
	for _, history := range s.events {
		stats.TotalEvents += len(history)
		for _, e := range history {
			ts := e.Timestamp
			if stats.OldestEvent == nil || ts.Before(*stats.OldestEvent) {
				stats.OldestEvent = &ts
			}
			if stats.NewestEvent == nil || ts.After(*stats.NewestEvent) {
				stats.NewestEvent = &ts
			}
		}
	}
	return stats, nil
}

// --- IdempotencyStore ---

func (s *Store) Get(_ context.Context, scope, key string) (ports.IdempotencyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idempotency[scope+"|"+key]
	return rec, ok, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotency[record.Scope+"|"+record.Key] = record
	return nil
}

// --- DeliveryOutbox ---

func (s *Store) Enqueue(_ context.Context, rec outbox.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveryQueue[rec.SubmissionID] = rec
	return nil
}

func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]outbox.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []outbox.DeliveryRecord
	for _, rec := range s.deliveryQueue {
		if rec.Status != "pending" {
			continue
		}
		if rec.NextRetryAt.After(now) {
			continue
		}
		due = append(due, rec)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) MarkAttempt(_ context.Context, submissionID string, attempt int, nextRetryAt time.Time, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.deliveryQueue[submissionID]
	if !ok {
		return domainerrors.ErrSubmissionNotFound
	}
	rec.Attempt = attempt
	rec.NextRetryAt = nextRetryAt
	rec.Status = status
	s.deliveryQueue[submissionID] = rec
	return nil
}

func (s *Store) MarkDone(_ context.Context, submissionID string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.deliveryQueue[submissionID]
	if !ok {
		return domainerrors.ErrSubmissionNotFound
	}
	rec.Status = status
	s.deliveryQueue[submissionID] = rec
	return nil
}

// --- Clock / IDGenerator ---

// SystemClock is the default Clock, reused by tests that inject a fixed clock instead.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator mints submission/event/upload identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
