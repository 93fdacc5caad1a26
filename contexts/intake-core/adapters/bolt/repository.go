// Package boltadapter persists the intake core to a single embedded bbolt
// file: one bucket per entity kind, JSON-encoded values, db.View/db.Update
// transactions — the bucket-per-entity layout documented for Warren's
// BoltDB storage package, adapted here to submissions/events/idempotency/
// delivery rows instead of cluster objects.
package boltadapter

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
	"formbridge/contexts/intake-core/ports"
	"formbridge/internal/shared/outbox"
)

var (
	bucketSubmissions = []byte("submissions")
	bucketResumeIndex = []byte("submissions_by_resume_token")
	bucketEvents      = []byte("events")
	bucketEventDedup  = []byte("events_by_id")
	bucketIdempotency = []byte("idempotency")
	bucketDelivery    = []byte("delivery_outbox")
)

type Store struct {
	db *bbolt.DB
}

// Open creates (or reuses) the buckets this adapter needs and returns a
// Store wrapping db. Callers own the *bbolt.DB lifecycle (bbolt.Open/Close).
func Open(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketSubmissions, bucketResumeIndex, bucketEvents, bucketEventDedup, bucketIdempotency, bucketDelivery} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// --- SubmissionRepository ---

func (s *Store) GetSubmission(_ context.Context, id string) (entities.Submission, error) {
	var submission entities.Submission
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketSubmissions).Get([]byte(id))
		if raw == nil {
			return domainerrors.ErrSubmissionNotFound
		}
		return json.Unmarshal(raw, &submission)
	})
	return submission, err
}

func (s *Store) GetByResumeToken(_ context.Context, token string) (entities.Submission, error) {
	var submission entities.Submission
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketResumeIndex).Get([]byte(token))
		if id == nil {
			return domainerrors.ErrInvalidResumeToken
		}
		raw := tx.Bucket(bucketSubmissions).Get(id)
		if raw == nil {
			return domainerrors.ErrSubmissionNotFound
		}
		return json.Unmarshal(raw, &submission)
	})
	return submission, err
}

func (s *Store) SaveSubmission(_ context.Context, sub entities.Submission) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		submissions := tx.Bucket(bucketSubmissions)
		resumeIndex := tx.Bucket(bucketResumeIndex)

		if previous := submissions.Get([]byte(sub.ID)); previous != nil {
			var prior entities.Submission
			if err := json.Unmarshal(previous, &prior); err != nil {
				return err
			}
			if prior.ResumeToken != sub.ResumeToken {
				if err := resumeIndex.Delete([]byte(prior.ResumeToken)); err != nil {
					return err
				}
			}
		}
		if err := submissions.Put([]byte(sub.ID), raw); err != nil {
			return err
		}
		return resumeIndex.Put([]byte(sub.ResumeToken), []byte(sub.ID))
	})
}

func (s *Store) ListExpirable(_ context.Context, now time.Time, limit int) ([]entities.Submission, error) {
	var due []entities.Submission
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSubmissions).ForEach(func(_, raw []byte) error {
			var sub entities.Submission
			if err := json.Unmarshal(raw, &sub); err != nil {
				return err
			}
			if !sub.State.CanExpire() || sub.ExpiresAt == nil || !sub.ExpiresAt.Before(now) {
				return nil
			}
			due = append(due, sub)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(*due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// --- EventRepository ---

func (s *Store) AppendEvent(_ context.Context, e entities.Event) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dedup := tx.Bucket(bucketEventDedup)
		dedupKey := eventDedupKey(e.SubmissionID, e.EventID)
		if dedup.Get(dedupKey) != nil {
			return domainerrors.ErrDuplicateEvent
		}

		events := tx.Bucket(bucketEvents)
		sub := events.Bucket([]byte(e.SubmissionID))
		if sub == nil {
			var err error
			sub, err = events.CreateBucket([]byte(e.SubmissionID))
			if err != nil {
				return err
			}
		}
		e.Version = sub.Stats().KeyN + 1
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := sub.Put(eventKey(e.Version, e.EventID), raw); err != nil {
			return err
		}
		return dedup.Put(dedupKey, []byte(e.EventID))
	})
}

func (s *Store) ListEvents(_ context.Context, submissionID string, filter ports.EventFilter) ([]entities.Event, error) {
	typeSet := make(map[entities.EventType]struct{}, len(filter.Types))
	for _, t := range filter.Types {
		typeSet[t] = struct{}{}
	}

	var filtered []entities.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		sub := tx.Bucket(bucketEvents).Bucket([]byte(submissionID))
		if sub == nil {
			return nil
		}
		return sub.ForEach(func(_, raw []byte) error {
			var e entities.Event
			if err := json.Unmarshal(raw, &e); err != nil {
				return err
			}
			if len(typeSet) > 0 {
				if _, ok := typeSet[e.Type]; !ok {
					return nil
				}
			}
			if filter.ActorKind != "" && e.Actor.Kind != filter.ActorKind {
				return nil
			}
			if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
				return nil
			}
			if filter.Until != nil && e.Timestamp.After(*filter.Until) {
				return nil
			}
			filtered = append(filtered, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
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
	var stats ports.EventStats
	err := s.db.View(func(tx *bbolt.Tx) error {
		events := tx.Bucket(bucketEvents)
		return events.ForEach(func(name, v []byte) error {
			if v != nil {
				return nil // only nested buckets hold submission event streams
			}
			stats.SubmissionCount++
			sub := events.Bucket(name)
			return sub.ForEach(func(_, raw []byte) error {
				var e entities.Event
				if err := json.Unmarshal(raw, &e); err != nil {
					return err
				}
				stats.TotalEvents++
				ts := e.Timestamp
				if stats.OldestEvent == nil || ts.Before(*stats.OldestEvent) {
					stats.OldestEvent = &ts
				}
				if stats.NewestEvent == nil || ts.After(*stats.NewestEvent) {
					stats.NewestEvent = &ts
				}
				return nil
			})
		})
	})
	return stats, err
}

// --- IdempotencyStore ---

func (s *Store) Get(_ context.Context, scope, key string) (ports.IdempotencyRecord, bool, error) {
	var record ports.IdempotencyRecord
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketIdempotency).Get(idempotencyKey(scope, key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &record)
	})
	return record, found, err
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Put(idempotencyKey(record.Scope, record.Key), raw)
	})
}

// --- DeliveryOutbox ---

func (s *Store) Enqueue(_ context.Context, rec outbox.DeliveryRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDelivery).Put([]byte(rec.SubmissionID), raw)
	})
}

func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]outbox.DeliveryRecord, error) {
	var due []outbox.DeliveryRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDelivery).ForEach(func(_, raw []byte) error {
			var rec outbox.DeliveryRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if rec.Status != "pending" || rec.NextRetryAt.After(now) {
				return nil
			}
			due = append(due, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) MarkAttempt(_ context.Context, submissionID string, attempt int, nextRetryAt time.Time, status string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDelivery)
		raw := bucket.Get([]byte(submissionID))
		if raw == nil {
			return domainerrors.ErrSubmissionNotFound
		}
		var rec outbox.DeliveryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		rec.Attempt = attempt
		rec.NextRetryAt = nextRetryAt
		rec.Status = status
		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(submissionID), updated)
	})
}

func (s *Store) MarkDone(_ context.Context, submissionID string, status string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDelivery)
		raw := bucket.Get([]byte(submissionID))
		if raw == nil {
			return domainerrors.ErrSubmissionNotFound
		}
		var rec outbox.DeliveryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		rec.Status = status
		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(submissionID), updated)
	})
}

func idempotencyKey(scope, key string) []byte {
	return []byte(scope + "|" + key)
}

func eventKey(version int, eventID string) []byte {
	return []byte(fixedWidth(version) + "|" + eventID)
}

func eventDedupKey(submissionID, eventID string) []byte {
	return []byte(submissionID + "|" + eventID)
}

func fixedWidth(n int) string {
	const width = 10
	s := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		s[i] = byte('0' + n%10)
		n /= 10
	}
	return string(s)
}
