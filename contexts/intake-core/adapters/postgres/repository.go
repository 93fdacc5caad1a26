// Package postgresadapter persists the intake core against PostgreSQL via
// gorm: one gorm model per table, hand-written mapping to/from the domain
// entity, unique-constraint violations translated into domain sentinels.
package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
	"formbridge/contexts/intake-core/ports"
	"formbridge/internal/shared/outbox"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// AutoMigrate creates or updates the four tables this adapter owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&submissionModel{}, &eventModel{}, &idempotencyModel{}, &deliveryModel{})
}

// --- SubmissionRepository ---

func (r *Repository) GetSubmission(ctx context.Context, id string) (entities.Submission, error) {
	var row submissionModel
	err := r.db.WithContext(ctx).Where("submission_id = ?", strings.TrimSpace(id)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Submission{}, domainerrors.ErrSubmissionNotFound
		}
		return entities.Submission{}, err
	}
	return row.toEntity()
}

func (r *Repository) GetByResumeToken(ctx context.Context, token string) (entities.Submission, error) {
	var row submissionModel
	err := r.db.WithContext(ctx).Where("resume_token = ?", token).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Submission{}, domainerrors.ErrInvalidResumeToken
		}
		return entities.Submission{}, err
	}
	return row.toEntity()
}

func (r *Repository) SaveSubmission(ctx context.Context, sub entities.Submission) error {
	row, err := submissionModelFromEntity(sub)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns(submissionUpdateColumns),
	}).Create(&row).Error
}

func (r *Repository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]entities.Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []submissionModel
	if err := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", now.UTC()).
		Where("state IN ?", expirableStates).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]entities.Submission, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		items = append(items, sub)
	}
	return items, nil
}

// --- EventRepository ---

func (r *Repository) AppendEvent(ctx context.Context, e entities.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	var maxVersion int
	if err := r.db.WithContext(ctx).Model(&eventModel{}).
		Where("submission_id = ?", e.SubmissionID).
		Select("COALESCE(MAX(version), 0)").Scan(&maxVersion).Error; err != nil {
		return err
	}
	e.Version = maxVersion + 1

	row := eventModel{
		EventID: e.EventID, SubmissionID: e.SubmissionID, Version: e.Version,
		Timestamp: e.Timestamp.UTC(), ActorKind: string(e.Actor.Kind), ActorID: e.Actor.ID,
		State: string(e.State), Type: string(e.Type), Payload: payload,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return domainerrors.ErrDuplicateEvent
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrDuplicateEvent
	}
	return nil
}

func (r *Repository) ListEvents(ctx context.Context, submissionID string, filter ports.EventFilter) ([]entities.Event, error) {
	tx := r.db.WithContext(ctx).Model(&eventModel{}).Where("submission_id = ?", submissionID)
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		tx = tx.Where("type IN ?", types)
	}
	if filter.ActorKind != "" {
		tx = tx.Where("actor_kind = ?", string(filter.ActorKind))
	}
	if filter.Since != nil {
		tx = tx.Where("\"timestamp\" >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		tx = tx.Where("\"timestamp\" <= ?", filter.Until.UTC())
	}
	tx = tx.Order("version ASC")
	if filter.Offset > 0 {
		tx = tx.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	var rows []eventModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]entities.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *Repository) Stats(ctx context.Context) (ports.EventStats, error) {
	var stats ports.EventStats
	var total int64
	if err := r.db.WithContext(ctx).Model(&eventModel{}).Count(&total).Error; err != nil {
		return ports.EventStats{}, err
	}
	stats.TotalEvents = int(total)

	var submissionCount int64
	if err := r.db.WithContext(ctx).Model(&eventModel{}).
		Distinct("submission_id").Count(&submissionCount).Error; err != nil {
		return ports.EventStats{}, err
	}
	stats.SubmissionCount = int(submissionCount)

	var oldest, newest *time.Time
	row := r.db.WithContext(ctx).Model(&eventModel{}).Select("MIN(\"timestamp\")").Row()
	_ = row.Scan(&oldest)
	row = r.db.WithContext(ctx).Model(&eventModel{}).Select("MAX(\"timestamp\")").Row()
	_ = row.Scan(&newest)
	stats.OldestEvent = oldest
	stats.NewestEvent = newest
	return stats, nil
}

// --- IdempotencyStore ---

func (r *Repository) Get(ctx context.Context, scope, key string) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).Where("scope = ? AND key = ?", scope, key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}
	return ports.IdempotencyRecord{
		Scope: row.Scope, Key: row.Key, RequestHash: row.RequestHash,
		SubmissionID: row.SubmissionID, ResponsePayload: row.ResponsePayload, ExpiresAt: row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Scope: record.Scope, Key: record.Key, RequestHash: record.RequestHash,
		SubmissionID: record.SubmissionID, ResponsePayload: record.ResponsePayload, ExpiresAt: record.ExpiresAt.UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"request_hash", "submission_id", "response_payload", "expires_at"}),
	}).Create(&row).Error
}

// --- DeliveryOutbox ---

func (r *Repository) Enqueue(ctx context.Context, rec outbox.DeliveryRecord) error {
	row := deliveryModel{
		SubmissionID: rec.SubmissionID, IntakeID: rec.IntakeID, Payload: rec.Payload,
		Attempt: rec.Attempt, Status: rec.Status, NextRetryAt: rec.NextRetryAt.UTC(), CreatedAt: rec.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"intake_id", "payload", "attempt", "status", "next_retry_at"}),
	}).Create(&row).Error
}

func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]outbox.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []deliveryModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", "pending").
		Where("next_retry_at <= ?", now.UTC()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]outbox.DeliveryRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, outbox.DeliveryRecord{
			SubmissionID: row.SubmissionID, IntakeID: row.IntakeID, Payload: row.Payload,
			Attempt: row.Attempt, Status: row.Status, NextRetryAt: row.NextRetryAt.UTC(), CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkAttempt(ctx context.Context, submissionID string, attempt int, nextRetryAt time.Time, status string) error {
	result := r.db.WithContext(ctx).Model(&deliveryModel{}).
		Where("submission_id = ?", submissionID).
		Updates(map[string]any{"attempt": attempt, "next_retry_at": nextRetryAt.UTC(), "status": status})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrSubmissionNotFound
	}
	return nil
}

func (r *Repository) MarkDone(ctx context.Context, submissionID string, status string) error {
	result := r.db.WithContext(ctx).Model(&deliveryModel{}).
		Where("submission_id = ?", submissionID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrSubmissionNotFound
	}
	return nil
}

// expirableStates mirrors entities.SubmissionState.CanExpire: only states
// with an expired edge in the transition table are swept. The legacy
// "created" alias is included so pre-alias rows are still enumerated.
var expirableStates = []string{"created", "draft", "in_progress", "awaiting_upload"}

var submissionUpdateColumns = []string{
	"intake_id", "state", "resume_token", "created_at", "updated_at", "expires_at",
	"fields", "field_attribution", "uploads", "created_by_kind", "created_by_id",
	"updated_by_kind", "updated_by_id", "idempotency_keys", "review_decisions", "delivery_failed",
}

type submissionModel struct {
	SubmissionID     string    `gorm:"column:submission_id;primaryKey"`
	IntakeID         string    `gorm:"column:intake_id"`
	State            string    `gorm:"column:state"`
	ResumeToken      string    `gorm:"column:resume_token;uniqueIndex"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
	ExpiresAt        *time.Time `gorm:"column:expires_at"`
	Fields           []byte    `gorm:"column:fields"`
	FieldAttribution []byte    `gorm:"column:field_attribution"`
	Uploads          []byte    `gorm:"column:uploads"`
	CreatedByKind    string    `gorm:"column:created_by_kind"`
	CreatedByID      string    `gorm:"column:created_by_id"`
	UpdatedByKind    string    `gorm:"column:updated_by_kind"`
	UpdatedByID      string    `gorm:"column:updated_by_id"`
	IdempotencyKeys  []byte    `gorm:"column:idempotency_keys"`
	ReviewDecisions  []byte    `gorm:"column:review_decisions"`
	DeliveryFailed   bool      `gorm:"column:delivery_failed"`
}

func (submissionModel) TableName() string { return "intake_submissions" }

func submissionModelFromEntity(s entities.Submission) (submissionModel, error) {
	fields, err := json.Marshal(s.Fields)
	if err != nil {
		return submissionModel{}, err
	}
	attribution, err := json.Marshal(s.FieldAttribution)
	if err != nil {
		return submissionModel{}, err
	}
	uploads, err := json.Marshal(s.Uploads)
	if err != nil {
		return submissionModel{}, err
	}
	keys := make([]string, 0, len(s.IdempotencyKeys))
	for k := range s.IdempotencyKeys {
		keys = append(keys, k)
	}
	idempotencyKeys, err := json.Marshal(keys)
	if err != nil {
		return submissionModel{}, err
	}
	reviewDecisions, err := json.Marshal(s.ReviewDecisions)
	if err != nil {
		return submissionModel{}, err
	}
	return submissionModel{
		SubmissionID: s.ID, IntakeID: s.IntakeID, State: string(s.State), ResumeToken: s.ResumeToken,
		CreatedAt: s.CreatedAt.UTC(), UpdatedAt: s.UpdatedAt.UTC(), ExpiresAt: normalizeOptionalTime(s.ExpiresAt),
		Fields: fields, FieldAttribution: attribution, Uploads: uploads,
		CreatedByKind: string(s.CreatedBy.Kind), CreatedByID: s.CreatedBy.ID,
		UpdatedByKind: string(s.UpdatedBy.Kind), UpdatedByID: s.UpdatedBy.ID,
		IdempotencyKeys: idempotencyKeys, ReviewDecisions: reviewDecisions, DeliveryFailed: s.DeliveryFailed,
	}, nil
}

func (m submissionModel) toEntity() (entities.Submission, error) {
	var fields map[string]any
	if len(m.Fields) > 0 {
		if err := json.Unmarshal(m.Fields, &fields); err != nil {
			return entities.Submission{}, err
		}
	}
	var attribution map[string]entities.Actor
	if len(m.FieldAttribution) > 0 {
		if err := json.Unmarshal(m.FieldAttribution, &attribution); err != nil {
			return entities.Submission{}, err
		}
	}
	var uploads map[string]entities.UploadRecord
	if len(m.Uploads) > 0 {
		if err := json.Unmarshal(m.Uploads, &uploads); err != nil {
			return entities.Submission{}, err
		}
	}
	var keys []string
	if len(m.IdempotencyKeys) > 0 {
		if err := json.Unmarshal(m.IdempotencyKeys, &keys); err != nil {
			return entities.Submission{}, err
		}
	}
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}
	var decisions []entities.ReviewDecision
	if len(m.ReviewDecisions) > 0 {
		if err := json.Unmarshal(m.ReviewDecisions, &decisions); err != nil {
			return entities.Submission{}, err
		}
	}
	return entities.Submission{
		ID: m.SubmissionID, IntakeID: m.IntakeID, State: entities.SubmissionState(m.State), ResumeToken: m.ResumeToken,
		CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC(), ExpiresAt: normalizeOptionalTime(m.ExpiresAt),
		Fields: fields, FieldAttribution: attribution, Uploads: uploads,
		CreatedBy: entities.Actor{Kind: entities.ActorKind(m.CreatedByKind), ID: m.CreatedByID},
		UpdatedBy: entities.Actor{Kind: entities.ActorKind(m.UpdatedByKind), ID: m.UpdatedByID},
		IdempotencyKeys: keySet, ReviewDecisions: decisions, DeliveryFailed: m.DeliveryFailed,
	}, nil
}

type eventModel struct {
	EventID      string    `gorm:"column:event_id;primaryKey"`
	SubmissionID string    `gorm:"column:submission_id;index"`
	Version      int       `gorm:"column:version"`
	Timestamp    time.Time `gorm:"column:timestamp"`
	ActorKind    string    `gorm:"column:actor_kind"`
	ActorID      string    `gorm:"column:actor_id"`
	State        string    `gorm:"column:state"`
	Type         string    `gorm:"column:type"`
	Payload      []byte    `gorm:"column:payload"`
}

func (eventModel) TableName() string { return "intake_events" }

func (m eventModel) toEntity() (entities.Event, error) {
	var payload map[string]any
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return entities.Event{}, err
		}
	}
	return entities.Event{
		EventID: m.EventID, SubmissionID: m.SubmissionID, Version: m.Version, Timestamp: m.Timestamp.UTC(),
		Actor: entities.Actor{Kind: entities.ActorKind(m.ActorKind), ID: m.ActorID},
		State: entities.SubmissionState(m.State), Type: entities.EventType(m.Type), Payload: payload,
	}, nil
}

type idempotencyModel struct {
	Scope           string    `gorm:"column:scope;primaryKey"`
	Key             string    `gorm:"column:key;primaryKey"`
	RequestHash     string    `gorm:"column:request_hash"`
	SubmissionID    string    `gorm:"column:submission_id"`
	ResponsePayload []byte    `gorm:"column:response_payload"`
	ExpiresAt       time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string { return "intake_idempotency" }

type deliveryModel struct {
	SubmissionID string    `gorm:"column:submission_id;primaryKey"`
	IntakeID     string    `gorm:"column:intake_id"`
	Payload      []byte    `gorm:"column:payload"`
	Attempt      int       `gorm:"column:attempt"`
	Status       string    `gorm:"column:status"`
	NextRetryAt  time.Time `gorm:"column:next_retry_at"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (deliveryModel) TableName() string { return "intake_delivery_outbox" }

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	t := value.UTC()
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
