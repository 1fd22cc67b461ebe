package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vitalchain/vitalchain-api/internal/models"
)

// pqUniqueViolation is the postgres error code for unique-index violations.
const pqUniqueViolation = "23505"

// ErrDuplicateKey marks an insert rejected by a unique constraint.
var ErrDuplicateKey = errors.New("duplicate key")

// isUniqueViolation reports whether err is a postgres unique-index rejection.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

const recordColumns = `id, document_id, subject_key_hash, provider, facility, record_type, record_date, schema_version,
storage_kind, storage_envelope, storage_content_id, storage_topic_id, storage_sequence, key_reference,
status, created_at, updated_at`

// RecordRepository manages persistence for health records.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs a new repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Create inserts a record. A duplicate document_id surfaces as
// ErrDuplicateKey so the service can map it to the domain error.
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	query := `INSERT INTO health_records (id, document_id, subject_key_hash, provider, facility, record_type, record_date, schema_version,
storage_kind, storage_envelope, storage_content_id, storage_topic_id, storage_sequence, key_reference, status, created_at, updated_at)
VALUES (:id, :document_id, :subject_key_hash, :provider, :facility, :record_type, :record_date, :schema_version,
:storage_kind, :storage_envelope, :storage_content_id, :storage_topic_id, :storage_sequence, :key_reference, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create health record: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("create health record: %w", err)
	}
	return nil
}

// FindByDocumentID returns a record by its document identifier.
func (r *RecordRepository) FindByDocumentID(ctx context.Context, documentID string) (*models.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM health_records WHERE document_id = $1", recordColumns)
	var record models.Record
	if err := r.db.GetContext(ctx, &record, query, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find health record: %w", err)
	}
	return &record, nil
}

// ListBySubject returns a subject's records, newest first.
func (r *RecordRepository) ListBySubject(ctx context.Context, subjectKeyHash string, page, pageSize int) ([]models.Record, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT %s FROM health_records WHERE subject_key_hash = $1
ORDER BY created_at DESC LIMIT %d OFFSET %d`, recordColumns, pageSize, offset)
	var out []models.Record
	if err := r.db.SelectContext(ctx, &out, query, subjectKeyHash); err != nil {
		return nil, 0, fmt.Errorf("list health records: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM health_records WHERE subject_key_hash = $1", subjectKeyHash); err != nil {
		return nil, 0, fmt.Errorf("count health records: %w", err)
	}
	return out, total, nil
}

// UpdateStatus transitions a record's lifecycle tag.
func (r *RecordRepository) UpdateStatus(ctx context.Context, documentID string, status models.RecordStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE health_records SET status = $1, updated_at = $2 WHERE document_id = $3",
		status, time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateAnchor stamps ledger coordinates onto a stored record and promotes
// it to anchored. Used by the background re-anchor worker.
func (r *RecordRepository) UpdateAnchor(ctx context.Context, documentID, topicID string, sequence int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE health_records SET storage_topic_id = $1, storage_sequence = $2, status = $3, updated_at = $4
WHERE document_id = $5 AND status = $6`,
		topicID, sequence, models.RecordStatusAnchored, time.Now().UTC(), documentID, models.RecordStatusStored)
	if err != nil {
		return fmt.Errorf("update record anchor: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendSubjectIndex adds a row to the append-only per-subject index.
func (r *RecordRepository) AppendSubjectIndex(ctx context.Context, subjectKeyHash, documentID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO subject_record_index (subject_key_hash, document_id, created_at) VALUES ($1, $2, $3)",
		subjectKeyHash, documentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append subject index: %w", err)
	}
	return nil
}
