package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalchain/vitalchain-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func recordRows() *sqlmock.Rows {
	now := time.Now().UTC()
	cid := "QmTestCID"
	return sqlmock.NewRows([]string{
		"id", "document_id", "subject_key_hash", "provider", "facility", "record_type", "record_date", "schema_version",
		"storage_kind", "storage_envelope", "storage_content_id", "storage_topic_id", "storage_sequence", "key_reference",
		"status", "created_at", "updated_at",
	}).AddRow(
		"11111111-1111-1111-1111-111111111111", "hr_1700000000000_deadbeef", "abc123", "Dr. Reyes", "Northside", "lab-result", now, "1.0",
		string(models.StorageKindBlob), nil, cid, nil, nil, "local-master-v1",
		string(models.RecordStatusStored), now, now,
	)
}

func TestRecordRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("INSERT INTO health_records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	cid := "QmTestCID"
	err := repo.Create(context.Background(), &models.Record{
		DocumentID:     "hr_1700000000000_deadbeef",
		SubjectKeyHash: "abc123",
		SchemaVersion:  "1.0",
		StorageReference: models.StorageReference{
			Kind:         models.StorageKindBlob,
			ContentID:    &cid,
			KeyReference: "local-master-v1",
		},
		Status: models.RecordStatusStored,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("INSERT INTO health_records").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := repo.Create(context.Background(), &models.Record{
		DocumentID:    "hr_1700000000000_deadbeef",
		SchemaVersion: "1.0",
		Status:        models.RecordStatusStored,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryFindByDocumentID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery("SELECT .+ FROM health_records WHERE document_id").
		WithArgs("hr_1700000000000_deadbeef").
		WillReturnRows(recordRows())

	record, err := repo.FindByDocumentID(context.Background(), "hr_1700000000000_deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "abc123", record.SubjectKeyHash)
	assert.Equal(t, models.StorageKindBlob, record.Kind)
	require.NotNil(t, record.ContentID)
	assert.Equal(t, "QmTestCID", *record.ContentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryFindMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery("SELECT .+ FROM health_records WHERE document_id").
		WithArgs("hr_missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByDocumentID(context.Background(), "hr_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestRecordRepositoryListBySubject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery("SELECT .+ FROM health_records WHERE subject_key_hash").
		WithArgs("abc123").
		WillReturnRows(recordRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM health_records WHERE subject_key_hash = $1")).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	out, total, err := repo.ListBySubject(context.Background(), "abc123", 1, 50)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpdateAnchor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("UPDATE health_records SET storage_topic_id").
		WithArgs("0.0.4242", int64(7), string(models.RecordStatusAnchored), sqlmock.AnyArg(), "hr_1", string(models.RecordStatusStored)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateAnchor(context.Background(), "hr_1", "0.0.4242", 7)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpdateAnchorAlreadyAnchored(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("UPDATE health_records SET storage_topic_id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAnchor(context.Background(), "hr_1", "0.0.4242", 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestRecordRepositoryUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("UPDATE health_records SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "hr_missing", models.RecordStatusArchived)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
