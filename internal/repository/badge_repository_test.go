package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalchain/vitalchain-api/internal/models"
)

func TestBadgeRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBadgeRepository(db)

	mock.ExpectExec("INSERT INTO badges").
		WillReturnResult(sqlmock.NewResult(1, 1))

	badge := &models.Badge{
		SubjectID:     "user-1",
		CourseID:      "course-1",
		Name:          "Wellness Badge",
		TokenID:       "0.0.5005",
		SerialNumber:  1,
		TransactionID: "0.0.1001@1700000001.0",
	}
	err := repo.Create(context.Background(), badge)
	require.NoError(t, err)
	assert.NotEmpty(t, badge.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBadgeRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBadgeRepository(db)

	mock.ExpectExec("INSERT INTO badges").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := repo.Create(context.Background(), &models.Badge{SubjectID: "user-1", CourseID: "course-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey))
}

func TestBadgeRepositoryFindByTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBadgeRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "subject_id", "course_id", "name", "description", "image_url", "criteria",
		"token_id", "serial_number", "transaction_id", "metadata_digest", "created_at",
		"course_title", "subject_name", "subject_email",
	}).AddRow(
		"badge-1", "user-1", "course-1", "Wellness Badge", "", "", "Beginner",
		"0.0.5005", int64(1), "0.0.1001@1700000001.0", "ab12", now,
		"Intro to Wellness", "alice", "alice@example.com",
	)
	mock.ExpectQuery("SELECT b\\..+ FROM badges b").
		WithArgs("0.0.1001@1700000001.0").
		WillReturnRows(rows)

	detail, err := repo.FindByTransaction(context.Background(), "0.0.1001@1700000001.0")
	require.NoError(t, err)
	assert.Equal(t, "Intro to Wellness", detail.CourseTitle)
	assert.Equal(t, "alice", detail.SubjectName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBadgeRepositoryMarkClaimedTwice(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBadgeRepository(db)

	mock.ExpectExec("UPDATE badge_claims SET status").
		WithArgs(string(models.ClaimStatusClaimed), sqlmock.AnyArg(), "user-1", "badge-1", string(models.ClaimStatusEarned)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.MarkClaimed(context.Background(), "user-1", "badge-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
