package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vitalchain/vitalchain-api/internal/models"
)

// BadgeRepository manages persistence for badges and their claims.
type BadgeRepository struct {
	db *sqlx.DB
}

// NewBadgeRepository constructs a new repository.
func NewBadgeRepository(db *sqlx.DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// Create inserts a badge. The unique (subject_id, course_id) index is the
// authoritative duplicate guard; a violation surfaces as ErrDuplicateKey.
func (r *BadgeRepository) Create(ctx context.Context, badge *models.Badge) error {
	if badge.ID == "" {
		badge.ID = uuid.NewString()
	}
	if badge.CreatedAt.IsZero() {
		badge.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO badges (id, subject_id, course_id, name, description, image_url, criteria, token_id, serial_number, transaction_id, metadata_digest, created_at)
VALUES (:id, :subject_id, :course_id, :name, :description, :image_url, :criteria, :token_id, :serial_number, :transaction_id, :metadata_digest, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, badge); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create badge: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("create badge: %w", err)
	}
	return nil
}

// FindBySubjectAndCourse returns the badge for a (subject, course) pair.
func (r *BadgeRepository) FindBySubjectAndCourse(ctx context.Context, subjectID, courseID string) (*models.Badge, error) {
	var badge models.Badge
	err := r.db.GetContext(ctx, &badge,
		"SELECT * FROM badges WHERE subject_id = $1 AND course_id = $2", subjectID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find badge: %w", err)
	}
	return &badge, nil
}

// FindByTransaction returns a badge with its course/subject display fields.
func (r *BadgeRepository) FindByTransaction(ctx context.Context, transactionID string) (*models.BadgeDetail, error) {
	query := `SELECT b.*, c.title AS course_title, u.username AS subject_name, u.email AS subject_email
FROM badges b
JOIN courses c ON c.id = b.course_id
JOIN users u ON u.id = b.subject_id
WHERE b.transaction_id = $1`
	var detail models.BadgeDetail
	if err := r.db.GetContext(ctx, &detail, query, transactionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find badge by transaction: %w", err)
	}
	return &detail, nil
}

// ListForSubject returns a subject's badges with course titles.
func (r *BadgeRepository) ListForSubject(ctx context.Context, subjectID string) ([]models.BadgeDetail, error) {
	query := `SELECT b.*, c.title AS course_title, u.username AS subject_name, u.email AS subject_email
FROM badges b
JOIN courses c ON c.id = b.course_id
JOIN users u ON u.id = b.subject_id
WHERE b.subject_id = $1
ORDER BY b.created_at DESC`
	var out []models.BadgeDetail
	if err := r.db.SelectContext(ctx, &out, query, subjectID); err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	return out, nil
}

// CreateClaim records that a badge was earned. Unique per (subject, badge).
func (r *BadgeRepository) CreateClaim(ctx context.Context, claim *models.BadgeClaim) error {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	if claim.Status == "" {
		claim.Status = models.ClaimStatusEarned
	}
	if claim.EarnedAt.IsZero() {
		claim.EarnedAt = time.Now().UTC()
	}

	query := `INSERT INTO badge_claims (id, subject_id, badge_id, status, earned_at, claimed_at)
VALUES (:id, :subject_id, :badge_id, :status, :earned_at, :claimed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, claim); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create badge claim: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("create badge claim: %w", err)
	}
	return nil
}

// MarkClaimed transitions a claim EARNED -> CLAIMED exactly once; a second
// attempt affects no rows and returns sql.ErrNoRows.
func (r *BadgeRepository) MarkClaimed(ctx context.Context, subjectID, badgeID string) (*models.BadgeClaim, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE badge_claims SET status = $1, claimed_at = $2 WHERE subject_id = $3 AND badge_id = $4 AND status = $5`,
		models.ClaimStatusClaimed, now, subjectID, badgeID, models.ClaimStatusEarned)
	if err != nil {
		return nil, fmt.Errorf("mark claim: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, sql.ErrNoRows
	}

	var claim models.BadgeClaim
	err = r.db.GetContext(ctx, &claim,
		"SELECT * FROM badge_claims WHERE subject_id = $1 AND badge_id = $2", subjectID, badgeID)
	if err != nil {
		return nil, fmt.Errorf("load claim: %w", err)
	}
	return &claim, nil
}
