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

// CourseRepository manages the course catalog and completion registry.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a new repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns the whole catalog, newest first.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	var out []models.Course
	if err := r.db.SelectContext(ctx, &out, "SELECT * FROM courses ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return out, nil
}

// FindByID returns a single course.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, "SELECT * FROM courses WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	query := `INSERT INTO courses (id, title, description, difficulty, badge_name, badge_description, badge_image_url, created_at, updated_at)
VALUES (:id, :title, :description, :difficulty, :badge_name, :badge_description, :badge_image_url, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// RecordCompletion registers that a user finished a course. Recording the
// same completion twice is a no-op.
func (r *CourseRepository) RecordCompletion(ctx context.Context, userID, courseID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO course_completions (user_id, course_id, completed_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id, course_id) DO NOTHING`,
		userID, courseID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

// HasCompleted reports whether the user finished the course.
func (r *CourseRepository) HasCompleted(ctx context.Context, userID, courseID string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM course_completions WHERE user_id = $1 AND course_id = $2", userID, courseID)
	if err != nil {
		return false, fmt.Errorf("check completion: %w", err)
	}
	return count > 0, nil
}
