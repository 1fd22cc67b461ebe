package models

import "time"

// CourseDifficulty levels mirror the catalog's badge criteria wording.
type CourseDifficulty string

const (
	CourseBeginner     CourseDifficulty = "Beginner"
	CourseIntermediate CourseDifficulty = "Intermediate"
	CourseAdvanced     CourseDifficulty = "Advanced"
)

// Course is a catalog entry whose completion earns a badge.
type Course struct {
	ID               string           `db:"id" json:"id"`
	Title            string           `db:"title" json:"title"`
	Description      string           `db:"description" json:"description"`
	Difficulty       CourseDifficulty `db:"difficulty" json:"difficulty"`
	BadgeName        string           `db:"badge_name" json:"badge_name,omitempty"`
	BadgeDescription string           `db:"badge_description" json:"badge_description,omitempty"`
	BadgeImageURL    string           `db:"badge_image_url" json:"badge_image_url,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// CourseCompletion records that a subject finished a course.
type CourseCompletion struct {
	UserID      string    `db:"user_id" json:"user_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	CompletedAt time.Time `db:"completed_at" json:"completed_at"`
}
