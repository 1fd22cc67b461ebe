package models

import "time"

// Badge is proof of course completion, immutable once minted. At most one
// badge exists per (subject, course); the document-store unique constraint
// is the authoritative guard.
type Badge struct {
	ID             string    `db:"id" json:"id"`
	SubjectID      string    `db:"subject_id" json:"subject_id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description,omitempty"`
	ImageURL       string    `db:"image_url" json:"image_url,omitempty"`
	Criteria       string    `db:"criteria" json:"criteria,omitempty"`
	TokenID        string    `db:"token_id" json:"token_id"`
	SerialNumber   int64     `db:"serial_number" json:"serial_number"`
	TransactionID  string    `db:"transaction_id" json:"transaction_id"`
	MetadataDigest string    `db:"metadata_digest" json:"metadata_digest"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// BadgeDetail joins course and subject display fields onto a badge.
type BadgeDetail struct {
	Badge
	CourseTitle  string `db:"course_title" json:"course_title"`
	SubjectName  string `db:"subject_name" json:"subject_name"`
	SubjectEmail string `db:"subject_email" json:"subject_email"`
}

// ClaimStatus tracks whether a subject has taken custody of a minted token.
type ClaimStatus string

const (
	ClaimStatusEarned  ClaimStatus = "EARNED"
	ClaimStatusClaimed ClaimStatus = "CLAIMED"
)

// BadgeClaim transitions EARNED -> CLAIMED exactly once.
type BadgeClaim struct {
	ID        string      `db:"id" json:"id"`
	SubjectID string      `db:"subject_id" json:"subject_id"`
	BadgeID   string      `db:"badge_id" json:"badge_id"`
	Status    ClaimStatus `db:"status" json:"status"`
	EarnedAt  time.Time   `db:"earned_at" json:"earned_at"`
	ClaimedAt *time.Time  `db:"claimed_at" json:"claimed_at,omitempty"`
}
