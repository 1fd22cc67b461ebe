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

// UserRepository manages persistence for registered subjects.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a new repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user; duplicate username/email surfaces as
// ErrDuplicateKey.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `INSERT INTO users (id, username, email, password_hash, ledger_account_id, created_at, updated_at)
VALUES (:id, :username, :email, :password_hash, :ledger_account_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByID returns a user by row id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// FindByEmail returns a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// ResolveSubject finds the registered subject behind a reference, which may
// be a row id or an email address.
func (r *UserRepository) ResolveSubject(ctx context.Context, ref string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id::text = $1 OR email = $1", ref); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve subject: %w", err)
	}
	return &user, nil
}

// Update modifies a user's mutable profile fields.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	query := `UPDATE users SET username = :username, email = :email, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update user: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
