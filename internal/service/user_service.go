package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vitalchain/vitalchain-api/internal/ledger"
	"github.com/vitalchain/vitalchain-api/internal/models"
	"github.com/vitalchain/vitalchain-api/internal/repository"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
)

type userRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// RegisterResponse returns the created user plus the ledger key material,
// which is handed over exactly once and never persisted.
type RegisterResponse struct {
	User             models.UserInfo `json:"user"`
	LedgerPrivateKey string          `json:"ledger_private_key,omitempty"`
}

// UpdateProfileRequest carries the mutable profile fields.
type UpdateProfileRequest struct {
	Username string `json:"username" validate:"omitempty,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// UserService handles registration and profile management. Registration
// provisions a ledger account for the subject when an account creator is
// configured.
type UserService struct {
	repo      userRepository
	accounts  ledger.AccountCreator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, accounts ledger.AccountCreator, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, accounts: accounts, validator: validate, logger: logger}
}

// Register creates a user, hashes the password and provisions a ledger
// account. A ledger failure does not block registration; the account can be
// provisioned later.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	}

	var privateKey string
	if s.accounts != nil {
		account, err := s.accounts.CreateAccount(ctx)
		if err != nil {
			s.logger.Warn("ledger account provisioning failed", zap.Error(err))
		} else {
			user.LedgerAccountID = account.AccountID
			privateKey = account.PrivateKey
		}
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username or email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	return &RegisterResponse{
		User: models.UserInfo{
			ID:              user.ID,
			Username:        user.Username,
			Email:           user.Email,
			LedgerAccountID: user.LedgerAccountID,
		},
		LedgerPrivateKey: privateKey,
	}, nil
}

// Profile returns a user's public profile.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSubjectNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return &models.UserInfo{
		ID:              user.ID,
		Username:        user.Username,
		Email:           user.Email,
		LedgerAccountID: user.LedgerAccountID,
	}, nil
}

// UpdateProfile changes a user's mutable fields.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSubjectNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.Username != "" {
		user.Username = req.Username
	}
	if req.Email != "" {
		user.Email = req.Email
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username or email already taken")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	return &models.UserInfo{
		ID:              user.ID,
		Username:        user.Username,
		Email:           user.Email,
		LedgerAccountID: user.LedgerAccountID,
	}, nil
}
