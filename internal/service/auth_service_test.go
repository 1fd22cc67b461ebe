package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vitalchain/vitalchain-api/internal/models"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
)

type fakeAuthRepo struct {
	users map[string]models.User // keyed by email
}

func (f *fakeAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := f.users[email]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeAuthRepo) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse-battery"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &fakeAuthRepo{users: map[string]models.User{
		"alice@example.com": {
			ID:           "user-1",
			Username:     "alice",
			Email:        "alice@example.com",
			PasswordHash: string(hash),
		},
	}}
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		TokenSecret: "test-secret",
		TokenExpiry: time.Hour,
		Issuer:      "vitalchain-api",
	})
	return svc, repo
}

func TestLoginIssuesValidToken(t *testing.T) {
	svc, _ := newAuthFixture(t)

	result, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", result.User.ID)
	assert.NotEmpty(t, result.AccessToken)

	claims, err := svc.ValidateToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "correct-horse-battery",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.ValidateToken("not-a-jwt")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
