package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalchain/vitalchain-api/internal/ledger"
	"github.com/vitalchain/vitalchain-api/internal/models"
	"github.com/vitalchain/vitalchain-api/internal/repository"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
)

type fakeBadgeRepo struct {
	badges map[string]models.Badge // keyed subject|course
	claims map[string]models.BadgeClaim
}

func badgeKey(subjectID, courseID string) string { return subjectID + "|" + courseID }

func (f *fakeBadgeRepo) Create(ctx context.Context, badge *models.Badge) error {
	if f.badges == nil {
		f.badges = make(map[string]models.Badge)
	}
	key := badgeKey(badge.SubjectID, badge.CourseID)
	if _, exists := f.badges[key]; exists {
		return fmt.Errorf("create badge: %w", repository.ErrDuplicateKey)
	}
	if badge.ID == "" {
		badge.ID = "badge-" + key
	}
	badge.CreatedAt = time.Now().UTC()
	f.badges[key] = *badge
	return nil
}

func (f *fakeBadgeRepo) FindBySubjectAndCourse(ctx context.Context, subjectID, courseID string) (*models.Badge, error) {
	if b, ok := f.badges[badgeKey(subjectID, courseID)]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeBadgeRepo) FindByTransaction(ctx context.Context, transactionID string) (*models.BadgeDetail, error) {
	for _, b := range f.badges {
		if b.TransactionID == transactionID {
			return &models.BadgeDetail{Badge: b, CourseTitle: "Course", SubjectName: "Alice", SubjectEmail: "alice@example.com"}, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeBadgeRepo) ListForSubject(ctx context.Context, subjectID string) ([]models.BadgeDetail, error) {
	var out []models.BadgeDetail
	for _, b := range f.badges {
		if b.SubjectID == subjectID {
			out = append(out, models.BadgeDetail{Badge: b})
		}
	}
	return out, nil
}

func (f *fakeBadgeRepo) CreateClaim(ctx context.Context, claim *models.BadgeClaim) error {
	if f.claims == nil {
		f.claims = make(map[string]models.BadgeClaim)
	}
	key := claim.SubjectID + "|" + claim.BadgeID
	if _, exists := f.claims[key]; exists {
		return fmt.Errorf("create badge claim: %w", repository.ErrDuplicateKey)
	}
	if claim.Status == "" {
		claim.Status = models.ClaimStatusEarned
	}
	claim.EarnedAt = time.Now().UTC()
	f.claims[key] = *claim
	return nil
}

func (f *fakeBadgeRepo) MarkClaimed(ctx context.Context, subjectID, badgeID string) (*models.BadgeClaim, error) {
	key := subjectID + "|" + badgeID
	claim, ok := f.claims[key]
	if !ok || claim.Status != models.ClaimStatusEarned {
		return nil, sql.ErrNoRows
	}
	now := time.Now().UTC()
	claim.Status = models.ClaimStatusClaimed
	claim.ClaimedAt = &now
	f.claims[key] = claim
	return &claim, nil
}

type fakeCourseRepo struct {
	courses   map[string]models.Course
	completed map[string]bool // userID|courseID
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := f.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) HasCompleted(ctx context.Context, userID, courseID string) (bool, error) {
	return f.completed[userID+"|"+courseID], nil
}

type fakeUserRepo struct {
	users map[string]models.User
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

type fakeTokenAdapter struct {
	mints    [][]byte
	failMint bool
	failInfo bool
}

func (f *fakeTokenAdapter) Mint(ctx context.Context, collectionID string, metadata []byte) (ledger.MintResult, error) {
	if f.failMint {
		return ledger.MintResult{}, fmt.Errorf("mint rejected")
	}
	f.mints = append(f.mints, append([]byte(nil), metadata...))
	return ledger.MintResult{
		TokenID:       collectionID,
		SerialNumber:  int64(len(f.mints)),
		TransactionID: fmt.Sprintf("0.0.1001@170000000%d.0", len(f.mints)),
	}, nil
}

func (f *fakeTokenAdapter) CollectionInfo(ctx context.Context, collectionID string) (ledger.CollectionInfo, error) {
	if f.failInfo {
		return ledger.CollectionInfo{}, fmt.Errorf("token info unavailable")
	}
	return ledger.CollectionInfo{
		TokenID:     collectionID,
		Name:        "VitalChain Badges",
		Symbol:      "VCB",
		TotalSupply: uint64(len(f.mints)),
		TreasuryID:  "0.0.1001",
	}, nil
}

func newBadgeFixture(courseTitle string) (*fakeBadgeRepo, *fakeCourseRepo, *fakeUserRepo, *fakeTokenAdapter) {
	badges := &fakeBadgeRepo{}
	courses := &fakeCourseRepo{
		courses: map[string]models.Course{
			"course-1": {
				ID:         "course-1",
				Title:      courseTitle,
				Difficulty: models.CourseBeginner,
			},
		},
		completed: map[string]bool{"user-1|course-1": true},
	}
	users := &fakeUserRepo{users: map[string]models.User{
		"user-1": {ID: "user-1", Username: "alice", Email: "alice@example.com"},
	}}
	tokens := &fakeTokenAdapter{}
	return badges, courses, users, tokens
}

func newTestBadgeService(badges *fakeBadgeRepo, courses *fakeCourseRepo, users *fakeUserRepo, tokens *fakeTokenAdapter) *BadgeService {
	return NewBadgeService(badges, courses, users, tokens, nil, nil, nil, nil, BadgeServiceConfig{
		CollectionID:     "0.0.5005",
		MetadataMaxBytes: DefaultMetadataMaxBytes,
		Issuer:           "VitalChain",
	})
}

func TestMintHappyPath(t *testing.T) {
	badges, courses, users, tokens := newBadgeFixture("Intro to Wellness")
	svc := newTestBadgeService(badges, courses, users, tokens)

	badge, err := svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)

	assert.Equal(t, "0.0.5005", badge.TokenID)
	assert.Equal(t, int64(1), badge.SerialNumber)
	assert.NotEmpty(t, badge.TransactionID)
	assert.Len(t, badge.MetadataDigest, 64)
	assert.Equal(t, "Intro to Wellness Badge", badge.Name)

	// Rich metadata fits under the ceiling for a short title.
	require.Len(t, tokens.mints, 1)
	assert.LessOrEqual(t, len(tokens.mints[0]), DefaultMetadataMaxBytes)
	var rich map[string]string
	require.NoError(t, json.Unmarshal(tokens.mints[0], &rich))
	assert.Equal(t, "Intro to Wellness", rich["course"])
	assert.Equal(t, "VitalChain", rich["issuer"])

	claim, ok := badges.claims["user-1|"+badge.ID]
	require.True(t, ok)
	assert.Equal(t, models.ClaimStatusEarned, claim.Status)
}

func TestMintRequiresCompletion(t *testing.T) {
	badges, courses, users, tokens := newBadgeFixture("Intro to Wellness")
	courses.completed = nil
	svc := newTestBadgeService(badges, courses, users, tokens)

	_, err := svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCourseNotCompleted))
	assert.Empty(t, tokens.mints)
}

func TestMintUnknownUserAndCourse(t *testing.T) {
	badges, courses, users, tokens := newBadgeFixture("Intro to Wellness")
	svc := newTestBadgeService(badges, courses, users, tokens)

	_, err := svc.Mint(context.Background(), MintRequest{UserID: "ghost", CourseID: "course-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSubjectNotFound))

	_, err = svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "ghost"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCourseNotFound))
}

func TestMintAdvisoryDuplicateShortCircuits(t *testing.T) {
	badges, courses, users, tokens := newBadgeFixture("Intro to Wellness")
	svc := newTestBadgeService(badges, courses, users, tokens)

	_, err := svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)

	_, err = svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateBadge))
	// The advisory check caught it before a second ledger mint.
	assert.Len(t, tokens.mints, 1)
}

func TestMintDuplicateRaceLosesToUniqueIndex(t *testing.T) {
	badges, courses, users, tokens := newBadgeFixture("Intro to Wellness")
	svc := newTestBadgeService(badges, courses, users, tokens)

	// Simulate a concurrent winner landing between the advisory check and
	// the insert: the advisory read sees nothing, the insert hits the
	// unique index.
	svc.badges = &racingBadgeRepo{inner: badges}

	_, err := svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateBadge))
	// The orphaned token unit was minted before the insert lost.
	assert.Len(t, tokens.mints, 1)
}

// racingBadgeRepo reports no existing badge on the advisory read but rejects
// the insert, mimicking a concurrent mint winning the unique index.
type racingBadgeRepo struct {
	inner *fakeBadgeRepo
}

func (r *racingBadgeRepo) Create(ctx context.Context, badge *models.Badge) error {
	return fmt.Errorf("create badge: %w", repository.ErrDuplicateKey)
}

func (r *racingBadgeRepo) FindBySubjectAndCourse(ctx context.Context, subjectID, courseID string) (*models.Badge, error) {
	return nil, sql.ErrNoRows
}

func (r *racingBadgeRepo) FindByTransaction(ctx context.Context, transactionID string) (*models.BadgeDetail, error) {
	return r.inner.FindByTransaction(ctx, transactionID)
}

func (r *racingBadgeRepo) ListForSubject(ctx context.Context, subjectID string) ([]models.BadgeDetail, error) {
	return r.inner.ListForSubject(ctx, subjectID)
}

func (r *racingBadgeRepo) CreateClaim(ctx context.Context, claim *models.BadgeClaim) error {
	return r.inner.CreateClaim(ctx, claim)
}

func (r *racingBadgeRepo) MarkClaimed(ctx context.Context, subjectID, badgeID string) (*models.BadgeClaim, error) {
	return r.inner.MarkClaimed(ctx, subjectID, badgeID)
}

func TestMintMetadataFallsBackForLongTitles(t *testing.T) {
	longTitle := strings.Repeat("Advanced Clinical Informatics ", 20)
	badges, courses, users, tokens := newBadgeFixture(longTitle)
	svc := newTestBadgeService(badges, courses, users, tokens)

	_, err := svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)

	require.Len(t, tokens.mints, 1)
	metadata := tokens.mints[0]
	assert.LessOrEqual(t, len(metadata), DefaultMetadataMaxBytes)
	// Minimal form is the truncated title, not JSON.
	assert.Equal(t, longTitle[:DefaultMetadataMaxBytes], string(metadata))
}

func TestMintMetadataTruncatesOnRuneBoundary(t *testing.T) {
	title := strings.Repeat("é", 80) // 160 bytes of two-byte runes
	badges, courses, users, tokens := newBadgeFixture(title)
	svc := newTestBadgeService(badges, courses, users, tokens)

	_, err := svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)

	require.Len(t, tokens.mints, 1)
	metadata := string(tokens.mints[0])
	assert.LessOrEqual(t, len(metadata), DefaultMetadataMaxBytes)
	for _, r := range metadata {
		assert.NotEqual(t, '�', r)
	}
}

func TestMintLedgerFailure(t *testing.T) {
	badges, courses, users, tokens := newBadgeFixture("Intro to Wellness")
	tokens.failMint = true
	svc := newTestBadgeService(badges, courses, users, tokens)

	_, err := svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAdapterFailure))
	assert.Empty(t, badges.badges)
}

func TestVerifyByTransaction(t *testing.T) {
	badges, courses, users, tokens := newBadgeFixture("Intro to Wellness")
	svc := newTestBadgeService(badges, courses, users, tokens)

	badge, err := svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)

	result, err := svc.Verify(context.Background(), badge.TransactionID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.NotNil(t, result.Badge)
	assert.Equal(t, badge.ID, result.Badge.ID)

	result, err = svc.Verify(context.Background(), "0.0.9999@0.0")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Nil(t, result.Badge)
}

func TestVerifyCrossChecksLedgerCollection(t *testing.T) {
	badges, courses, users, tokens := newBadgeFixture("Intro to Wellness")
	svc := newTestBadgeService(badges, courses, users, tokens)

	badge, err := svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)

	// An unreadable collection verifies as invalid, not as an error.
	tokens.failInfo = true
	result, err := svc.Verify(context.Background(), badge.TransactionID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotNil(t, result.Badge)

	// So does a supply that no longer covers the badge's serial.
	tokens.failInfo = false
	tokens.mints = nil
	result, err = svc.Verify(context.Background(), badge.TransactionID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestClaimTransitionsExactlyOnce(t *testing.T) {
	badges, courses, users, tokens := newBadgeFixture("Intro to Wellness")
	svc := newTestBadgeService(badges, courses, users, tokens)

	badge, err := svc.Mint(context.Background(), MintRequest{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)

	claim, err := svc.Claim(context.Background(), "user-1", badge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimStatusClaimed, claim.Status)
	require.NotNil(t, claim.ClaimedAt)

	_, err = svc.Claim(context.Background(), "user-1", badge.ID)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}
