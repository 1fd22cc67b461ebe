package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vitalchain/vitalchain-api/internal/ledger"
	"github.com/vitalchain/vitalchain-api/internal/models"
	"github.com/vitalchain/vitalchain-api/internal/repository"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
	"github.com/vitalchain/vitalchain-api/pkg/export"
)

// DefaultMetadataMaxBytes is the on-ledger ceiling for a single NFT
// metadata blob.
const DefaultMetadataMaxBytes = 100

type badgeRepository interface {
	Create(ctx context.Context, badge *models.Badge) error
	FindBySubjectAndCourse(ctx context.Context, subjectID, courseID string) (*models.Badge, error)
	FindByTransaction(ctx context.Context, transactionID string) (*models.BadgeDetail, error)
	ListForSubject(ctx context.Context, subjectID string) ([]models.BadgeDetail, error)
	CreateClaim(ctx context.Context, claim *models.BadgeClaim) error
	MarkClaimed(ctx context.Context, subjectID, badgeID string) (*models.BadgeClaim, error)
}

type badgeCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	HasCompleted(ctx context.Context, userID, courseID string) (bool, error)
}

type badgeUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// MintRequest asks for a badge to be minted for a completed course.
type MintRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	CourseID string `json:"course_id" validate:"required"`
}

// VerificationResult reports whether a transaction corresponds to a badge
// minted by this service.
type VerificationResult struct {
	Valid bool                `json:"valid"`
	Badge *models.BadgeDetail `json:"badge,omitempty"`
}

// richMetadata is the preferred on-ledger metadata shape.
type richMetadata struct {
	Name   string `json:"name"`
	Course string `json:"course"`
	Issuer string `json:"issuer"`
}

// BadgeServiceConfig tunes badge minting.
type BadgeServiceConfig struct {
	CollectionID     string
	MetadataMaxBytes int
	Issuer           string
}

// BadgeService coordinates badge minting and claims. The document store's
// unique (subject, course) index is the authoritative duplicate guard; the
// pre-mint existence check is advisory only and fails open.
type BadgeService struct {
	badges    badgeRepository
	courses   badgeCourseRepository
	users     badgeUserRepository
	tokens    ledger.TokenAdapter
	renderer  *export.CertificateRenderer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    BadgeServiceConfig
}

// NewBadgeService constructs a BadgeService.
func NewBadgeService(
	badges badgeRepository,
	courses badgeCourseRepository,
	users badgeUserRepository,
	tokens ledger.TokenAdapter,
	renderer *export.CertificateRenderer,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	config BadgeServiceConfig,
) *BadgeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.MetadataMaxBytes <= 0 {
		config.MetadataMaxBytes = DefaultMetadataMaxBytes
	}
	if renderer == nil {
		renderer = export.NewCertificateRenderer()
	}
	return &BadgeService{
		badges:    badges,
		courses:   courses,
		users:     users,
		tokens:    tokens,
		renderer:  renderer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Mint issues the badge for a completed course. The ledger mint happens
// before persistence, so a lost duplicate race can orphan a token unit; that
// unit stays unreferenced and the caller gets the duplicate error.
func (s *BadgeService) Mint(ctx context.Context, req MintRequest) (*models.Badge, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mint payload")
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSubjectNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	completed, err := s.courses.HasCompleted(ctx, user.ID, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check completion")
	}
	if !completed {
		return nil, appErrors.Clone(appErrors.ErrCourseNotCompleted, "course has not been completed")
	}

	// Advisory fast path; the unique index below remains authoritative.
	if existing, err := s.badges.FindBySubjectAndCourse(ctx, user.ID, course.ID); err == nil && existing != nil {
		s.metrics.ObserveBadgeMint("duplicate")
		return nil, appErrors.Clone(appErrors.ErrDuplicateBadge, "badge already exists for this subject and course")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("advisory duplicate check failed", zap.Error(err))
	}

	// Advisory collection check; an unreachable ledger surfaces on the mint
	// itself.
	if _, err := s.tokens.CollectionInfo(ctx, s.config.CollectionID); err != nil {
		s.logger.Warn("collection info check failed", zap.String("collection_id", s.config.CollectionID), zap.Error(err))
	}

	metadata, err := s.buildMetadata(course)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(metadata)

	mint, err := s.tokens.Mint(ctx, s.config.CollectionID, metadata)
	if err != nil {
		s.metrics.ObserveBadgeMint("failed")
		return nil, appErrors.AdapterFailure("token mint", err)
	}

	badgeName := course.BadgeName
	if badgeName == "" {
		badgeName = course.Title + " Badge"
	}
	badge := &models.Badge{
		SubjectID:      user.ID,
		CourseID:       course.ID,
		Name:           badgeName,
		Description:    course.BadgeDescription,
		ImageURL:       course.BadgeImageURL,
		Criteria:       string(course.Difficulty),
		TokenID:        mint.TokenID,
		SerialNumber:   mint.SerialNumber,
		TransactionID:  mint.TransactionID,
		MetadataDigest: hex.EncodeToString(digest[:]),
	}

	if err := s.badges.Create(ctx, badge); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			s.metrics.ObserveBadgeMint("duplicate")
			s.logger.Warn("duplicate badge lost the mint race; token unit is orphaned",
				zap.String("subject_id", user.ID),
				zap.String("course_id", course.ID),
				zap.Int64("serial", mint.SerialNumber))
			return nil, appErrors.Clone(appErrors.ErrDuplicateBadge, "badge already exists for this subject and course")
		}
		s.metrics.ObserveBadgeMint("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist badge")
	}

	if err := s.badges.CreateClaim(ctx, &models.BadgeClaim{
		SubjectID: user.ID,
		BadgeID:   badge.ID,
		Status:    models.ClaimStatusEarned,
	}); err != nil {
		s.logger.Warn("failed to create badge claim", zap.String("badge_id", badge.ID), zap.Error(err))
	}

	s.metrics.ObserveBadgeMint("minted")
	s.logger.Info("badge minted",
		zap.String("subject_id", user.ID),
		zap.String("course_id", course.ID),
		zap.String("token_id", mint.TokenID),
		zap.Int64("serial", mint.SerialNumber))
	return badge, nil
}

// ListForUser returns a subject's badges with course display fields.
func (s *BadgeService) ListForUser(ctx context.Context, userID string) ([]models.BadgeDetail, error) {
	out, err := s.badges.ListForSubject(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list badges")
	}
	return out, nil
}

// GetByTransaction returns the badge minted under a ledger transaction.
func (s *BadgeService) GetByTransaction(ctx context.Context, transactionID string) (*models.BadgeDetail, error) {
	detail, err := s.badges.FindByTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrBadgeNotFound, "badge not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load badge")
	}
	return detail, nil
}

// Verify checks that a transaction corresponds to a badge minted into this
// service's collection, then cross-checks the ledger: the collection must
// still exist and its supply must cover the badge's serial. A badge whose
// token was deleted or wiped on the ledger verifies as invalid.
func (s *BadgeService) Verify(ctx context.Context, transactionID string) (*VerificationResult, error) {
	detail, err := s.badges.FindByTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &VerificationResult{Valid: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load badge")
	}

	if s.config.CollectionID != "" && detail.TokenID != s.config.CollectionID {
		return &VerificationResult{Valid: false, Badge: detail}, nil
	}

	info, err := s.tokens.CollectionInfo(ctx, detail.TokenID)
	if err != nil {
		s.logger.Warn("verification could not read token info",
			zap.String("token_id", detail.TokenID),
			zap.Error(err))
		return &VerificationResult{Valid: false, Badge: detail}, nil
	}

	valid := info.TotalSupply > 0 &&
		detail.SerialNumber >= 1 &&
		uint64(detail.SerialNumber) <= info.TotalSupply
	return &VerificationResult{Valid: valid, Badge: detail}, nil
}

// Claim transitions the subject's claim for a badge from EARNED to CLAIMED.
func (s *BadgeService) Claim(ctx context.Context, userID, badgeID string) (*models.BadgeClaim, error) {
	claim, err := s.badges.MarkClaimed(ctx, userID, badgeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "badge is already claimed or was never earned")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim badge")
	}
	return claim, nil
}

// Certificate renders a PDF certificate for a minted badge.
func (s *BadgeService) Certificate(ctx context.Context, transactionID string) ([]byte, error) {
	detail, err := s.GetByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	pdf, err := s.renderer.Render(export.Certificate{
		RecipientName: detail.SubjectName,
		CourseTitle:   detail.CourseTitle,
		Issuer:        s.config.Issuer,
		TokenID:       detail.TokenID,
		SerialNumber:  detail.SerialNumber,
		TransactionID: detail.TransactionID,
		IssuedAt:      detail.CreatedAt,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	return pdf, nil
}

// buildMetadata produces the on-ledger metadata blob. The rich shape is
// preferred; when it exceeds the ceiling the minimal fallback carries just
// the course title, truncated on a rune boundary. Only when even that cannot
// fit does the mint fail.
func (s *BadgeService) buildMetadata(course *models.Course) ([]byte, error) {
	max := s.config.MetadataMaxBytes

	name := course.BadgeName
	if name == "" {
		name = course.Title + " Badge"
	}
	rich, err := json.Marshal(richMetadata{
		Name:   name,
		Course: course.Title,
		Issuer: s.config.Issuer,
	})
	if err == nil && len(rich) <= max {
		return rich, nil
	}

	minimal := truncateUTF8(course.Title, max)
	if len(minimal) == 0 || len(minimal) > max {
		return nil, appErrors.Clone(appErrors.ErrMetadataTooLarge, "badge metadata exceeds ledger size limit")
	}
	s.logger.Warn("badge metadata fell back to minimal form",
		zap.String("course_id", course.ID),
		zap.Int("rich_bytes", len(rich)),
		zap.Int("limit", max))
	return []byte(minimal), nil
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
