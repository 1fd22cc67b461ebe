package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vitalchain/vitalchain-api/internal/models"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	RecordCompletion(ctx context.Context, userID, courseID string) error
	HasCompleted(ctx context.Context, userID, courseID string) (bool, error)
}

// CreateCourseRequest is the payload for adding a catalog entry.
type CreateCourseRequest struct {
	Title            string `json:"title" validate:"required,max=200"`
	Description      string `json:"description" validate:"required"`
	Difficulty       string `json:"difficulty" validate:"required,oneof=Beginner Intermediate Advanced"`
	BadgeName        string `json:"badge_name" validate:"omitempty,max=200"`
	BadgeDescription string `json:"badge_description"`
	BadgeImageURL    string `json:"badge_image_url" validate:"omitempty,url"`
}

// CourseService manages the course catalog and completion registry.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns the course catalog.
func (s *CourseService) List(ctx context.Context) ([]models.Course, error) {
	courses, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a course to the catalog.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		Title:            req.Title,
		Description:      req.Description,
		Difficulty:       models.CourseDifficulty(req.Difficulty),
		BadgeName:        req.BadgeName,
		BadgeDescription: req.BadgeDescription,
		BadgeImageURL:    req.BadgeImageURL,
	}
	if course.BadgeName == "" {
		course.BadgeName = course.Title + " Badge"
	}

	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Complete registers that a user finished a course. Completing twice is a
// no-op; the completion registry feeds the badge mint precondition.
func (s *CourseService) Complete(ctx context.Context, userID, courseID string) error {
	if _, err := s.Get(ctx, courseID); err != nil {
		return err
	}
	if err := s.repo.RecordCompletion(ctx, userID, courseID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record completion")
	}
	return nil
}
