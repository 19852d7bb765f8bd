package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/internal/repository"
	"github.com/noah-isme/school-timetable-api/pkg/clock"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
)

type sectionRepository interface {
	Create(ctx context.Context, section *models.Section) error
	FindByID(ctx context.Context, id string) (*models.Section, error)
	List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error)
	ListStudentIDs(ctx context.Context, sectionID string) ([]string, error)
	Enroll(ctx context.Context, sectionID, studentID string, enrolledAt time.Time) error
	Unenroll(ctx context.Context, sectionID, studentID string) (bool, error)
	SyncActivity(ctx context.Context, now time.Time) (activated, deactivated []string, err error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// SectionService manages sections, enrolment and the session activity flag.
type SectionService struct {
	repo      sectionRepository
	users     userLookup
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
	clock     clock.Clock
}

// NewSectionService constructs a SectionService.
func NewSectionService(repo sectionRepository, users userLookup, notifier Notifier, validate *validator.Validate, logger *zap.Logger, clk clock.Clock) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, users: users, notifier: notifier, validator: validate, logger: logger, clock: clock.OrSystem(clk)}
}

// Create validates and stores a section for institutionID.
func (s *SectionService) Create(ctx context.Context, institutionID string, req models.CreateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	section := &models.Section{
		InstitutionID: institutionID,
		Name:          strings.TrimSpace(req.Name),
		Capacity:      req.Capacity,
		SessionStart:  req.SessionStart.UTC(),
		SessionEnd:    req.SessionEnd.UTC(),
	}
	section.IsActive = section.ActiveAt(s.clock.Now())

	if err := s.repo.Create(ctx, section); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "section name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	return section, nil
}

// Get returns a section with its enrolled student ids.
func (s *SectionService) Get(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	ids, err := s.repo.ListStudentIDs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolment")
	}
	section.StudentIDs = ids
	return section, nil
}

// List returns paginated sections.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Enroll adds a student to the section while seats remain.
func (s *SectionService) Enroll(ctx context.Context, sectionID string, req models.EnrollStudentRequest) (*models.SectionEnrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrolment payload")
	}

	section, err := s.find(ctx, sectionID)
	if err != nil {
		return nil, err
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	if student.InstitutionID != section.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student belongs to another institution")
	}

	enrolledAt := s.clock.Now()
	if err := s.repo.Enroll(ctx, sectionID, student.ID, enrolledAt); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyEnrolled):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled")
		case errors.Is(err, repository.ErrSectionFull):
			return nil, appErrors.Clone(appErrors.ErrConflict, "section is at capacity")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enrol student")
	}

	s.notify(ctx, models.NotificationMessage{
		Recipients: []string{student.ID},
		Type:       models.NotificationEnrolled,
		Title:      "Enrolled in " + section.Name,
		Body:       "You have been added to section " + section.Name + ".",
		Data:       map[string]string{"section_id": section.ID},
	})

	return &models.SectionEnrollment{SectionID: sectionID, StudentID: student.ID, EnrolledAt: enrolledAt}, nil
}

// Unenroll removes a student from the section.
func (s *SectionService) Unenroll(ctx context.Context, sectionID, studentID string) error {
	if _, err := s.find(ctx, sectionID); err != nil {
		return err
	}
	removed, err := s.repo.Unenroll(ctx, sectionID, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenrol student")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in section")
	}
	return nil
}

// SweepSessions aligns is_active with each section's session window.
func (s *SectionService) SweepSessions(ctx context.Context) (*models.SessionSweepResult, error) {
	now := s.clock.Now()
	activated, deactivated, err := s.repo.SyncActivity(ctx, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep sections")
	}
	result := &models.SessionSweepResult{Activated: len(activated), Deactivated: len(deactivated), RanAt: now}
	if result.Activated+result.Deactivated > 0 {
		s.logger.Info("section activity updated",
			zap.Strings("activated", activated),
			zap.Strings("deactivated", deactivated),
		)
	}
	return result, nil
}

func (s *SectionService) find(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

func (s *SectionService) notify(ctx context.Context, msg models.NotificationMessage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, msg); err != nil {
		s.logger.Warn("failed to publish notification", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}
