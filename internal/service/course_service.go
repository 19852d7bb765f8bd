package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.Course, error)
	AddTeacher(ctx context.Context, courseID, teacherID string) error
	RemoveTeacher(ctx context.Context, courseID, teacherID string) (bool, error)
	AddStudent(ctx context.Context, courseID, studentID string) error
}

type sectionMembership interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
	IsEnrolled(ctx context.Context, sectionID, studentID string) (bool, error)
}

// CourseService manages courses and their teacher and student rosters.
type CourseService struct {
	repo      courseRepository
	sections  sectionMembership
	users     userLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, sections sectionMembership, users userLookup, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, sections: sections, users: users, validator: validate, logger: logger}
}

// Create stores a course under an existing section.
func (s *CourseService) Create(ctx context.Context, req models.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	teacherIDs := make([]string, 0, len(req.TeacherIDs))
	seen := make(map[string]struct{}, len(req.TeacherIDs))
	for _, id := range req.TeacherIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, err := s.requireRole(ctx, id, models.RoleTeacher); err != nil {
			return nil, err
		}
		teacherIDs = append(teacherIDs, id)
	}

	course := &models.Course{
		InstitutionID: section.InstitutionID,
		SectionID:     section.ID,
		Name:          strings.TrimSpace(req.Name),
		Code:          strings.ToUpper(strings.TrimSpace(req.Code)),
		TeacherIDs:    teacherIDs,
		StudentIDs:    []string{},
	}
	if err := s.repo.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already used in section")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Get returns a course with its rosters.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// ListBySection returns the courses of a section.
func (s *CourseService) ListBySection(ctx context.Context, sectionID string) ([]models.Course, error) {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	courses, err := s.repo.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// AddTeacher puts a teacher on the course roster. Adding twice is a no-op.
func (s *CourseService) AddTeacher(ctx context.Context, courseID string, req models.CourseMemberRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	teacher, err := s.requireRole(ctx, req.UserID, models.RoleTeacher)
	if err != nil {
		return nil, err
	}
	if teacher.InstitutionID != course.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher belongs to another institution")
	}
	if err := s.repo.AddTeacher(ctx, courseID, teacher.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add teacher")
	}
	return s.Get(ctx, courseID)
}

// RemoveTeacher takes a teacher off the roster. Existing timetable slots are kept.
func (s *CourseService) RemoveTeacher(ctx context.Context, courseID, teacherID string) error {
	if _, err := s.Get(ctx, courseID); err != nil {
		return err
	}
	removed, err := s.repo.RemoveTeacher(ctx, courseID, teacherID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove teacher")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher is not assigned to course")
	}
	return nil
}

// AddStudent puts a student enrolled in the course's section on the roster.
func (s *CourseService) AddStudent(ctx context.Context, courseID string, req models.CourseMemberRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	studentUser, err := s.requireRole(ctx, req.UserID, models.RoleStudent)
	if err != nil {
		return nil, err
	}
	enrolled, err := s.sections.IsEnrolled(ctx, course.SectionID, studentUser.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrolment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in the course's section")
	}
	if err := s.repo.AddStudent(ctx, courseID, studentUser.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add student")
	}
	return s.Get(ctx, courseID)
}

func (s *CourseService) requireRole(ctx context.Context, userID string, role models.UserRole) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, strings.ToLower(string(role))+" not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Role != role {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a "+strings.ToLower(string(role)))
	}
	return user, nil
}
