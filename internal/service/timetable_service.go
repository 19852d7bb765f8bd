package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/internal/repository"
	"github.com/noah-isme/school-timetable-api/pkg/clock"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
)

type timetableRepository interface {
	Create(ctx context.Context, timetable *models.Timetable) error
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	FindBySection(ctx context.Context, sectionID string) (*models.Timetable, error)
	ExistsForSection(ctx context.Context, sectionID string) (bool, error)
	UpsertSlot(ctx context.Context, slot *models.TimetableSlot) error
	DeleteSlot(ctx context.Context, timetableID string, dayIndex, periodIndex int) (bool, error)
	Resize(ctx context.Context, timetableID string, days, periodsPerDay int) (int64, error)
	Delete(ctx context.Context, id string) (bool, error)
	FindTeacherBookings(ctx context.Context, teacherID string, dayIndex, periodIndex int) ([]models.TeacherSlot, error)
	ListTeacherSlots(ctx context.Context, teacherID string) ([]models.TeacherSlot, error)
}

type sectionGetter interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type courseGetter interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// TimetableService owns the per-section weekly grids and teacher double-booking checks.
//
// Availability is checked and the slot written as two separate steps, so two concurrent
// assignments of one teacher to the same cell in different grids can both succeed.
type TimetableService struct {
	repo      timetableRepository
	sections  sectionGetter
	courses   courseGetter
	users     userLookup
	cache     *CacheService
	metrics   *MetricsService
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
	clock     clock.Clock
}

// TimetableServiceDeps groups the collaborators of TimetableService.
type TimetableServiceDeps struct {
	Repo      timetableRepository
	Sections  sectionGetter
	Courses   courseGetter
	Users     userLookup
	Cache     *CacheService
	Metrics   *MetricsService
	Notifier  Notifier
	Validator *validator.Validate
	Logger    *zap.Logger
	Clock     clock.Clock
}

// NewTimetableService constructs a TimetableService.
func NewTimetableService(deps TimetableServiceDeps) *TimetableService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TimetableService{
		repo:      deps.Repo,
		sections:  deps.Sections,
		courses:   deps.Courses,
		users:     deps.Users,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		notifier:  deps.Notifier,
		validator: deps.Validator,
		logger:    deps.Logger,
		clock:     clock.OrSystem(deps.Clock),
	}
}

func timetableGenerationKey(id string) string {
	return "timetable:gen:" + id
}

func timetableCacheKey(id, generation string) string {
	return "timetable:grid:" + id + ":" + generation
}

// CreateGrid creates an empty grid for a section that has none yet.
func (s *TimetableService) CreateGrid(ctx context.Context, req models.CreateTimetableRequest) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	if err := models.ValidateDimensions(req.Days, req.PeriodsPerDay); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	if _, err := s.sections.FindByID(ctx, req.SectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	exists, err := s.repo.ExistsForSection(ctx, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check timetable")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "section already has a timetable")
	}

	now := s.clock.Now()
	timetable := &models.Timetable{
		SectionID:     req.SectionID,
		Days:          req.Days,
		PeriodsPerDay: req.PeriodsPerDay,
		Slots:         []models.TimetableSlot{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, timetable); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "section already has a timetable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
	}

	s.logger.Info("timetable created",
		zap.String("timetable_id", timetable.ID),
		zap.String("section_id", timetable.SectionID),
		zap.Int("days", timetable.Days),
		zap.Int("periods_per_day", timetable.PeriodsPerDay),
	)
	return timetable, nil
}

// GetGrid returns a grid with its slots, served from cache when enabled.
func (s *TimetableService) GetGrid(ctx context.Context, id string) (*models.Timetable, error) {
	generation, cacheable := s.cacheGeneration(ctx, id)
	if cacheable {
		var cached models.Timetable
		hit, err := s.cache.Get(ctx, timetableCacheKey(id, generation), &cached)
		if err != nil {
			s.logger.Warn("timetable cache read failed", zap.String("timetable_id", id), zap.Error(err))
		}
		if hit {
			return &cached, nil
		}
	}

	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cacheable {
		// Stored under the generation read before loading; a write that committed meanwhile
		// has already moved readers to a newer generation.
		if err := s.cache.Set(ctx, timetableCacheKey(id, generation), timetable, 0); err != nil {
			s.logger.Warn("timetable cache write failed", zap.String("timetable_id", id), zap.Error(err))
		}
	}
	return timetable, nil
}

// GetBySection returns the grid owned by a section.
func (s *TimetableService) GetBySection(ctx context.Context, sectionID string) (*models.Timetable, error) {
	timetable, err := s.repo.FindBySection(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found for section")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return timetable, nil
}

// ListTeacherSlots returns a teacher's bookings across every grid.
func (s *TimetableService) ListTeacherSlots(ctx context.Context, teacherID string) ([]models.TeacherSlot, error) {
	if _, err := s.teacher(ctx, teacherID); err != nil {
		return nil, err
	}
	slots, err := s.repo.ListTeacherSlots(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher timetable")
	}
	return slots, nil
}

// AssignSlot books a course and teacher into a cell, replacing any previous occupant.
func (s *TimetableService) AssignSlot(ctx context.Context, gridID string, req models.AssignSlotRequest) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	day, period := *req.DayIndex, *req.PeriodIndex

	timetable, err := s.load(ctx, gridID)
	if err != nil {
		return nil, err
	}
	if err := timetable.CheckBounds(day, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrOutOfRange.Code, appErrors.ErrOutOfRange.Status, err.Error())
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.SectionID != timetable.SectionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course belongs to another section")
	}
	if _, err := s.teacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}
	if !course.HasTeacher(req.TeacherID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is not assigned to the course")
	}

	if err := s.ensureTeacherFree(ctx, req.TeacherID, day, period, timetable.ID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	slot := models.TimetableSlot{
		TimetableID: timetable.ID,
		DayIndex:    day,
		PeriodIndex: period,
		CourseID:    course.ID,
		TeacherID:   req.TeacherID,
		UpdatedAt:   now,
	}
	previous, err := timetable.Upsert(slot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrOutOfRange.Code, appErrors.ErrOutOfRange.Status, err.Error())
	}
	stored, _ := timetable.FindSlot(day, period)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if err := s.repo.UpsertSlot(ctx, stored); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save slot")
	}
	timetable.UpdatedAt = now

	s.metrics.RecordSlotAssignment()
	s.invalidate(ctx, timetable.ID)

	recipients := []string{req.TeacherID}
	if previous != nil && previous.TeacherID != req.TeacherID {
		recipients = append(recipients, previous.TeacherID)
	}
	s.notify(ctx, models.NotificationMessage{
		Recipients: recipients,
		Type:       models.NotificationTimetableUpdated,
		Title:      "Timetable updated",
		Body:       fmt.Sprintf("Day %d, period %d now holds %s.", day+1, period+1, course.Name),
		Data:       slotData(timetable, day, period),
	})

	return timetable, nil
}

// ClearSlot empties a cell. Clearing an empty or out-of-grid cell is a no-op.
func (s *TimetableService) ClearSlot(ctx context.Context, gridID string, dayIndex, periodIndex int) (*models.Timetable, error) {
	timetable, err := s.load(ctx, gridID)
	if err != nil {
		return nil, err
	}

	removed, ok := timetable.Clear(dayIndex, periodIndex)
	if !ok {
		return timetable, nil
	}
	if _, err := s.repo.DeleteSlot(ctx, timetable.ID, dayIndex, periodIndex); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear slot")
	}
	timetable.UpdatedAt = s.clock.Now()

	s.invalidate(ctx, timetable.ID)
	s.notify(ctx, models.NotificationMessage{
		Recipients: []string{removed.TeacherID},
		Type:       models.NotificationTimetableUpdated,
		Title:      "Timetable updated",
		Body:       fmt.Sprintf("Day %d, period %d was cleared.", dayIndex+1, periodIndex+1),
		Data:       slotData(timetable, dayIndex, periodIndex),
	})
	return timetable, nil
}

// ResizeGrid changes the grid shape, discarding every slot that falls outside it.
func (s *TimetableService) ResizeGrid(ctx context.Context, gridID string, req models.ResizeTimetableRequest) (*models.ResizeResult, error) {
	if err := models.ValidateDimensions(req.Days, req.PeriodsPerDay); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	current, err := s.load(ctx, gridID)
	if err != nil {
		return nil, err
	}

	resized, removed, err := current.Resize(req.Days, req.PeriodsPerDay)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	deleted, err := s.repo.Resize(ctx, current.ID, req.Days, req.PeriodsPerDay)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resize timetable")
	}
	resized.UpdatedAt = s.clock.Now()
	if removed == nil {
		removed = []models.TimetableSlot{}
	}

	if len(removed) > 0 {
		s.logger.Warn("timetable resize discarded slots",
			zap.String("timetable_id", current.ID),
			zap.String("section_id", current.SectionID),
			zap.Int("from_days", current.Days),
			zap.Int("from_periods", current.PeriodsPerDay),
			zap.Int("to_days", resized.Days),
			zap.Int("to_periods", resized.PeriodsPerDay),
			zap.Any("removed_slots", removed),
		)
	}
	if deleted != int64(len(removed)) {
		s.logger.Warn("timetable changed during resize",
			zap.String("timetable_id", current.ID),
			zap.Int("expected_removed", len(removed)),
			zap.Int64("deleted", deleted),
		)
	}

	s.metrics.RecordSlotsTruncated(len(removed))
	s.invalidate(ctx, current.ID)

	if len(removed) > 0 {
		teachers := make([]string, 0, len(removed))
		for _, slot := range removed {
			teachers = append(teachers, slot.TeacherID)
		}
		s.notify(ctx, models.NotificationMessage{
			Recipients: teachers,
			Type:       models.NotificationSlotsRemoved,
			Title:      "Timetable slots removed",
			Body:       fmt.Sprintf("The timetable was resized to %d days x %d periods and some of your lessons were removed.", resized.Days, resized.PeriodsPerDay),
			Data:       map[string]string{"timetable_id": current.ID, "section_id": current.SectionID},
		})
	}

	return &models.ResizeResult{Timetable: &resized, RemovedSlots: removed}, nil
}

// CheckAvailability reports whether the teacher is free at (day, period) outside the excluded grid.
func (s *TimetableService) CheckAvailability(ctx context.Context, query models.AvailabilityQuery) (*models.AvailabilityResult, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability query")
	}
	conflict, err := s.findConflict(ctx, query.TeacherID, *query.DayIndex, *query.PeriodIndex, query.ExcludeGridID)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return &models.AvailabilityResult{Available: false, Conflict: conflict}, nil
	}
	return &models.AvailabilityResult{Available: true}, nil
}

// DeleteGrid removes a grid and all of its slots.
func (s *TimetableService) DeleteGrid(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	s.invalidate(ctx, id)
	s.logger.Info("timetable deleted", zap.String("timetable_id", id))
	return nil
}

func (s *TimetableService) ensureTeacherFree(ctx context.Context, teacherID string, dayIndex, periodIndex int, gridID string) error {
	conflict, err := s.findConflict(ctx, teacherID, dayIndex, periodIndex, gridID)
	if err != nil {
		return err
	}
	if conflict == nil {
		return nil
	}
	s.metrics.RecordSlotConflict()
	s.logger.Info("teacher double booking rejected",
		zap.String("teacher_id", teacherID),
		zap.String("grid_id", gridID),
		zap.String("conflict_grid_id", conflict.GridID),
		zap.Int("day_index", dayIndex),
		zap.Int("period_index", periodIndex),
	)
	return appErrors.WithDetails(appErrors.ErrTeacherUnavailable, "", conflict)
}

func (s *TimetableService) findConflict(ctx context.Context, teacherID string, dayIndex, periodIndex int, excludeGridID string) (*models.SlotConflict, error) {
	bookings, err := s.repo.FindTeacherBookings(ctx, teacherID, dayIndex, periodIndex)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher availability")
	}
	return models.FirstConflict(bookings, teacherID, dayIndex, periodIndex, excludeGridID), nil
}

func (s *TimetableService) load(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if timetable.Slots == nil {
		timetable.Slots = []models.TimetableSlot{}
	}
	return timetable, nil
}

func (s *TimetableService) teacher(ctx context.Context, teacherID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if user.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return user, nil
}

// cacheGeneration returns the grid's current cache generation, starting one if none exists.
func (s *TimetableService) cacheGeneration(ctx context.Context, id string) (string, bool) {
	if !s.cache.Enabled() {
		return "", false
	}
	var generation string
	hit, err := s.cache.Get(ctx, timetableGenerationKey(id), &generation)
	if err != nil {
		s.logger.Warn("timetable cache generation unavailable", zap.String("timetable_id", id), zap.Error(err))
		return "", false
	}
	if hit && generation != "" {
		return generation, true
	}
	generation = uuid.NewString()
	if err := s.cache.Set(ctx, timetableGenerationKey(id), generation, 0); err != nil {
		s.logger.Warn("timetable cache generation not stored", zap.String("timetable_id", id), zap.Error(err))
		return "", false
	}
	return generation, true
}

// invalidate moves the grid to a fresh cache generation after a committed write.
func (s *TimetableService) invalidate(ctx context.Context, id string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, timetableGenerationKey(id), uuid.NewString(), 0); err != nil {
		s.logger.Warn("timetable cache generation not bumped", zap.String("timetable_id", id), zap.Error(err))
		if err := s.cache.Evict(ctx, timetableGenerationKey(id)); err != nil {
			s.logger.Error("timetable cache may serve a stale grid", zap.String("timetable_id", id), zap.Error(err))
		}
	}
}

func (s *TimetableService) notify(ctx context.Context, msg models.NotificationMessage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, msg); err != nil {
		s.logger.Warn("failed to publish notification", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}

func slotData(t *models.Timetable, dayIndex, periodIndex int) map[string]string {
	return map[string]string{
		"timetable_id": t.ID,
		"section_id":   t.SectionID,
		"day_index":    strconv.Itoa(dayIndex),
		"period_index": strconv.Itoa(periodIndex),
	}
}
