package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-timetable-api/internal/models"
)

const (
	timetableColumns = `id, section_id, days, periods_per_day, created_at, updated_at`
	slotColumns      = `timetable_id, day_index, period_index, course_id, teacher_id, created_at, updated_at`
)

// TimetableRepository persists grids and their slots.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs a TimetableRepository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// Create inserts an empty grid. A second grid for the same section yields ErrDuplicate.
func (r *TimetableRepository) Create(ctx context.Context, timetable *models.Timetable) error {
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	const query = `INSERT INTO timetables (id, section_id, days, periods_per_day, created_at, updated_at)
VALUES (:id, :section_id, :days, :periods_per_day, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, timetable); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("create timetable: %w", ErrDuplicate)
		}
		return fmt.Errorf("create timetable: %w", err)
	}
	return nil
}

// FindByID loads a grid with its slots.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	return r.findOne(ctx, `SELECT `+timetableColumns+` FROM timetables WHERE id = $1`, id)
}

// FindBySection loads the grid that belongs to a section.
func (r *TimetableRepository) FindBySection(ctx context.Context, sectionID string) (*models.Timetable, error) {
	return r.findOne(ctx, `SELECT `+timetableColumns+` FROM timetables WHERE section_id = $1`, sectionID)
}

// ExistsForSection reports whether the section already has a grid.
func (r *TimetableRepository) ExistsForSection(ctx context.Context, sectionID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM timetables WHERE section_id = $1)`, sectionID); err != nil {
		return false, fmt.Errorf("check timetable for section: %w", err)
	}
	return exists, nil
}

func (r *TimetableRepository) findOne(ctx context.Context, query string, arg string) (*models.Timetable, error) {
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get timetable: %w", err)
	}
	slots, err := r.ListSlots(ctx, timetable.ID)
	if err != nil {
		return nil, err
	}
	timetable.Slots = slots
	return &timetable, nil
}

// ListSlots returns a grid's slots ordered by day then period.
func (r *TimetableRepository) ListSlots(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM timetable_slots WHERE timetable_id = $1 ORDER BY day_index ASC, period_index ASC`
	slots := []models.TimetableSlot{}
	if err := r.db.SelectContext(ctx, &slots, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return slots, nil
}

// UpsertSlot writes the cell, replacing any previous course and teacher.
func (r *TimetableRepository) UpsertSlot(ctx context.Context, slot *models.TimetableSlot) error {
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `
INSERT INTO timetable_slots (timetable_id, day_index, period_index, course_id, teacher_id, created_at, updated_at)
VALUES (:timetable_id, :day_index, :period_index, :course_id, :teacher_id, :created_at, :updated_at)
ON CONFLICT (timetable_id, day_index, period_index) DO UPDATE
SET course_id = EXCLUDED.course_id,
    teacher_id = EXCLUDED.teacher_id,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("upsert timetable slot: %w", err)
	}
	return r.touch(ctx, r.db, slot.TimetableID, now)
}

// DeleteSlot removes a cell and reports whether anything was there.
func (r *TimetableRepository) DeleteSlot(ctx context.Context, timetableID string, dayIndex, periodIndex int) (bool, error) {
	const query = `DELETE FROM timetable_slots WHERE timetable_id = $1 AND day_index = $2 AND period_index = $3`
	res, err := r.db.ExecContext(ctx, query, timetableID, dayIndex, periodIndex)
	if err != nil {
		return false, fmt.Errorf("delete timetable slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete timetable slot rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	return true, r.touch(ctx, r.db, timetableID, time.Now().UTC())
}

// Resize truncates slots outside the new shape and stores the new dimensions atomically.
func (r *TimetableRepository) Resize(ctx context.Context, timetableID string, days, periodsPerDay int) (removed int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin resize timetable: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM timetable_slots WHERE timetable_id = $1 AND (day_index >= $2 OR period_index >= $3)`, timetableID, days, periodsPerDay)
	if err != nil {
		return 0, fmt.Errorf("truncate timetable slots: %w", err)
	}
	if removed, err = res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("truncate timetable slots rows affected: %w", err)
	}

	res, err = tx.ExecContext(ctx, `UPDATE timetables SET days = $2, periods_per_day = $3, updated_at = $4 WHERE id = $1`, timetableID, days, periodsPerDay, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("update timetable dimensions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update timetable dimensions rows affected: %w", err)
	}
	if affected == 0 {
		return 0, sql.ErrNoRows
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit resize timetable: %w", err)
	}
	return removed, nil
}

// Delete removes a grid and, through the foreign key, its slots.
func (r *TimetableRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM timetables WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete timetable rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindTeacherBookings returns every slot, across all grids, that books the teacher at (day, period).
// Rows come back in grid creation order so the earliest booking is reported first.
func (r *TimetableRepository) FindTeacherBookings(ctx context.Context, teacherID string, dayIndex, periodIndex int) ([]models.TeacherSlot, error) {
	const query = `SELECT s.timetable_id, s.day_index, s.period_index, s.course_id, s.teacher_id, s.created_at, s.updated_at, t.section_id
FROM timetable_slots s
JOIN timetables t ON t.id = s.timetable_id
WHERE s.teacher_id = $1 AND s.day_index = $2 AND s.period_index = $3
ORDER BY t.created_at ASC, t.id ASC`
	var slots []models.TeacherSlot
	if err := r.db.SelectContext(ctx, &slots, query, teacherID, dayIndex, periodIndex); err != nil {
		return nil, fmt.Errorf("find teacher bookings: %w", err)
	}
	return slots, nil
}

// ListTeacherSlots returns a teacher's week across every grid.
func (r *TimetableRepository) ListTeacherSlots(ctx context.Context, teacherID string) ([]models.TeacherSlot, error) {
	const query = `SELECT s.timetable_id, s.day_index, s.period_index, s.course_id, s.teacher_id, s.created_at, s.updated_at, t.section_id
FROM timetable_slots s
JOIN timetables t ON t.id = s.timetable_id
WHERE s.teacher_id = $1
ORDER BY s.day_index ASC, s.period_index ASC, t.section_id ASC`
	slots := []models.TeacherSlot{}
	if err := r.db.SelectContext(ctx, &slots, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher slots: %w", err)
	}
	return slots, nil
}

func (r *TimetableRepository) touch(ctx context.Context, exec sqlx.ExecerContext, timetableID string, at time.Time) error {
	if _, err := exec.ExecContext(ctx, `UPDATE timetables SET updated_at = $2 WHERE id = $1`, timetableID, at); err != nil {
		return fmt.Errorf("touch timetable: %w", err)
	}
	return nil
}
