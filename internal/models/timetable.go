package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Grid shape bounds. Indices inside a grid are zero based.
const (
	MinDays          = 1
	MaxDays          = 7
	MinPeriodsPerDay = 1
	MaxPeriodsPerDay = 12
)

var (
	// ErrInvalidDimensions marks days or periods outside the allowed bounds.
	ErrInvalidDimensions = errors.New("invalid timetable dimensions")
	// ErrSlotOutOfRange marks a day or period index outside the grid.
	ErrSlotOutOfRange = errors.New("slot out of range")
)

// Timetable is the weekly grid for a single section.
type Timetable struct {
	ID            string          `db:"id" json:"id"`
	SectionID     string          `db:"section_id" json:"section_id"`
	Days          int             `db:"days" json:"days"`
	PeriodsPerDay int             `db:"periods_per_day" json:"periods_per_day"`
	Slots         []TimetableSlot `db:"-" json:"slots"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// TimetableSlot is one (day, period) cell holding a course and teacher.
type TimetableSlot struct {
	TimetableID string    `db:"timetable_id" json:"timetable_id"`
	DayIndex    int       `db:"day_index" json:"day_index"`
	PeriodIndex int       `db:"period_index" json:"period_index"`
	CourseID    string    `db:"course_id" json:"course_id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherSlot is a slot joined with the section that owns its grid.
type TeacherSlot struct {
	TimetableSlot
	SectionID string `db:"section_id" json:"section_id"`
}

// ValidateDimensions checks a grid shape against the allowed bounds.
func ValidateDimensions(days, periodsPerDay int) error {
	if days < MinDays || days > MaxDays {
		return fmt.Errorf("%w: days must be between %d and %d, got %d", ErrInvalidDimensions, MinDays, MaxDays, days)
	}
	if periodsPerDay < MinPeriodsPerDay || periodsPerDay > MaxPeriodsPerDay {
		return fmt.Errorf("%w: periods_per_day must be between %d and %d, got %d", ErrInvalidDimensions, MinPeriodsPerDay, MaxPeriodsPerDay, periodsPerDay)
	}
	return nil
}

// InBounds reports whether (day, period) addresses a cell of the grid.
func (t *Timetable) InBounds(dayIndex, periodIndex int) bool {
	return dayIndex >= 0 && dayIndex < t.Days && periodIndex >= 0 && periodIndex < t.PeriodsPerDay
}

// CheckBounds returns ErrSlotOutOfRange with the offending coordinates.
func (t *Timetable) CheckBounds(dayIndex, periodIndex int) error {
	if t.InBounds(dayIndex, periodIndex) {
		return nil
	}
	return fmt.Errorf("%w: (%d, %d) outside %d days x %d periods", ErrSlotOutOfRange, dayIndex, periodIndex, t.Days, t.PeriodsPerDay)
}

// FindSlot returns the slot at (day, period) if one is assigned.
func (t *Timetable) FindSlot(dayIndex, periodIndex int) (*TimetableSlot, bool) {
	for i := range t.Slots {
		if t.Slots[i].DayIndex == dayIndex && t.Slots[i].PeriodIndex == periodIndex {
			return &t.Slots[i], true
		}
	}
	return nil, false
}

// Upsert places slot on the grid, replacing whatever occupied the cell.
// It returns the previous occupant, if any.
func (t *Timetable) Upsert(slot TimetableSlot) (*TimetableSlot, error) {
	if err := t.CheckBounds(slot.DayIndex, slot.PeriodIndex); err != nil {
		return nil, err
	}
	slot.TimetableID = t.ID
	if existing, ok := t.FindSlot(slot.DayIndex, slot.PeriodIndex); ok {
		previous := *existing
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = previous.CreatedAt
		}
		*existing = slot
		return &previous, nil
	}
	t.Slots = append(t.Slots, slot)
	t.sortSlots()
	return nil, nil
}

// Clear removes the slot at (day, period). Clearing an empty cell is a no-op.
func (t *Timetable) Clear(dayIndex, periodIndex int) (*TimetableSlot, bool) {
	for i := range t.Slots {
		if t.Slots[i].DayIndex == dayIndex && t.Slots[i].PeriodIndex == periodIndex {
			removed := t.Slots[i]
			t.Slots = append(t.Slots[:i], t.Slots[i+1:]...)
			return &removed, true
		}
	}
	return nil, false
}

// Resize returns a copy of the grid with the new shape and the slots that no longer fit.
// The receiver is left untouched.
func (t Timetable) Resize(days, periodsPerDay int) (Timetable, []TimetableSlot, error) {
	if err := ValidateDimensions(days, periodsPerDay); err != nil {
		return t, nil, err
	}

	resized := t
	resized.Days = days
	resized.PeriodsPerDay = periodsPerDay
	resized.Slots = make([]TimetableSlot, 0, len(t.Slots))

	var removed []TimetableSlot
	for _, slot := range t.Slots {
		if resized.InBounds(slot.DayIndex, slot.PeriodIndex) {
			resized.Slots = append(resized.Slots, slot)
			continue
		}
		removed = append(removed, slot)
	}
	return resized, removed, nil
}

// Capacity is the number of cells in the grid.
func (t *Timetable) Capacity() int {
	return t.Days * t.PeriodsPerDay
}

func (t *Timetable) sortSlots() {
	sort.SliceStable(t.Slots, func(i, j int) bool {
		if t.Slots[i].DayIndex != t.Slots[j].DayIndex {
			return t.Slots[i].DayIndex < t.Slots[j].DayIndex
		}
		return t.Slots[i].PeriodIndex < t.Slots[j].PeriodIndex
	})
}

// SlotConflict describes the booking that makes a teacher unavailable.
type SlotConflict struct {
	TeacherID   string `json:"teacher_id"`
	SectionID   string `json:"section_id"`
	GridID      string `json:"grid_id"`
	DayIndex    int    `json:"day_index"`
	PeriodIndex int    `json:"period_index"`
}

// AvailabilityResult is the answer to an availability query.
type AvailabilityResult struct {
	Available bool          `json:"available"`
	Conflict  *SlotConflict `json:"conflict,omitempty"`
}

// FirstConflict scans candidate bookings in order and returns the first one that
// belongs to a grid other than excludeGridID.
func FirstConflict(candidates []TeacherSlot, teacherID string, dayIndex, periodIndex int, excludeGridID string) *SlotConflict {
	for _, slot := range candidates {
		if slot.TeacherID != teacherID || slot.DayIndex != dayIndex || slot.PeriodIndex != periodIndex {
			continue
		}
		if excludeGridID != "" && slot.TimetableID == excludeGridID {
			continue
		}
		return &SlotConflict{
			TeacherID:   slot.TeacherID,
			SectionID:   slot.SectionID,
			GridID:      slot.TimetableID,
			DayIndex:    slot.DayIndex,
			PeriodIndex: slot.PeriodIndex,
		}
	}
	return nil
}

// CreateTimetableRequest is the payload for creating a grid.
type CreateTimetableRequest struct {
	SectionID     string `json:"section_id" validate:"required"`
	Days          int    `json:"days"`
	PeriodsPerDay int    `json:"periods_per_day"`
}

// AssignSlotRequest assigns a course and teacher to a cell.
type AssignSlotRequest struct {
	DayIndex    *int   `json:"day_index" validate:"required"`
	PeriodIndex *int   `json:"period_index" validate:"required"`
	CourseID    string `json:"course_id" validate:"required"`
	TeacherID   string `json:"teacher_id" validate:"required"`
}

// ResizeTimetableRequest changes the grid shape.
type ResizeTimetableRequest struct {
	Days          int `json:"days"`
	PeriodsPerDay int `json:"periods_per_day"`
}

// ResizeResult carries the resized grid and the slots the resize discarded.
type ResizeResult struct {
	Timetable    *Timetable      `json:"timetable"`
	RemovedSlots []TimetableSlot `json:"removed_slots"`
}

// AvailabilityQuery identifies the cell and teacher to check.
type AvailabilityQuery struct {
	TeacherID     string `form:"teacherId" validate:"required"`
	DayIndex      *int   `form:"dayIndex" validate:"required,min=0"`
	PeriodIndex   *int   `form:"periodIndex" validate:"required,min=0"`
	ExcludeGridID string `form:"excludeGridId"`
}
