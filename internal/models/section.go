package models

import "time"

// Section is one class cohort with a fixed capacity and an active session window.
type Section struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	Name          string    `db:"name" json:"name"`
	Capacity      int       `db:"capacity" json:"capacity"`
	SessionStart  time.Time `db:"session_start" json:"session_start"`
	SessionEnd    time.Time `db:"session_end" json:"session_end"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	EnrolledCount int       `db:"enrolled_count" json:"enrolled_count"`
	StudentIDs    []string  `db:"-" json:"student_ids,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ActiveAt reports whether now falls inside the session window, bounds included.
func (s *Section) ActiveAt(now time.Time) bool {
	return !now.Before(s.SessionStart) && !now.After(s.SessionEnd)
}

// HasSeat reports whether another student fits.
func (s *Section) HasSeat() bool {
	return s.EnrolledCount < s.Capacity
}

// SectionFilter describes query params for listing sections.
type SectionFilter struct {
	InstitutionID string
	Active        *bool
	Search        string
	Page          int
	PageSize      int
}

// CreateSectionRequest is the payload for creating a section.
type CreateSectionRequest struct {
	Name         string    `json:"name" validate:"required,max=120"`
	Capacity     int       `json:"capacity" validate:"required,min=1,max=1000"`
	SessionStart time.Time `json:"session_start" validate:"required"`
	SessionEnd   time.Time `json:"session_end" validate:"required,gtfield=SessionStart"`
}

// EnrollStudentRequest adds a student to a section.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// SectionEnrollment links a student to a section.
type SectionEnrollment struct {
	SectionID  string    `db:"section_id" json:"section_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// SessionSweepResult summarises one pass of the activity sweep.
type SessionSweepResult struct {
	Activated   int       `json:"activated"`
	Deactivated int       `json:"deactivated"`
	RanAt       time.Time `json:"ran_at"`
}
