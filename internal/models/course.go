package models

import "time"

// Course belongs to a section and lists who teaches and who attends it.
type Course struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	SectionID     string    `db:"section_id" json:"section_id"`
	Name          string    `db:"name" json:"name"`
	Code          string    `db:"code" json:"code"`
	TeacherIDs    []string  `db:"-" json:"teacher_ids"`
	StudentIDs    []string  `db:"-" json:"student_ids"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// HasTeacher reports whether teacherID is on the course's teacher list.
func (c *Course) HasTeacher(teacherID string) bool {
	return containsID(c.TeacherIDs, teacherID)
}

// HasStudent reports whether studentID is on the course's student list.
func (c *Course) HasStudent(studentID string) bool {
	return containsID(c.StudentIDs, studentID)
}

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	SectionID  string   `json:"section_id" validate:"required"`
	Name       string   `json:"name" validate:"required,max=120"`
	Code       string   `json:"code" validate:"required,max=32"`
	TeacherIDs []string `json:"teacher_ids" validate:"omitempty,dive,required"`
}

// CourseMemberRequest adds a teacher or a student to a course.
type CourseMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
