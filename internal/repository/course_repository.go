package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-timetable-api/internal/models"
)

const courseSelect = `SELECT c.id, c.institution_id, c.section_id, c.name, c.code, c.created_at, c.updated_at,
ARRAY(SELECT ct.teacher_id FROM course_teachers ct WHERE ct.course_id = c.id ORDER BY ct.teacher_id) AS teacher_ids,
ARRAY(SELECT cs.student_id FROM course_students cs WHERE cs.course_id = c.id ORDER BY cs.student_id) AS student_ids
FROM courses c`

type courseRow struct {
	models.Course
	TeacherIDs pq.StringArray `db:"teacher_ids"`
	StudentIDs pq.StringArray `db:"student_ids"`
}

func (row courseRow) toModel() models.Course {
	course := row.Course
	course.TeacherIDs = append([]string{}, row.TeacherIDs...)
	course.StudentIDs = append([]string{}, row.StudentIDs...)
	return course
}

// CourseRepository manages courses and their teacher and student lists.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts a course and its initial teachers in one transaction.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) (err error) {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create course: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO courses (id, institution_id, section_id, name, code, created_at, updated_at)
VALUES (:id, :institution_id, :section_id, :name, :code, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, query, course); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("create course: %w", ErrDuplicate)
		}
		return fmt.Errorf("create course: %w", err)
	}

	for _, teacherID := range course.TeacherIDs {
		if err = r.addMember(ctx, tx, "course_teachers", "teacher_id", course.ID, teacherID); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create course: %w", err)
	}
	return nil
}

// FindByID returns a course with its member lists.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var row courseRow
	if err := r.db.GetContext(ctx, &row, courseSelect+` WHERE c.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	course := row.toModel()
	return &course, nil
}

// ListBySection returns every course attached to a section ordered by code.
func (r *CourseRepository) ListBySection(ctx context.Context, sectionID string) ([]models.Course, error) {
	var rows []courseRow
	if err := r.db.SelectContext(ctx, &rows, courseSelect+` WHERE c.section_id = $1 ORDER BY c.code ASC`, sectionID); err != nil {
		return nil, fmt.Errorf("list courses by section: %w", err)
	}
	courses := make([]models.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toModel())
	}
	return courses, nil
}

// FindByIDs loads several courses at once. Unknown ids are skipped.
func (r *CourseRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []courseRow
	if err := r.db.SelectContext(ctx, &rows, courseSelect+` WHERE c.id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find courses by ids: %w", err)
	}
	courses := make([]models.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toModel())
	}
	return courses, nil
}

// AddTeacher links a teacher to a course. Adding twice is harmless.
func (r *CourseRepository) AddTeacher(ctx context.Context, courseID, teacherID string) error {
	return r.addMember(ctx, r.db, "course_teachers", "teacher_id", courseID, teacherID)
}

// RemoveTeacher unlinks a teacher and reports whether a row was removed.
func (r *CourseRepository) RemoveTeacher(ctx context.Context, courseID, teacherID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM course_teachers WHERE course_id = $1 AND teacher_id = $2`, courseID, teacherID)
	if err != nil {
		return false, fmt.Errorf("remove course teacher: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove course teacher rows affected: %w", err)
	}
	return affected > 0, nil
}

// AddStudent links a student to a course. Adding twice is harmless.
func (r *CourseRepository) AddStudent(ctx context.Context, courseID, studentID string) error {
	return r.addMember(ctx, r.db, "course_students", "student_id", courseID, studentID)
}

func (r *CourseRepository) addMember(ctx context.Context, exec sqlx.ExecerContext, table, column, courseID, userID string) error {
	query := fmt.Sprintf(`INSERT INTO %s (course_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, column)
	if _, err := exec.ExecContext(ctx, query, courseID, userID); err != nil {
		return fmt.Errorf("add %s: %w", table, err)
	}
	return nil
}
