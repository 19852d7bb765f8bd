package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-timetable-api/internal/models"
)

const sectionSelect = `SELECT s.id, s.institution_id, s.name, s.capacity, s.session_start, s.session_end, s.is_active, s.created_at, s.updated_at,
(SELECT COUNT(*) FROM section_students ss WHERE ss.section_id = s.id) AS enrolled_count
FROM sections s`

// SectionRepository manages sections and their enrolments.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs a SectionRepository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// Create inserts a new section.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now

	const query = `INSERT INTO sections (id, institution_id, name, capacity, session_start, session_end, is_active, created_at, updated_at)
VALUES (:id, :institution_id, :name, :capacity, :session_start, :session_end, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("create section: %w", ErrDuplicate)
		}
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// FindByID returns a section with its enrolment count.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := sectionSelect + ` WHERE s.id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get section: %w", err)
	}
	return &section, nil
}

// List returns sections matching the filter together with the total count.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error) {
	var conditions []string
	var args []interface{}

	if filter.InstitutionID != "" {
		conditions = append(conditions, fmt.Sprintf("s.institution_id = $%d", len(args)+1))
		args = append(args, filter.InstitutionID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(s.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY s.name ASC LIMIT %d OFFSET %d", sectionSelect, where, pageSize, (page-1)*pageSize)

	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sections s"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// ListStudentIDs returns the enrolled student ids in enrolment order.
func (r *SectionRepository) ListStudentIDs(ctx context.Context, sectionID string) ([]string, error) {
	const query = `SELECT student_id FROM section_students WHERE section_id = $1 ORDER BY enrolled_at ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section students: %w", err)
	}
	return ids, nil
}

// IsEnrolled reports whether the student belongs to the section.
func (r *SectionRepository) IsEnrolled(ctx context.Context, sectionID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM section_students WHERE section_id = $1 AND student_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, sectionID, studentID); err != nil {
		return false, fmt.Errorf("check section enrolment: %w", err)
	}
	return exists, nil
}

// Enroll adds a student while holding a row lock on the section so capacity cannot be overrun.
func (r *SectionRepository) Enroll(ctx context.Context, sectionID, studentID string, enrolledAt time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enroll: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var capacity int
	if err = tx.GetContext(ctx, &capacity, `SELECT capacity FROM sections WHERE id = $1 FOR UPDATE`, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock section: %w", err)
	}

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM section_students WHERE section_id = $1 AND student_id = $2)`, sectionID, studentID); err != nil {
		return fmt.Errorf("check enrolment: %w", err)
	}
	if exists {
		return ErrAlreadyEnrolled
	}

	var enrolled int
	if err = tx.GetContext(ctx, &enrolled, `SELECT COUNT(*) FROM section_students WHERE section_id = $1`, sectionID); err != nil {
		return fmt.Errorf("count enrolment: %w", err)
	}
	if enrolled >= capacity {
		return ErrSectionFull
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO section_students (section_id, student_id, enrolled_at) VALUES ($1, $2, $3)`, sectionID, studentID, enrolledAt); err != nil {
		return fmt.Errorf("insert enrolment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enroll: %w", err)
	}
	return nil
}

// Unenroll removes a student and reports whether a row was deleted.
func (r *SectionRepository) Unenroll(ctx context.Context, sectionID, studentID string) (bool, error) {
	const query = `DELETE FROM section_students WHERE section_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, sectionID, studentID)
	if err != nil {
		return false, fmt.Errorf("delete enrolment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete enrolment rows affected: %w", err)
	}
	return affected > 0, nil
}

type sectionActivityRow struct {
	ID       string `db:"id"`
	IsActive bool   `db:"is_active"`
}

// SyncActivity flips is_active for every section whose flag disagrees with now.
// It returns the ids that were activated and deactivated.
func (r *SectionRepository) SyncActivity(ctx context.Context, now time.Time) (activated, deactivated []string, err error) {
	const query = `UPDATE sections
SET is_active = (session_start <= $1 AND session_end >= $1), updated_at = $1
WHERE is_active <> (session_start <= $1 AND session_end >= $1)
RETURNING id, is_active`

	var rows []sectionActivityRow
	if err := r.db.SelectContext(ctx, &rows, query, now); err != nil {
		return nil, nil, fmt.Errorf("sync section activity: %w", err)
	}
	for _, row := range rows {
		if row.IsActive {
			activated = append(activated, row.ID)
		} else {
			deactivated = append(deactivated, row.ID)
		}
	}
	return activated, deactivated, nil
}
