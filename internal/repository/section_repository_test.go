package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-timetable-api/internal/models"
)

func TestSectionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "institution_id", "name", "capacity", "session_start", "session_end", "is_active", "created_at", "updated_at", "enrolled_count"}).
		AddRow("sec-1", "inst-1", "10-A", 30, now.Add(-time.Hour), now.Add(time.Hour), true, now, now, 12)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sections s WHERE s.id = $1")).
		WithArgs("sec-1").
		WillReturnRows(rows)

	section, err := repo.FindByID(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, "10-A", section.Name)
	assert.Equal(t, 12, section.EnrolledCount)
	assert.True(t, section.HasSeat())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryEnroll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM section_students")).
		WithArgs("sec-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM section_students WHERE section_id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO section_students")).
		WithArgs("sec-1", "stu-1", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Enroll(context.Background(), "sec-1", "stu-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryEnrollFull(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM section_students")).
		WithArgs("sec-1", "stu-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM section_students WHERE section_id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Enroll(context.Background(), "sec-1", "stu-2", time.Now())
	assert.ErrorIs(t, err, ErrSectionFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositorySyncActivity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)
	now := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE sections")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active"}).
			AddRow("sec-1", true).
			AddRow("sec-2", false).
			AddRow("sec-3", true))

	activated, deactivated, err := repo.SyncActivity(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"sec-1", "sec-3"}, activated)
	assert.Equal(t, []string{"sec-2"}, deactivated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM sections s WHERE s.institution_id = $1 ORDER BY s.name ASC LIMIT 20 OFFSET 0")).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "institution_id", "name", "capacity", "session_start", "session_end", "is_active", "created_at", "updated_at", "enrolled_count"}).
			AddRow("sec-1", "inst-1", "10-A", 30, now, now, false, now, now, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sections s WHERE s.institution_id = $1")).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sections, total, err := repo.List(context.Background(), models.SectionFilter{InstitutionID: "inst-1"})
	require.NoError(t, err)
	assert.Len(t, sections, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
