package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/pkg/export"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
)

type gridReader interface {
	GetGrid(ctx context.Context, id string) (*models.Timetable, error)
}

type courseBatchReader interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Course, error)
}

type userBatchReader interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type gridRenderer interface {
	RenderGrid(grid export.Grid) ([]byte, error)
}

var weekdayLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// ExportService renders timetables into printable documents.
type ExportService struct {
	grids    gridReader
	sections sectionGetter
	courses  courseBatchReader
	users    userBatchReader
	pdf      gridRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(grids gridReader, sections sectionGetter, courses courseBatchReader, users userBatchReader, pdf gridRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{grids: grids, sections: sections, courses: courses, users: users, pdf: pdf, logger: logger}
}

// TimetablePDF renders a periods by days table for the grid. It returns the document and a file name.
func (s *ExportService) TimetablePDF(ctx context.Context, gridID string) ([]byte, string, error) {
	timetable, err := s.grids.GetGrid(ctx, gridID)
	if err != nil {
		return nil, "", err
	}

	section, err := s.sections.FindByID(ctx, timetable.SectionID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	courseIDs, teacherIDs := slotReferences(timetable.Slots)
	courses, err := s.courses.FindByIDs(ctx, courseIDs)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	teachers, err := s.users.FindByIDs(ctx, teacherIDs)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}

	codes := make(map[string]string, len(courses))
	for _, c := range courses {
		codes[c.ID] = c.Code
	}
	names := make(map[string]string, len(teachers))
	for _, u := range teachers {
		names[u.ID] = u.FullName
	}

	grid := export.Grid{
		Title:        "Timetable - " + section.Name,
		Subtitle:     fmt.Sprintf("%d days x %d periods", timetable.Days, timetable.PeriodsPerDay),
		ColumnLabels: make([]string, timetable.Days),
		RowLabels:    make([]string, timetable.PeriodsPerDay),
		Cells:        make([][]string, timetable.PeriodsPerDay),
	}
	for d := 0; d < timetable.Days; d++ {
		grid.ColumnLabels[d] = weekdayLabels[d]
	}
	for p := 0; p < timetable.PeriodsPerDay; p++ {
		grid.RowLabels[p] = fmt.Sprintf("P%d", p+1)
		grid.Cells[p] = make([]string, timetable.Days)
	}
	for _, slot := range timetable.Slots {
		if !timetable.InBounds(slot.DayIndex, slot.PeriodIndex) {
			continue
		}
		grid.Cells[slot.PeriodIndex][slot.DayIndex] = fallback(codes[slot.CourseID], slot.CourseID) + " / " + fallback(names[slot.TeacherID], slot.TeacherID)
	}

	doc, err := s.pdf.RenderGrid(grid)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}
	s.logger.Debug("timetable exported", zap.String("timetable_id", timetable.ID), zap.Int("bytes", len(doc)))

	return doc, "timetable-" + slugify(section.Name) + ".pdf", nil
}

func slotReferences(slots []models.TimetableSlot) (courseIDs, teacherIDs []string) {
	seenCourse := map[string]struct{}{}
	seenTeacher := map[string]struct{}{}
	for _, slot := range slots {
		if _, ok := seenCourse[slot.CourseID]; !ok {
			seenCourse[slot.CourseID] = struct{}{}
			courseIDs = append(courseIDs, slot.CourseID)
		}
		if _, ok := seenTeacher[slot.TeacherID]; !ok {
			seenTeacher[slot.TeacherID] = struct{}{}
			teacherIDs = append(teacherIDs, slot.TeacherID)
		}
	}
	return courseIDs, teacherIDs
}

func fallback(value, alt string) string {
	if value == "" {
		return alt
	}
	return value
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
