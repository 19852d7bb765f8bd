package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-timetable-api/internal/models"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
)

type timetableServiceMock struct {
	grid        *models.Timetable
	resize      *models.ResizeResult
	availabilty *models.AvailabilityResult
	err         error

	lastAssign   models.AssignSlotRequest
	lastQuery    models.AvailabilityQuery
	clearedDay   int
	clearedSlot  int
	clearCalled  bool
	deleteCalled bool
}

func (m *timetableServiceMock) CreateGrid(ctx context.Context, req models.CreateTimetableRequest) (*models.Timetable, error) {
	return m.grid, m.err
}

func (m *timetableServiceMock) GetGrid(ctx context.Context, id string) (*models.Timetable, error) {
	return m.grid, m.err
}

func (m *timetableServiceMock) GetBySection(ctx context.Context, sectionID string) (*models.Timetable, error) {
	return m.grid, m.err
}

func (m *timetableServiceMock) ListTeacherSlots(ctx context.Context, teacherID string) ([]models.TeacherSlot, error) {
	return nil, m.err
}

func (m *timetableServiceMock) AssignSlot(ctx context.Context, gridID string, req models.AssignSlotRequest) (*models.Timetable, error) {
	m.lastAssign = req
	return m.grid, m.err
}

func (m *timetableServiceMock) ClearSlot(ctx context.Context, gridID string, dayIndex, periodIndex int) (*models.Timetable, error) {
	m.clearCalled = true
	m.clearedDay = dayIndex
	m.clearedSlot = periodIndex
	return m.grid, m.err
}

func (m *timetableServiceMock) ResizeGrid(ctx context.Context, gridID string, req models.ResizeTimetableRequest) (*models.ResizeResult, error) {
	return m.resize, m.err
}

func (m *timetableServiceMock) CheckAvailability(ctx context.Context, query models.AvailabilityQuery) (*models.AvailabilityResult, error) {
	m.lastQuery = query
	return m.availabilty, m.err
}

func (m *timetableServiceMock) DeleteGrid(ctx context.Context, id string) error {
	m.deleteCalled = true
	return m.err
}

type exporterMock struct {
	data     []byte
	filename string
	err      error
}

func (m *exporterMock) TimetablePDF(ctx context.Context, gridID string) ([]byte, string, error) {
	return m.data, m.filename, m.err
}

func TestTimetableHandlerAssignSlotConflictCarriesDetails(t *testing.T) {
	conflict := &models.SlotConflict{TeacherID: "t-1", SectionID: "sec-2", GridID: "grid-2", DayIndex: 1, PeriodIndex: 3}
	svc := &timetableServiceMock{err: appErrors.WithDetails(appErrors.ErrTeacherUnavailable, "", conflict)}
	h := NewTimetableHandler(svc, &exporterMock{})

	c, w := newContext(http.MethodPut, "/timetables/grid-1/slots",
		`{"day_index":1,"period_index":3,"course_id":"c-1","teacher_id":"t-1"}`,
		adminClaims(), gin.Param{Key: "id", Value: "grid-1"})
	h.AssignSlot(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "TEACHER_UNAVAILABLE", env.Error.Code)

	var details models.SlotConflict
	require.NoError(t, json.Unmarshal(env.Error.Details, &details))
	assert.Equal(t, "sec-2", details.SectionID)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Error.Details, &raw))
	for _, key := range []string{"teacher_id", "section_id", "grid_id", "day_index", "period_index"} {
		assert.Contains(t, raw, key)
	}
	require.NotNil(t, svc.lastAssign.DayIndex)
	assert.Equal(t, 1, *svc.lastAssign.DayIndex)
}

func TestTimetableHandlerAssignSlotInvalidBody(t *testing.T) {
	h := NewTimetableHandler(&timetableServiceMock{}, &exporterMock{})
	c, w := newContext(http.MethodPut, "/timetables/grid-1/slots", `{"day_index":`, adminClaims(), gin.Param{Key: "id", Value: "grid-1"})

	h.AssignSlot(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerClearSlotParsesIndices(t *testing.T) {
	svc := &timetableServiceMock{grid: &models.Timetable{ID: "grid-1"}}
	h := NewTimetableHandler(svc, &exporterMock{})

	c, w := newContext(http.MethodDelete, "/timetables/grid-1/slots/2/4", "", adminClaims(),
		gin.Param{Key: "id", Value: "grid-1"}, gin.Param{Key: "day", Value: "2"}, gin.Param{Key: "period", Value: "4"})
	h.ClearSlot(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, svc.clearedDay)
	assert.Equal(t, 4, svc.clearedSlot)
}

func TestTimetableHandlerClearSlotRejectsNonInteger(t *testing.T) {
	svc := &timetableServiceMock{}
	h := NewTimetableHandler(svc, &exporterMock{})

	c, w := newContext(http.MethodDelete, "/timetables/grid-1/slots/x/4", "", adminClaims(),
		gin.Param{Key: "id", Value: "grid-1"}, gin.Param{Key: "day", Value: "x"}, gin.Param{Key: "period", Value: "4"})
	h.ClearSlot(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, svc.clearCalled)
}

func TestTimetableHandlerResizeReportsRemovedCount(t *testing.T) {
	svc := &timetableServiceMock{resize: &models.ResizeResult{
		Timetable:    &models.Timetable{ID: "grid-1", Days: 4, PeriodsPerDay: 6},
		RemovedSlots: []models.TimetableSlot{{DayIndex: 4, PeriodIndex: 0}, {DayIndex: 4, PeriodIndex: 1}},
	}}
	h := NewTimetableHandler(svc, &exporterMock{})

	c, w := newContext(http.MethodPatch, "/timetables/grid-1/structure", `{"days":4,"periods_per_day":6}`, adminClaims(), gin.Param{Key: "id", Value: "grid-1"})
	h.Resize(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.EqualValues(t, 2, env.Meta["removed_count"])
}

func TestTimetableHandlerAvailabilityBindsQuery(t *testing.T) {
	svc := &timetableServiceMock{availabilty: &models.AvailabilityResult{Available: true}}
	h := NewTimetableHandler(svc, &exporterMock{})

	c, w := newContext(http.MethodGet, "/timetables/availability?teacherId=t-1&dayIndex=0&periodIndex=2&excludeGridId=grid-9", "", adminClaims())
	h.Availability(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-1", svc.lastQuery.TeacherID)
	require.NotNil(t, svc.lastQuery.DayIndex)
	assert.Equal(t, 0, *svc.lastQuery.DayIndex)
	require.NotNil(t, svc.lastQuery.PeriodIndex)
	assert.Equal(t, 2, *svc.lastQuery.PeriodIndex)
	assert.Equal(t, "grid-9", svc.lastQuery.ExcludeGridID)
}

func TestTimetableHandlerExportPDF(t *testing.T) {
	h := NewTimetableHandler(&timetableServiceMock{}, &exporterMock{data: []byte("%PDF-1.3"), filename: "timetable-grade-10a.pdf"})

	c, w := newContext(http.MethodGet, "/timetables/grid-1/export.pdf", "", adminClaims(), gin.Param{Key: "id", Value: "grid-1"})
	h.ExportPDF(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable-grade-10a.pdf")
	assert.Equal(t, "%PDF-1.3", w.Body.String())
}

func TestTimetableHandlerDeleteNotFound(t *testing.T) {
	svc := &timetableServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "timetable not found")}
	h := NewTimetableHandler(svc, &exporterMock{})

	c, w := newContext(http.MethodDelete, "/timetables/missing", "", adminClaims(), gin.Param{Key: "id", Value: "missing"})
	h.Delete(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, svc.deleteCalled)
}
