package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/internal/repository"
	"github.com/noah-isme/school-timetable-api/pkg/clock"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
)

// memoryTimetableRepo keeps grids in creation order like the SQL repository.
type memoryTimetableRepo struct {
	grids  map[string]*models.Timetable
	order  []string
	nextID int
}

func newMemoryTimetableRepo() *memoryTimetableRepo {
	return &memoryTimetableRepo{grids: map[string]*models.Timetable{}}
}

func copyTimetable(t *models.Timetable) *models.Timetable {
	cp := *t
	cp.Slots = append([]models.TimetableSlot{}, t.Slots...)
	return &cp
}

func (r *memoryTimetableRepo) Create(ctx context.Context, timetable *models.Timetable) error {
	for _, g := range r.grids {
		if g.SectionID == timetable.SectionID {
			return repository.ErrDuplicate
		}
	}
	r.nextID++
	if timetable.ID == "" {
		timetable.ID = fmt.Sprintf("grid-%d", r.nextID)
	}
	r.grids[timetable.ID] = copyTimetable(timetable)
	r.order = append(r.order, timetable.ID)
	return nil
}

func (r *memoryTimetableRepo) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	g, ok := r.grids[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return copyTimetable(g), nil
}

func (r *memoryTimetableRepo) FindBySection(ctx context.Context, sectionID string) (*models.Timetable, error) {
	for _, id := range r.order {
		if g, ok := r.grids[id]; ok && g.SectionID == sectionID {
			return copyTimetable(g), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memoryTimetableRepo) ExistsForSection(ctx context.Context, sectionID string) (bool, error) {
	_, err := r.FindBySection(ctx, sectionID)
	return err == nil, nil
}

func (r *memoryTimetableRepo) UpsertSlot(ctx context.Context, slot *models.TimetableSlot) error {
	g, ok := r.grids[slot.TimetableID]
	if !ok {
		return sql.ErrNoRows
	}
	_, err := g.Upsert(*slot)
	return err
}

func (r *memoryTimetableRepo) DeleteSlot(ctx context.Context, timetableID string, dayIndex, periodIndex int) (bool, error) {
	g, ok := r.grids[timetableID]
	if !ok {
		return false, nil
	}
	_, removed := g.Clear(dayIndex, periodIndex)
	return removed, nil
}

func (r *memoryTimetableRepo) Resize(ctx context.Context, timetableID string, days, periodsPerDay int) (int64, error) {
	g, ok := r.grids[timetableID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	resized, removed, err := g.Resize(days, periodsPerDay)
	if err != nil {
		return 0, err
	}
	r.grids[timetableID] = &resized
	return int64(len(removed)), nil
}

func (r *memoryTimetableRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := r.grids[id]; !ok {
		return false, nil
	}
	delete(r.grids, id)
	return true, nil
}

func (r *memoryTimetableRepo) FindTeacherBookings(ctx context.Context, teacherID string, dayIndex, periodIndex int) ([]models.TeacherSlot, error) {
	var out []models.TeacherSlot
	for _, id := range r.order {
		g, ok := r.grids[id]
		if !ok {
			continue
		}
		for _, slot := range g.Slots {
			if slot.TeacherID == teacherID && slot.DayIndex == dayIndex && slot.PeriodIndex == periodIndex {
				out = append(out, models.TeacherSlot{TimetableSlot: slot, SectionID: g.SectionID})
			}
		}
	}
	return out, nil
}

func (r *memoryTimetableRepo) ListTeacherSlots(ctx context.Context, teacherID string) ([]models.TeacherSlot, error) {
	out := []models.TeacherSlot{}
	for _, id := range r.order {
		g, ok := r.grids[id]
		if !ok {
			continue
		}
		for _, slot := range g.Slots {
			if slot.TeacherID == teacherID {
				out = append(out, models.TeacherSlot{TimetableSlot: slot, SectionID: g.SectionID})
			}
		}
	}
	return out, nil
}

type timetableFixture struct {
	svc      *TimetableService
	repo     *memoryTimetableRepo
	cache    *memoryCacheRepo
	notifier *recordingNotifier
	metrics  *MetricsService
}

func newTimetableFixture(t *testing.T) *timetableFixture {
	t.Helper()
	sections := newStubSectionRepo(
		&models.Section{ID: "sec-x", InstitutionID: "inst-1", Name: "X", Capacity: 30},
		&models.Section{ID: "sec-y", InstitutionID: "inst-1", Name: "Y", Capacity: 30},
	)
	courses := newStubCourseRepo(
		&models.Course{ID: "math-x", SectionID: "sec-x", Name: "Math", Code: "MATH", TeacherIDs: []string{"T", "U"}},
		&models.Course{ID: "art-x", SectionID: "sec-x", Name: "Art", Code: "ART", TeacherIDs: []string{"U"}},
		&models.Course{ID: "math-y", SectionID: "sec-y", Name: "Math", Code: "MATH", TeacherIDs: []string{"T"}},
	)
	users := newStubUsers(teacherUser("T"), teacherUser("U"), student("S"))
	cacheRepo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	f := &timetableFixture{
		repo:     newMemoryTimetableRepo(),
		cache:    cacheRepo,
		notifier: &recordingNotifier{},
		metrics:  metrics,
	}
	f.svc = NewTimetableService(TimetableServiceDeps{
		Repo:     f.repo,
		Sections: sections,
		Courses:  courses,
		Users:    users,
		Cache:    NewCacheService(cacheRepo, metrics, time.Minute, nil, true),
		Metrics:  metrics,
		Notifier: f.notifier,
		Clock:    clock.NewFixed(time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)),
	})
	return f
}

func intPtr(v int) *int { return &v }

func assignReq(day, period int, courseID, teacherID string) models.AssignSlotRequest {
	return models.AssignSlotRequest{DayIndex: intPtr(day), PeriodIndex: intPtr(period), CourseID: courseID, TeacherID: teacherID}
}

func errCode(err error) string {
	if err == nil {
		return ""
	}
	return appErrors.FromError(err).Code
}

func TestTimetableServiceCreateGridBounds(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-y", Days: 8, PeriodsPerDay: 8})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	_, err = f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-y", Days: 5, PeriodsPerDay: 0})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	_, err = f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "missing", Days: 5, PeriodsPerDay: 8})
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))

	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-y", Days: 7, PeriodsPerDay: 12})
	require.NoError(t, err)
	assert.Empty(t, grid.Slots)

	_, err = f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-y", Days: 5, PeriodsPerDay: 8})
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(err))
}

func TestTimetableServiceAssignOverwrites(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)

	_, err = f.svc.AssignSlot(ctx, grid.ID, assignReq(1, 3, "math-x", "T"))
	require.NoError(t, err)
	updated, err := f.svc.AssignSlot(ctx, grid.ID, assignReq(1, 3, "art-x", "U"))
	require.NoError(t, err)

	require.Len(t, updated.Slots, 1)
	assert.Equal(t, "art-x", updated.Slots[0].CourseID)
	assert.Equal(t, "U", updated.Slots[0].TeacherID)

	stored, err := f.repo.FindByID(ctx, grid.ID)
	require.NoError(t, err)
	require.Len(t, stored.Slots, 1)
	assert.Equal(t, "U", stored.Slots[0].TeacherID)

	require.Len(t, f.notifier.messages, 2)
	assert.ElementsMatch(t, []string{"U", "T"}, f.notifier.messages[1].Recipients)
}

func TestTimetableServiceAssignRejectsOutOfRange(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)

	for _, tc := range []struct{ day, period int }{{5, 0}, {0, 8}, {-1, 0}, {0, -1}} {
		_, err := f.svc.AssignSlot(ctx, grid.ID, assignReq(tc.day, tc.period, "math-x", "T"))
		assert.Equal(t, appErrors.ErrOutOfRange.Code, errCode(err), "day=%d period=%d", tc.day, tc.period)
	}

	_, err = f.svc.AssignSlot(ctx, "missing", assignReq(0, 0, "math-x", "T"))
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}

func TestTimetableServiceAssignRosterRules(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)

	_, err = f.svc.AssignSlot(ctx, grid.ID, assignReq(0, 0, "math-y", "T"))
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	_, err = f.svc.AssignSlot(ctx, grid.ID, assignReq(0, 0, "art-x", "T"))
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	_, err = f.svc.AssignSlot(ctx, grid.ID, assignReq(0, 0, "math-x", "S"))
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))

	_, err = f.svc.AssignSlot(ctx, grid.ID, assignReq(0, 0, "nope", "T"))
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))

	_, err = f.svc.AssignSlot(ctx, grid.ID, models.AssignSlotRequest{CourseID: "math-x", TeacherID: "T"})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
}

func TestTimetableServiceAvailabilityScenario(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	gridA, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)
	gridB, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-y", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)

	_, err = f.svc.AssignSlot(ctx, gridA.ID, assignReq(0, 2, "math-x", "T"))
	require.NoError(t, err)

	res, err := f.svc.CheckAvailability(ctx, models.AvailabilityQuery{TeacherID: "T", DayIndex: intPtr(0), PeriodIndex: intPtr(2)})
	require.NoError(t, err)
	assert.False(t, res.Available)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, models.SlotConflict{TeacherID: "T", SectionID: "sec-x", GridID: gridA.ID, DayIndex: 0, PeriodIndex: 2}, *res.Conflict)

	res, err = f.svc.CheckAvailability(ctx, models.AvailabilityQuery{TeacherID: "T", DayIndex: intPtr(0), PeriodIndex: intPtr(2), ExcludeGridID: gridA.ID})
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Nil(t, res.Conflict)

	res, err = f.svc.CheckAvailability(ctx, models.AvailabilityQuery{TeacherID: "T", DayIndex: intPtr(0), PeriodIndex: intPtr(3)})
	require.NoError(t, err)
	assert.True(t, res.Available)

	// Re-saving the same booking on its own grid is not a conflict.
	_, err = f.svc.AssignSlot(ctx, gridA.ID, assignReq(0, 2, "math-x", "T"))
	require.NoError(t, err)

	_, err = f.svc.AssignSlot(ctx, gridB.ID, assignReq(0, 2, "math-y", "T"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrTeacherUnavailable.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
	conflict, ok := appErr.Details.(*models.SlotConflict)
	require.True(t, ok)
	assert.Equal(t, "sec-x", conflict.SectionID)
	assert.Equal(t, gridA.ID, conflict.GridID)

	stored, err := f.repo.FindByID(ctx, gridB.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Slots)
}

func TestTimetableServiceAvailabilityValidation(t *testing.T) {
	f := newTimetableFixture(t)
	_, err := f.svc.CheckAvailability(context.Background(), models.AvailabilityQuery{TeacherID: "T"})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
}

func TestTimetableServiceClearSlot(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)
	_, err = f.svc.AssignSlot(ctx, grid.ID, assignReq(2, 2, "math-x", "T"))
	require.NoError(t, err)

	updated, err := f.svc.ClearSlot(ctx, grid.ID, 3, 3)
	require.NoError(t, err)
	assert.Len(t, updated.Slots, 1)

	updated, err = f.svc.ClearSlot(ctx, grid.ID, 9, 9)
	require.NoError(t, err)
	assert.Len(t, updated.Slots, 1)

	updated, err = f.svc.ClearSlot(ctx, grid.ID, 2, 2)
	require.NoError(t, err)
	assert.Empty(t, updated.Slots)

	res, err := f.svc.CheckAvailability(ctx, models.AvailabilityQuery{TeacherID: "T", DayIndex: intPtr(2), PeriodIndex: intPtr(2)})
	require.NoError(t, err)
	assert.True(t, res.Available)
}

func TestTimetableServiceResizeTruncatesExactly(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)
	for _, cell := range []struct{ day, period int }{{0, 0}, {2, 5}, {4, 1}, {1, 7}} {
		_, err := f.svc.AssignSlot(ctx, grid.ID, assignReq(cell.day, cell.period, "math-x", "T"))
		require.NoError(t, err)
	}

	res, err := f.svc.ResizeGrid(ctx, grid.ID, models.ResizeTimetableRequest{Days: 3, PeriodsPerDay: 6})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Timetable.Days)
	assert.Equal(t, 6, res.Timetable.PeriodsPerDay)

	removed := map[[2]int]bool{}
	for _, slot := range res.RemovedSlots {
		removed[[2]int{slot.DayIndex, slot.PeriodIndex}] = true
	}
	assert.Equal(t, map[[2]int]bool{{4, 1}: true, {1, 7}: true}, removed)

	stored, err := f.repo.FindByID(ctx, grid.ID)
	require.NoError(t, err)
	require.Len(t, stored.Slots, 2)
	for _, slot := range stored.Slots {
		assert.True(t, stored.InBounds(slot.DayIndex, slot.PeriodIndex))
		assert.Equal(t, "math-x", slot.CourseID)
		assert.Equal(t, "T", slot.TeacherID)
	}
	assert.LessOrEqual(t, len(stored.Slots), stored.Capacity())

	last := f.notifier.messages[len(f.notifier.messages)-1]
	assert.Equal(t, models.NotificationSlotsRemoved, last.Type)
}

func TestTimetableServiceResizeValidation(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)

	_, err = f.svc.ResizeGrid(ctx, grid.ID, models.ResizeTimetableRequest{Days: 0, PeriodsPerDay: 8})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
	_, err = f.svc.ResizeGrid(ctx, grid.ID, models.ResizeTimetableRequest{Days: 5, PeriodsPerDay: 13})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
	_, err = f.svc.ResizeGrid(ctx, "missing", models.ResizeTimetableRequest{Days: 5, PeriodsPerDay: 8})
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))

	res, err := f.svc.ResizeGrid(ctx, grid.ID, models.ResizeTimetableRequest{Days: 7, PeriodsPerDay: 10})
	require.NoError(t, err)
	assert.Empty(t, res.RemovedSlots)
	assert.NotNil(t, res.RemovedSlots)
}

func TestTimetableServiceGetGridUsesCache(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)

	_, err = f.svc.GetGrid(ctx, grid.ID)
	require.NoError(t, err)
	before := cachedGeneration(t, f.cache, grid.ID)
	assert.Contains(t, f.cache.items, timetableCacheKey(grid.ID, before))

	_, err = f.svc.AssignSlot(ctx, grid.ID, assignReq(0, 0, "math-x", "T"))
	require.NoError(t, err)
	after := cachedGeneration(t, f.cache, grid.ID)
	assert.NotEqual(t, before, after)
	assert.NotContains(t, f.cache.items, timetableCacheKey(grid.ID, after))

	fresh, err := f.svc.GetGrid(ctx, grid.ID)
	require.NoError(t, err)
	assert.Len(t, fresh.Slots, 1)
	assert.Contains(t, f.cache.items, timetableCacheKey(grid.ID, after))
}

func TestTimetableServiceGetGridCacheFailuresFallBackToRepository(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)

	f.cache.getErr = errors.New("redis down")
	got, err := f.svc.GetGrid(ctx, grid.ID)
	require.NoError(t, err)
	assert.Equal(t, grid.ID, got.ID)
	assert.Empty(t, f.cache.items)
}

// gatedTimetableRepo parks the first armed FindByID after it has read the grid.
type gatedTimetableRepo struct {
	*memoryTimetableRepo
	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func (g *gatedTimetableRepo) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, err := g.memoryTimetableRepo.FindByID(ctx, id)
	if g.armed.CompareAndSwap(true, false) {
		close(g.loaded)
		<-g.release
	}
	return timetable, err
}

func TestTimetableServiceGetGridIgnoresLoadsRacingWrites(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	gated := &gatedTimetableRepo{
		memoryTimetableRepo: f.repo,
		loaded:              make(chan struct{}),
		release:             make(chan struct{}),
	}
	f.svc.repo = gated

	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)

	gated.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.GetGrid(ctx, grid.ID)
		done <- err
	}()
	<-gated.loaded

	_, err = f.svc.AssignSlot(ctx, grid.ID, assignReq(0, 2, "math-x", "T"))
	require.NoError(t, err)
	close(gated.release)
	require.NoError(t, <-done)

	fresh, err := f.svc.GetGrid(ctx, grid.ID)
	require.NoError(t, err)
	require.Len(t, fresh.Slots, 1)
	assert.Equal(t, "math-x", fresh.Slots[0].CourseID)
}

func cachedGeneration(t *testing.T, cache *memoryCacheRepo, id string) string {
	t.Helper()
	var generation string
	require.NoError(t, cache.Get(context.Background(), timetableGenerationKey(id), &generation))
	require.NotEmpty(t, generation)
	return generation
}

func TestTimetableServiceTeacherWeekAndDelete(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	grid, err := f.svc.CreateGrid(ctx, models.CreateTimetableRequest{SectionID: "sec-x", Days: 5, PeriodsPerDay: 8})
	require.NoError(t, err)
	_, err = f.svc.AssignSlot(ctx, grid.ID, assignReq(0, 0, "math-x", "T"))
	require.NoError(t, err)

	week, err := f.svc.ListTeacherSlots(ctx, "T")
	require.NoError(t, err)
	require.Len(t, week, 1)
	assert.Equal(t, "sec-x", week[0].SectionID)

	_, err = f.svc.ListTeacherSlots(ctx, "S")
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))

	bySection, err := f.svc.GetBySection(ctx, "sec-x")
	require.NoError(t, err)
	assert.Equal(t, grid.ID, bySection.ID)

	require.NoError(t, f.svc.DeleteGrid(ctx, grid.ID))
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(f.svc.DeleteGrid(ctx, grid.ID)))
	_, err = f.svc.GetBySection(ctx, "sec-x")
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}
