package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/pkg/response"
)

type timetableService interface {
	CreateGrid(ctx context.Context, req models.CreateTimetableRequest) (*models.Timetable, error)
	GetGrid(ctx context.Context, id string) (*models.Timetable, error)
	GetBySection(ctx context.Context, sectionID string) (*models.Timetable, error)
	ListTeacherSlots(ctx context.Context, teacherID string) ([]models.TeacherSlot, error)
	AssignSlot(ctx context.Context, gridID string, req models.AssignSlotRequest) (*models.Timetable, error)
	ClearSlot(ctx context.Context, gridID string, dayIndex, periodIndex int) (*models.Timetable, error)
	ResizeGrid(ctx context.Context, gridID string, req models.ResizeTimetableRequest) (*models.ResizeResult, error)
	CheckAvailability(ctx context.Context, query models.AvailabilityQuery) (*models.AvailabilityResult, error)
	DeleteGrid(ctx context.Context, id string) error
}

type timetableExporter interface {
	TimetablePDF(ctx context.Context, gridID string) ([]byte, string, error)
}

// TimetableHandler exposes weekly grid endpoints.
type TimetableHandler struct {
	service  timetableService
	exporter timetableExporter
}

// NewTimetableHandler builds a new handler.
func NewTimetableHandler(service timetableService, exporter timetableExporter) *TimetableHandler {
	return &TimetableHandler{service: service, exporter: exporter}
}

// Create godoc
// @Summary Create timetable grid for a section
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body models.CreateTimetableRequest true "Grid dimensions"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	var req models.CreateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid timetable payload"))
		return
	}
	grid, err := h.service.CreateGrid(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grid)
}

// Get godoc
// @Summary Get timetable grid
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	grid, err := h.service.GetGrid(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, grid)
}

// GetBySection godoc
// @Summary Get the timetable of a section
// @Tags Timetables
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/timetable [get]
func (h *TimetableHandler) GetBySection(c *gin.Context) {
	grid, err := h.service.GetBySection(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, grid)
}

// TeacherWeek godoc
// @Summary List every slot a teacher holds
// @Tags Timetables
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/timetable [get]
func (h *TimetableHandler) TeacherWeek(c *gin.Context) {
	slots, err := h.service.ListTeacherSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slots)
}

// AssignSlot godoc
// @Summary Assign course and teacher to a cell
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body models.AssignSlotRequest true "Slot assignment"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/{id}/slots [put]
func (h *TimetableHandler) AssignSlot(c *gin.Context) {
	var req models.AssignSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid slot payload"))
		return
	}
	grid, err := h.service.AssignSlot(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, grid)
}

// ClearSlot godoc
// @Summary Clear a cell
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Param day path int true "Day index"
// @Param period path int true "Period index"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/slots/{day}/{period} [delete]
func (h *TimetableHandler) ClearSlot(c *gin.Context) {
	day, err := intParam(c, "day")
	if err != nil {
		response.Error(c, err)
		return
	}
	period, err := intParam(c, "period")
	if err != nil {
		response.Error(c, err)
		return
	}
	grid, err := h.service.ClearSlot(c.Request.Context(), c.Param("id"), day, period)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, grid)
}

// Resize godoc
// @Summary Change grid dimensions
// @Description Shrinking drops every slot outside the new bounds and lists them in the response.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body models.ResizeTimetableRequest true "New dimensions"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/structure [patch]
func (h *TimetableHandler) Resize(c *gin.Context) {
	var req models.ResizeTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid structure payload"))
		return
	}
	result, err := h.service.ResizeGrid(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"removed_count": len(result.RemovedSlots)})
}

// Availability godoc
// @Summary Check whether a teacher is free in a cell
// @Tags Timetables
// @Produce json
// @Param teacherId query string true "Teacher ID"
// @Param dayIndex query int true "Day index"
// @Param periodIndex query int true "Period index"
// @Param excludeGridId query string false "Grid to ignore"
// @Success 200 {object} response.Envelope
// @Router /timetables/availability [get]
func (h *TimetableHandler) Availability(c *gin.Context) {
	var query models.AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid availability query"))
		return
	}
	result, err := h.service.CheckAvailability(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Delete godoc
// @Summary Delete timetable grid
// @Tags Timetables
// @Param id path string true "Timetable ID"
// @Success 204
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteGrid(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportPDF godoc
// @Summary Download timetable as PDF
// @Tags Timetables
// @Produce application/pdf
// @Param id path string true "Timetable ID"
// @Success 200 {file} file
// @Router /timetables/{id}/export.pdf [get]
func (h *TimetableHandler) ExportPDF(c *gin.Context) {
	data, filename, err := h.exporter.TimetablePDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}
