package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/pkg/response"
)

type courseService interface {
	Create(ctx context.Context, req models.CreateCourseRequest) (*models.Course, error)
	Get(ctx context.Context, id string) (*models.Course, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.Course, error)
	AddTeacher(ctx context.Context, courseID string, req models.CourseMemberRequest) (*models.Course, error)
	RemoveTeacher(ctx context.Context, courseID, teacherID string) error
	AddStudent(ctx context.Context, courseID string, req models.CourseMemberRequest) (*models.Course, error)
}

// CourseHandler exposes course roster endpoints.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler builds a new handler.
func NewCourseHandler(service courseService) *CourseHandler {
	return &CourseHandler{service: service}
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body models.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req models.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid course payload"))
		return
	}
	course, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// ListBySection godoc
// @Summary List courses of a section
// @Tags Courses
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/courses [get]
func (h *CourseHandler) ListBySection(c *gin.Context) {
	courses, err := h.service.ListBySection(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, courses)
}

// AddTeacher godoc
// @Summary Assign teacher to course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.CourseMemberRequest true "Teacher"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/teachers [post]
func (h *CourseHandler) AddTeacher(c *gin.Context) {
	var req models.CourseMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid teacher payload"))
		return
	}
	course, err := h.service.AddTeacher(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// RemoveTeacher godoc
// @Summary Remove teacher from course
// @Tags Courses
// @Param id path string true "Course ID"
// @Param teacherId path string true "Teacher ID"
// @Success 204
// @Router /courses/{id}/teachers/{teacherId} [delete]
func (h *CourseHandler) RemoveTeacher(c *gin.Context) {
	if err := h.service.RemoveTeacher(c.Request.Context(), c.Param("id"), c.Param("teacherId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddStudent godoc
// @Summary Add student to course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.CourseMemberRequest true "Student"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/students [post]
func (h *CourseHandler) AddStudent(c *gin.Context) {
	var req models.CourseMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid student payload"))
		return
	}
	course, err := h.service.AddStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}
