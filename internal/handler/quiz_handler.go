package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-timetable-api/internal/models"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
	"github.com/noah-isme/school-timetable-api/pkg/response"
)

type quizService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req models.CreateQuizRequest) (*models.Quiz, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Quiz, error)
	ListByCourse(ctx context.Context, courseID string, actor *models.JWTClaims) ([]models.Quiz, error)
	Eligibility(ctx context.Context, quizID, studentID string) (*models.Eligibility, error)
	Submit(ctx context.Context, quizID, studentID string, req models.SubmitQuizRequest) (*models.QuizSubmission, error)
	ListSubmissions(ctx context.Context, quizID, studentID string) ([]models.QuizSubmission, error)
}

// QuizHandler exposes quiz authoring and attempt endpoints.
type QuizHandler struct {
	service quizService
}

// NewQuizHandler builds a new handler.
func NewQuizHandler(service quizService) *QuizHandler {
	return &QuizHandler{service: service}
}

// Create godoc
// @Summary Create quiz
// @Tags Quizzes
// @Accept json
// @Produce json
// @Param payload body models.CreateQuizRequest true "Quiz payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /quizzes [post]
func (h *QuizHandler) Create(c *gin.Context) {
	var req models.CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid quiz payload"))
		return
	}
	quiz, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, quiz)
}

// Get godoc
// @Summary Get quiz
// @Description Answers are hidden unless the caller manages quizzes.
// @Tags Quizzes
// @Produce json
// @Param id path string true "Quiz ID"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id} [get]
func (h *QuizHandler) Get(c *gin.Context) {
	quiz, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, quiz)
}

// ListByCourse godoc
// @Summary List quizzes of a course
// @Tags Quizzes
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/quizzes [get]
func (h *QuizHandler) ListByCourse(c *gin.Context) {
	quizzes, err := h.service.ListByCourse(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, quizzes)
}

// Eligibility godoc
// @Summary Check whether a student may attempt the quiz
// @Tags Quizzes
// @Produce json
// @Param id path string true "Quiz ID"
// @Param studentId query string false "Student ID (staff only)"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id}/eligibility [get]
func (h *QuizHandler) Eligibility(c *gin.Context) {
	studentID, err := h.subjectStudent(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Eligibility(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Submit godoc
// @Summary Submit a quiz attempt
// @Tags Quizzes
// @Accept json
// @Produce json
// @Param id path string true "Quiz ID"
// @Param payload body models.SubmitQuizRequest true "Chosen option per question, -1 for unanswered"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /quizzes/{id}/submissions [post]
func (h *QuizHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.SubmitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid submission payload"))
		return
	}
	submission, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// ListSubmissions godoc
// @Summary List quiz submissions
// @Description Students only see their own attempts.
// @Tags Quizzes
// @Produce json
// @Param id path string true "Quiz ID"
// @Param studentId query string false "Student ID (staff only)"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id}/submissions [get]
func (h *QuizHandler) ListSubmissions(c *gin.Context) {
	studentID, err := h.subjectStudent(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	submissions, err := h.service.ListSubmissions(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, submissions)
}

// subjectStudent pins non-staff callers to themselves.
func (h *QuizHandler) subjectStudent(c *gin.Context) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	if claims.HasCapability(models.CapManageQuizzes) {
		return c.Query("studentId"), nil
	}
	return claims.UserID, nil
}
