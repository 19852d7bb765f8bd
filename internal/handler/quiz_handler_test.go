package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-timetable-api/internal/models"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
)

type quizServiceMock struct {
	submission  *models.QuizSubmission
	eligibility *models.Eligibility
	err         error

	lastStudent string
	lastActor   *models.JWTClaims
	lastSubmit  models.SubmitQuizRequest
}

func (m *quizServiceMock) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateQuizRequest) (*models.Quiz, error) {
	m.lastActor = actor
	return &models.Quiz{ID: "quiz-1", CourseID: req.CourseID}, m.err
}

func (m *quizServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Quiz, error) {
	m.lastActor = actor
	return &models.Quiz{ID: id}, m.err
}

func (m *quizServiceMock) ListByCourse(ctx context.Context, courseID string, actor *models.JWTClaims) ([]models.Quiz, error) {
	return nil, m.err
}

func (m *quizServiceMock) Eligibility(ctx context.Context, quizID, studentID string) (*models.Eligibility, error) {
	m.lastStudent = studentID
	return m.eligibility, m.err
}

func (m *quizServiceMock) Submit(ctx context.Context, quizID, studentID string, req models.SubmitQuizRequest) (*models.QuizSubmission, error) {
	m.lastStudent = studentID
	m.lastSubmit = req
	return m.submission, m.err
}

func (m *quizServiceMock) ListSubmissions(ctx context.Context, quizID, studentID string) ([]models.QuizSubmission, error) {
	m.lastStudent = studentID
	return []models.QuizSubmission{}, m.err
}

func TestQuizHandlerSubmitUsesCaller(t *testing.T) {
	svc := &quizServiceMock{submission: &models.QuizSubmission{ID: "sub-1", Score: 3}}
	h := NewQuizHandler(svc)

	c, w := newContext(http.MethodPost, "/quizzes/quiz-1/submissions", `{"answers":[0,-1,2]}`, studentClaims("stu-1"), gin.Param{Key: "id", Value: "quiz-1"})
	h.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "stu-1", svc.lastStudent)
	assert.Equal(t, []int{0, -1, 2}, svc.lastSubmit.Answers)
}

func TestQuizHandlerSubmitRejectedAttempt(t *testing.T) {
	svc := &quizServiceMock{err: appErrors.WithDetails(appErrors.ErrAttemptNotAllowed, "retake available later", models.Eligibility{State: models.AttemptStateCoolingDown})}
	h := NewQuizHandler(svc)

	c, w := newContext(http.MethodPost, "/quizzes/quiz-1/submissions", `{"answers":[1]}`, studentClaims("stu-1"), gin.Param{Key: "id", Value: "quiz-1"})
	h.Submit(c)

	require.Equal(t, http.StatusForbidden, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ATTEMPT_NOT_ALLOWED", env.Error.Code)
}

func TestQuizHandlerSubmitRequiresClaims(t *testing.T) {
	h := NewQuizHandler(&quizServiceMock{})
	c, w := newContext(http.MethodPost, "/quizzes/quiz-1/submissions", `{"answers":[1]}`, nil, gin.Param{Key: "id", Value: "quiz-1"})

	h.Submit(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuizHandlerStudentCannotListOthersSubmissions(t *testing.T) {
	svc := &quizServiceMock{}
	h := NewQuizHandler(svc)

	c, w := newContext(http.MethodGet, "/quizzes/quiz-1/submissions?studentId=stu-2", "", studentClaims("stu-1"), gin.Param{Key: "id", Value: "quiz-1"})
	h.ListSubmissions(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", svc.lastStudent)
}

func TestQuizHandlerStaffListsChosenStudent(t *testing.T) {
	svc := &quizServiceMock{}
	h := NewQuizHandler(svc)

	c, w := newContext(http.MethodGet, "/quizzes/quiz-1/submissions?studentId=stu-2", "", adminClaims(), gin.Param{Key: "id", Value: "quiz-1"})
	h.ListSubmissions(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-2", svc.lastStudent)
}

func TestQuizHandlerEligibility(t *testing.T) {
	svc := &quizServiceMock{eligibility: &models.Eligibility{Allowed: true, NextAttemptNumber: 1}}
	h := NewQuizHandler(svc)

	c, w := newContext(http.MethodGet, "/quizzes/quiz-1/eligibility", "", studentClaims("stu-1"), gin.Param{Key: "id", Value: "quiz-1"})
	h.Eligibility(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", svc.lastStudent)
}

func TestQuizHandlerGetPassesActor(t *testing.T) {
	svc := &quizServiceMock{}
	h := NewQuizHandler(svc)
	claims := studentClaims("stu-1")

	c, w := newContext(http.MethodGet, "/quizzes/quiz-1", "", claims, gin.Param{Key: "id", Value: "quiz-1"})
	h.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Same(t, claims, svc.lastActor)
}
