package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/internal/repository"
	"github.com/noah-isme/school-timetable-api/pkg/clock"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
)

type quizRepository interface {
	Create(ctx context.Context, quiz *models.Quiz) error
	FindByID(ctx context.Context, id string) (*models.Quiz, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Quiz, error)
	AttemptHistory(ctx context.Context, quizID, studentID string) (models.AttemptHistory, error)
	CreateSubmission(ctx context.Context, submission *models.QuizSubmission) error
	ListSubmissions(ctx context.Context, quizID, studentID string) ([]models.QuizSubmission, error)
}

// QuizService handles quiz authoring, attempt gating and grading.
type QuizService struct {
	repo      quizRepository
	courses   courseGetter
	notifier  Notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	clock     clock.Clock
}

// NewQuizService constructs a QuizService.
func NewQuizService(repo quizRepository, courses courseGetter, notifier Notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, clk clock.Clock) *QuizService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{
		repo:      repo,
		courses:   courses,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		clock:     clock.OrSystem(clk),
	}
}

// Create stores a quiz. Teachers may only author quizzes for courses they teach.
func (s *QuizService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateQuizRequest) (*models.Quiz, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz payload")
	}
	for i, question := range req.Questions {
		if *question.CorrectAnswer >= len(question.Options) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d: correct_answer must index one of its options", i+1))
		}
	}
	if req.VisibleFrom != nil && req.VisibleUntil != nil && !req.VisibleFrom.Before(*req.VisibleUntil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "visible_from must be before visible_until")
	}

	course, err := s.course(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.Role == models.RoleTeacher && !course.HasTeacher(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course's teachers can add quizzes")
	}

	quiz := &models.Quiz{
		CourseID:     course.ID,
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Questions:    req.Questions,
		VisibleFrom:  req.VisibleFrom,
		VisibleUntil: req.VisibleUntil,
		MaxAttempts:  req.MaxAttempts,
		RetakePolicy: req.RetakePolicy,
	}
	quiz.TotalMarks = quiz.SumMarks()
	if actor != nil {
		quiz.CreatedBy = actor.UserID
	}
	now := s.clock.Now()
	quiz.CreatedAt = now
	quiz.UpdatedAt = now

	if err := s.repo.Create(ctx, quiz); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create quiz")
	}
	return quiz, nil
}

// Get returns a quiz. Callers without manage_quizzes never see correct answers.
func (s *QuizService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Quiz, error) {
	quiz, err := s.quiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.HasCapability(models.CapManageQuizzes) {
		redacted := quiz.WithoutAnswers()
		return &redacted, nil
	}
	return quiz, nil
}

// ListByCourse returns a course's quizzes with the same redaction as Get.
func (s *QuizService) ListByCourse(ctx context.Context, courseID string, actor *models.JWTClaims) ([]models.Quiz, error) {
	if _, err := s.course(ctx, courseID); err != nil {
		return nil, err
	}
	quizzes, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list quizzes")
	}
	if !actor.HasCapability(models.CapManageQuizzes) {
		for i := range quizzes {
			quizzes[i] = quizzes[i].WithoutAnswers()
		}
	}
	return quizzes, nil
}

// Eligibility reports whether the student may start another attempt now.
func (s *QuizService) Eligibility(ctx context.Context, quizID, studentID string) (*models.Eligibility, error) {
	quiz, err := s.quiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	eligibility, err := s.evaluate(ctx, quiz, studentID)
	if err != nil {
		return nil, err
	}
	return &eligibility, nil
}

// Submit grades an attempt and stores it as attempt n+1.
func (s *QuizService) Submit(ctx context.Context, quizID, studentID string, req models.SubmitQuizRequest) (*models.QuizSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	quiz, err := s.quiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(req.Answers) > len(quiz.Questions) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "more answers than questions")
	}
	for i, choice := range req.Answers {
		if choice >= len(quiz.Questions[i].Options) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("answer %d selects an unknown option", i+1))
		}
	}

	eligibility, err := s.evaluate(ctx, quiz, studentID)
	if err != nil {
		return nil, err
	}
	if !eligibility.Allowed {
		s.metrics.RecordQuizAttempt("rejected")
		return nil, appErrors.WithDetails(appErrors.ErrAttemptNotAllowed, eligibility.Reason, eligibility)
	}

	score, percentage, answers := quiz.Grade(req.Answers)
	submission := &models.QuizSubmission{
		QuizID:        quiz.ID,
		StudentID:     studentID,
		AttemptNumber: eligibility.NextAttemptNumber,
		Answers:       answers,
		Score:         score,
		TotalMarks:    quiz.TotalMarks,
		Percentage:    percentage,
		SubmittedAt:   s.clock.Now(),
	}
	if err := s.repo.CreateSubmission(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "another attempt was submitted at the same time")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save submission")
	}

	outcome := "failed"
	if percentage >= quiz.MinScoreToPass {
		outcome = "passed"
	}
	s.metrics.RecordQuizAttempt(outcome)
	s.logger.Info("quiz attempt graded",
		zap.String("quiz_id", quiz.ID),
		zap.String("student_id", studentID),
		zap.Int("attempt", submission.AttemptNumber),
		zap.Float64("percentage", percentage),
	)

	if s.notifier != nil {
		msg := models.NotificationMessage{
			Recipients: []string{studentID},
			Type:       models.NotificationQuizGraded,
			Title:      "Quiz graded: " + quiz.Title,
			Body:       fmt.Sprintf("You scored %d/%d (%.1f%%).", score, quiz.TotalMarks, percentage),
			Data: map[string]string{
				"quiz_id":       quiz.ID,
				"submission_id": submission.ID,
				"attempt":       strconv.Itoa(submission.AttemptNumber),
			},
		}
		if err := s.notifier.Publish(ctx, msg); err != nil {
			s.logger.Warn("failed to publish notification", zap.String("type", string(msg.Type)), zap.Error(err))
		}
	}

	return submission, nil
}

// ListSubmissions returns graded attempts, restricted to one student when studentID is set.
func (s *QuizService) ListSubmissions(ctx context.Context, quizID, studentID string) ([]models.QuizSubmission, error) {
	if _, err := s.quiz(ctx, quizID); err != nil {
		return nil, err
	}
	submissions, err := s.repo.ListSubmissions(ctx, quizID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

func (s *QuizService) evaluate(ctx context.Context, quiz *models.Quiz, studentID string) (models.Eligibility, error) {
	course, err := s.course(ctx, quiz.CourseID)
	if err != nil {
		return models.Eligibility{}, err
	}
	if !course.HasStudent(studentID) {
		return models.Eligibility{}, appErrors.Clone(appErrors.ErrForbidden, "student is not on the course roster")
	}
	history, err := s.repo.AttemptHistory(ctx, quiz.ID, studentID)
	if err != nil {
		return models.Eligibility{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempt history")
	}
	return models.EvaluateEligibility(quiz, history, s.clock.Now()), nil
}

func (s *QuizService) quiz(ctx context.Context, id string) (*models.Quiz, error) {
	quiz, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}
	return quiz, nil
}

func (s *QuizService) course(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}
