package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/school-timetable-api/internal/models"
)

const (
	quizColumns       = `id, course_id, title, description, questions, total_marks, visible_from, visible_until, max_attempts, allow_retake, min_score_to_pass, days_between_attempts, created_by, created_at, updated_at`
	submissionColumns = `id, quiz_id, student_id, attempt_number, answers, score, total_marks, percentage, submitted_at`
)

// QuizRepository persists quizzes and graded submissions.
type QuizRepository struct {
	db *sqlx.DB
}

// NewQuizRepository constructs a QuizRepository.
func NewQuizRepository(db *sqlx.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

// Create inserts a quiz, encoding its questions as JSON.
func (r *QuizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now
	}
	quiz.UpdatedAt = now

	raw, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("encode quiz questions: %w", err)
	}
	quiz.QuestionsJSON = types.JSONText(raw)

	const query = `INSERT INTO quizzes (` + quizColumns + `)
VALUES (:id, :course_id, :title, :description, :questions, :total_marks, :visible_from, :visible_until, :max_attempts, :allow_retake, :min_score_to_pass, :days_between_attempts, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, quiz); err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

// FindByID returns a quiz with decoded questions.
func (r *QuizRepository) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	var quiz models.Quiz
	if err := r.db.GetContext(ctx, &quiz, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if err := decodeQuestions(&quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// ListByCourse returns a course's quizzes, newest first.
func (r *QuizRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Quiz, error) {
	quizzes := []models.Quiz{}
	if err := r.db.SelectContext(ctx, &quizzes, `SELECT `+quizColumns+` FROM quizzes WHERE course_id = $1 ORDER BY created_at DESC`, courseID); err != nil {
		return nil, fmt.Errorf("list quizzes by course: %w", err)
	}
	for i := range quizzes {
		if err := decodeQuestions(&quizzes[i]); err != nil {
			return nil, err
		}
	}
	return quizzes, nil
}

// AttemptHistory summarises a student's previous submissions for a quiz.
func (r *QuizRepository) AttemptHistory(ctx context.Context, quizID, studentID string) (models.AttemptHistory, error) {
	const query = `SELECT COUNT(*) AS attempt_count, COALESCE(MAX(percentage), 0) AS best_percentage, MAX(submitted_at) AS last_submitted_at
FROM quiz_submissions WHERE quiz_id = $1 AND student_id = $2`
	var history models.AttemptHistory
	if err := r.db.GetContext(ctx, &history, query, quizID, studentID); err != nil {
		return models.AttemptHistory{}, fmt.Errorf("load attempt history: %w", err)
	}
	return history, nil
}

// CreateSubmission stores a graded attempt. A concurrent attempt with the same number yields ErrDuplicate.
func (r *QuizRepository) CreateSubmission(ctx context.Context, submission *models.QuizSubmission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(submission.Answers)
	if err != nil {
		return fmt.Errorf("encode submission answers: %w", err)
	}
	submission.AnswersJSON = types.JSONText(raw)

	const query = `INSERT INTO quiz_submissions (` + submissionColumns + `)
VALUES (:id, :quiz_id, :student_id, :attempt_number, :answers, :score, :total_marks, :percentage, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("create submission: %w", ErrDuplicate)
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// ListSubmissions returns submissions for a quiz, optionally for one student, by attempt order.
func (r *QuizRepository) ListSubmissions(ctx context.Context, quizID, studentID string) ([]models.QuizSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM quiz_submissions WHERE quiz_id = $1`
	args := []interface{}{quizID}
	if studentID != "" {
		query += ` AND student_id = $2`
		args = append(args, studentID)
	}
	query += ` ORDER BY student_id ASC, attempt_number ASC`

	submissions := []models.QuizSubmission{}
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	for i := range submissions {
		if len(submissions[i].AnswersJSON) == 0 {
			continue
		}
		if err := json.Unmarshal(submissions[i].AnswersJSON, &submissions[i].Answers); err != nil {
			return nil, fmt.Errorf("decode submission answers: %w", err)
		}
	}
	return submissions, nil
}

func decodeQuestions(quiz *models.Quiz) error {
	if len(quiz.QuestionsJSON) == 0 {
		quiz.Questions = []models.QuizQuestion{}
		return nil
	}
	if err := json.Unmarshal(quiz.QuestionsJSON, &quiz.Questions); err != nil {
		return fmt.Errorf("decode quiz questions: %w", err)
	}
	return nil
}
