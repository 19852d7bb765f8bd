package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// UnansweredOption marks a question the student skipped.
const UnansweredOption = -1

// RetakePolicy governs whether and when a student may attempt a quiz again.
type RetakePolicy struct {
	AllowRetake         bool    `db:"allow_retake" json:"allow_retake"`
	MinScoreToPass      float64 `db:"min_score_to_pass" json:"min_score_to_pass" validate:"min=0,max=100"`
	DaysBetweenAttempts int     `db:"days_between_attempts" json:"days_between_attempts" validate:"min=0"`
}

// QuizQuestion is a single multiple choice question.
type QuizQuestion struct {
	Text          string   `json:"text" validate:"required"`
	Options       []string `json:"options" validate:"min=2,dive,required"`
	CorrectAnswer *int     `json:"correct_answer,omitempty" validate:"required,min=0"`
	Marks         int      `json:"marks" validate:"min=1"`
}

// Quiz is a question bank attached to a course.
type Quiz struct {
	ID            string         `db:"id" json:"id"`
	CourseID      string         `db:"course_id" json:"course_id"`
	Title         string         `db:"title" json:"title"`
	Description   string         `db:"description" json:"description"`
	Questions     []QuizQuestion `db:"-" json:"questions"`
	QuestionsJSON types.JSONText `db:"questions" json:"-"`
	TotalMarks    int            `db:"total_marks" json:"total_marks"`
	VisibleFrom   *time.Time     `db:"visible_from" json:"visible_from,omitempty"`
	VisibleUntil  *time.Time     `db:"visible_until" json:"visible_until,omitempty"`
	MaxAttempts   int            `db:"max_attempts" json:"max_attempts"`

	RetakePolicy `json:"retake_policy"`

	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SumMarks totals the marks of every question.
func (q *Quiz) SumMarks() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Marks
	}
	return total
}

// WithoutAnswers returns a copy safe to show to students.
func (q Quiz) WithoutAnswers() Quiz {
	questions := make([]QuizQuestion, len(q.Questions))
	for i, question := range q.Questions {
		question.CorrectAnswer = nil
		questions[i] = question
	}
	q.Questions = questions
	return q
}

// GradeAnswer compares a selected option against the stored correct option.
func GradeAnswer(index int, question QuizQuestion, selected int) SubmissionAnswer {
	answer := SubmissionAnswer{QuestionIndex: index, SelectedOption: selected}
	if question.CorrectAnswer != nil && selected != UnansweredOption && selected == *question.CorrectAnswer {
		answer.IsCorrect = true
		answer.MarksAwarded = question.Marks
	}
	return answer
}

// Grade scores answers positionally. Missing answers count as unanswered.
func (q *Quiz) Grade(selected []int) (score int, percentage float64, answers []SubmissionAnswer) {
	answers = make([]SubmissionAnswer, len(q.Questions))
	for i, question := range q.Questions {
		choice := UnansweredOption
		if i < len(selected) {
			choice = selected[i]
		}
		answers[i] = GradeAnswer(i, question, choice)
		score += answers[i].MarksAwarded
	}
	if q.TotalMarks > 0 {
		percentage = 100 * float64(score) / float64(q.TotalMarks)
	}
	return score, percentage, answers
}

// SubmissionAnswer records how one question was answered.
type SubmissionAnswer struct {
	QuestionIndex  int  `json:"question_index"`
	SelectedOption int  `json:"selected_option"`
	IsCorrect      bool `json:"is_correct"`
	MarksAwarded   int  `json:"marks_awarded"`
}

// QuizSubmission is one graded attempt.
type QuizSubmission struct {
	ID            string             `db:"id" json:"id"`
	QuizID        string             `db:"quiz_id" json:"quiz_id"`
	StudentID     string             `db:"student_id" json:"student_id"`
	AttemptNumber int                `db:"attempt_number" json:"attempt_number"`
	Answers       []SubmissionAnswer `db:"-" json:"answers"`
	AnswersJSON   types.JSONText     `db:"answers" json:"-"`
	Score         int                `db:"score" json:"score"`
	TotalMarks    int                `db:"total_marks" json:"total_marks"`
	Percentage    float64            `db:"percentage" json:"percentage"`
	SubmittedAt   time.Time          `db:"submitted_at" json:"submitted_at"`
}

// AttemptHistory summarises a student's previous submissions for one quiz.
type AttemptHistory struct {
	Count           int        `db:"attempt_count"`
	BestPercentage  float64    `db:"best_percentage"`
	LastSubmittedAt *time.Time `db:"last_submitted_at"`
}

// AttemptState names where a (student, quiz) pair sits in the attempt lifecycle.
type AttemptState string

const (
	AttemptStateNoAttempt      AttemptState = "NO_ATTEMPT"
	AttemptStateAttempted      AttemptState = "ATTEMPTED"
	AttemptStateExhausted      AttemptState = "EXHAUSTED"
	AttemptStateCoolingDown    AttemptState = "COOLING_DOWN"
	AttemptStatePassed         AttemptState = "PASSED"
	AttemptStateRetakeDisabled AttemptState = "RETAKE_DISABLED"
	AttemptStateNotOpen        AttemptState = "NOT_OPEN"
	AttemptStateClosed         AttemptState = "CLOSED"
)

// Eligibility is the outcome of evaluating whether a new attempt may start.
type Eligibility struct {
	Allowed           bool         `json:"allowed"`
	State             AttemptState `json:"state"`
	Reason            string       `json:"reason,omitempty"`
	AttemptsUsed      int          `json:"attempts_used"`
	NextAttemptNumber int          `json:"next_attempt_number"`
	AvailableAt       *time.Time   `json:"available_at,omitempty"`
}

// EvaluateEligibility applies the visibility window, attempt cap and retake policy.
func EvaluateEligibility(q *Quiz, history AttemptHistory, now time.Time) Eligibility {
	result := Eligibility{AttemptsUsed: history.Count, NextAttemptNumber: history.Count + 1}
	deny := func(state AttemptState, reason string, availableAt *time.Time) Eligibility {
		result.State = state
		result.Reason = reason
		result.AvailableAt = availableAt
		return result
	}

	if q.VisibleFrom != nil && now.Before(*q.VisibleFrom) {
		return deny(AttemptStateNotOpen, "quiz is not open yet", q.VisibleFrom)
	}
	if q.VisibleUntil != nil && now.After(*q.VisibleUntil) {
		return deny(AttemptStateClosed, "quiz is closed", nil)
	}
	if history.Count >= q.MaxAttempts {
		return deny(AttemptStateExhausted, "maximum attempts reached", nil)
	}
	if history.Count == 0 {
		result.Allowed = true
		result.State = AttemptStateNoAttempt
		return result
	}
	if !q.AllowRetake {
		return deny(AttemptStateRetakeDisabled, "retakes are not allowed for this quiz", nil)
	}
	if history.BestPercentage >= q.MinScoreToPass {
		return deny(AttemptStatePassed, "passing score already achieved", nil)
	}
	if history.LastSubmittedAt != nil {
		cooldown := time.Duration(q.DaysBetweenAttempts) * 24 * time.Hour
		next := history.LastSubmittedAt.Add(cooldown)
		if now.Before(next) {
			return deny(AttemptStateCoolingDown, "retake cool-down has not elapsed", &next)
		}
	}

	result.Allowed = true
	result.State = AttemptStateAttempted
	return result
}

// CreateQuizRequest is the payload for creating a quiz.
type CreateQuizRequest struct {
	CourseID     string         `json:"course_id" validate:"required"`
	Title        string         `json:"title" validate:"required,max=200"`
	Description  string         `json:"description"`
	Questions    []QuizQuestion `json:"questions" validate:"required,min=1,dive"`
	VisibleFrom  *time.Time     `json:"visible_from"`
	VisibleUntil *time.Time     `json:"visible_until"`
	MaxAttempts  int            `json:"max_attempts" validate:"required,min=1"`
	RetakePolicy RetakePolicy   `json:"retake_policy"`
}

// SubmitQuizRequest carries the selected option per question, in question order.
type SubmitQuizRequest struct {
	Answers []int `json:"answers" validate:"required,dive,min=-1"`
}
