package domain

import (
	"math"
	"time"
)

// TotalQuestions is fixed for every session; percentages are always computed against it.
const TotalQuestions = 20

// ResetConfirmation must be passed verbatim to the admin reset operation.
const ResetConfirmation = "YES_DELETE_ALL_DATA"

// SessionStatus is the lifecycle state of a quiz attempt.
type SessionStatus string

const (
	// StatusNotStarted is implicit: the user has no session row at all.
	StatusNotStarted SessionStatus = "not_started"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	// StatusAbandoned is assigned by the sweeper to stale in-progress sessions.
	StatusAbandoned SessionStatus = "abandoned"
)

// Valid reports whether s is a status a stored session can hold.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// DisplayStatus is the human label shown on the live leaderboard.
func (s SessionStatus) DisplayStatus() string {
	switch s {
	case StatusCompleted:
		return "Completed"
	case StatusInProgress:
		return "In Progress"
	case StatusAbandoned:
		return "Abandoned"
	default:
		return "Not Started"
	}
}

// User is a registered student. Unique per (Name, USN).
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	USN       string    `json:"usn"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserSummary is the admin listing row for a user.
type UserSummary struct {
	User
	QuizAttempts int        `json:"quizAttempts"`
	BestScore    *int       `json:"bestScore,omitempty"`
	LastAttempt  *time.Time `json:"lastAttempt,omitempty"`
}

// Session is one quiz attempt. Name and USN are joined from the owning user.
type Session struct {
	ID             string        `json:"sessionId"`
	UserID         int64         `json:"userId"`
	Name           string        `json:"name,omitempty"`
	USN            string        `json:"usn,omitempty"`
	Status         SessionStatus `json:"status"`
	TotalQuestions int           `json:"totalQuestions"`
	CorrectAnswers int           `json:"correctAnswers"`
	Percentage     int           `json:"percentage"`
	TimeTaken      int           `json:"timeTaken"`
	StartedAt      time.Time     `json:"startedAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
	Answered       int           `json:"questionsAnswered"`
}

// LastActivity is the completion time for finished sessions and the start time otherwise.
func (s Session) LastActivity() time.Time {
	if s.Status == StatusCompleted && s.CompletedAt != nil {
		return *s.CompletedAt
	}
	return s.StartedAt
}

// Answer is an append-only record of one submission.
type Answer struct {
	SessionID      string    `json:"sessionId"`
	QuestionID     string    `json:"questionId"`
	Level          Level     `json:"level"`
	SelectedAnswer int       `json:"selectedAnswer"`
	CorrectAnswer  int       `json:"correctAnswer"`
	IsCorrect      bool      `json:"isCorrect"`
	TimeTaken      int       `json:"timeTaken"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// SessionDetail is a session together with its answers in submission order.
type SessionDetail struct {
	Session
	Answers []Answer `json:"answers"`
}

// Results summarizes a completed attempt for the student.
type Results struct {
	Score          int `json:"score"`
	TotalQuestions int `json:"totalQuestions"`
	Percentage     int `json:"percentage"`
	TimeTaken      int `json:"timeTaken"`
}

// Percentage rounds correct/total*100 half-up. Incomplete attempts are scored
// against the full total, never pro-rated.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(correct)*100/float64(total) + 0.5))
}
