package domain

import "time"

// LeaderboardEntry is a ranked completed session.
type LeaderboardEntry struct {
	Rank           int        `json:"rank"`
	UserID         int64      `json:"userId"`
	SessionID      string     `json:"sessionId"`
	Name           string     `json:"name"`
	USN            string     `json:"usn"`
	Percentage     int        `json:"percentage"`
	Score          int        `json:"score"`
	TotalQuestions int        `json:"totalQuestions"`
	TimeTaken      int        `json:"timeTaken"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// LiveEntry is one row of the live view; users without a session appear as not_started.
type LiveEntry struct {
	Rank           int           `json:"rank"`
	UserID         int64         `json:"userId"`
	SessionID      string        `json:"sessionId,omitempty"`
	Name           string        `json:"name"`
	USN            string        `json:"usn"`
	Status         SessionStatus `json:"status"`
	DisplayStatus  string        `json:"displayStatus"`
	Percentage     int           `json:"percentage"`
	Score          int           `json:"score"`
	TotalQuestions int           `json:"totalQuestions"`
	TimeTaken      *int          `json:"timeTaken,omitempty"`
	Answered       int           `json:"questionsAnswered"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
}

// LiveSummary counts participants by status for the live view.
type LiveSummary struct {
	TotalRegistered int `json:"totalRegistered"`
	Completed       int `json:"completed"`
	InProgress      int `json:"inProgress"`
	NotStarted      int `json:"notStarted"`
	AverageScore    int `json:"averageScore"`
	HighestScore    int `json:"highestScore"`
}

// LiveBoard is the live view snapshot.
type LiveBoard struct {
	Entries []LiveEntry `json:"liveData"`
	Summary LiveSummary `json:"summary"`
}

// Page is a paginated slice of the top-N ranking.
type Page struct {
	Entries []LeaderboardEntry `json:"leaderboard"`
	Total   int                `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
	HasMore bool               `json:"hasMore"`
}

// UserRank is one user's position plus neighbours for contextual display.
type UserRank struct {
	Session Session            `json:"userSession"`
	Rank    int                `json:"rank"`
	Context []LeaderboardEntry `json:"contextUsers"`
}

// Update reasons carried by LeaderboardUpdate.
const (
	UpdateCompleted = "completed"
	UpdateReset     = "reset"
)

// LeaderboardUpdate is the payload of the realtime leaderboard-update event.
type LeaderboardUpdate struct {
	Reason         string    `json:"reason"`
	Name           string    `json:"name,omitempty"`
	USN            string    `json:"usn,omitempty"`
	Percentage     int       `json:"percentage"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	At             time.Time `json:"at"`
}
