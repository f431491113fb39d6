package app

import (
	"context"
	"time"

	"classroom-quiz-service/internal/domain"
)

// Store abstracts how users, sessions and answers are persisted (postgres, sqlite, slots).
//
// Uniqueness and state guards live here, not in the services: CreateSession and
// AppendAnswer must be atomic with respect to concurrent callers.
type Store interface {
	// UpsertUser creates the (name, usn) user or returns the existing one.
	UpsertUser(ctx context.Context, name, usn, email string, now time.Time) (domain.User, bool, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)

	// CreateSession inserts an in_progress session unless the user already holds
	// an in_progress or completed one, in which case that session is returned with created=false.
	CreateSession(ctx context.Context, userID int64, sessionID string, now time.Time) (domain.Session, bool, error)
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	// FindSession returns the user's most recent session with the given status.
	FindSession(ctx context.Context, userID int64, status domain.SessionStatus) (domain.Session, error)
	// ListSessions returns sessions joined with user identity; an empty status means all.
	ListSessions(ctx context.Context, status domain.SessionStatus) ([]domain.Session, error)

	// AppendAnswer records an answer only while the session is in_progress.
	AppendAnswer(ctx context.Context, answer domain.Answer) error
	ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error)
	// ListAnswersByStatus returns answers belonging to sessions with the given status.
	ListAnswersByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.Answer, error)

	// CompleteSession recounts correct answers and finalizes the session exactly once.
	CompleteSession(ctx context.Context, sessionID string, timeTaken int, now time.Time) (domain.Session, error)
	// CountRanksAhead counts completed sessions strictly ahead of (percentage, timeTaken).
	CountRanksAhead(ctx context.Context, percentage, timeTaken int) (int, error)
	// AbandonStale marks in_progress sessions started before cutoff as abandoned.
	AbandonStale(ctx context.Context, cutoff time.Time) (int, error)

	Settings(ctx context.Context) (map[string]string, error)
	PutSetting(ctx context.Context, key, value string, now time.Time) error

	// Reset erases every user, session and answer. Settings survive.
	Reset(ctx context.Context) error
}

// RankingProjection is implemented by stores that materialize the completed
// ranking when a session completes. LeaderboardService reads it instead of
// ranking every completed session on each request.
type RankingProjection interface {
	Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// AnswerProjection is implemented by stores that tally answers of completed
// sessions when a session completes.
type AnswerProjection interface {
	QuestionCounters(ctx context.Context) ([]QuestionCounter, error)
}

// Publisher fans leaderboard updates out to live observers. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, update domain.LeaderboardUpdate) error
}

// NopPublisher discards updates.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.LeaderboardUpdate) error { return nil }
