// Package sqlite is a single-file app.Store for running one classroom
// without a database server.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

var _ app.Store = (*Store)(nil)

// Open connects to path and applies the schema. Writes are serialized through a
// single connection, which also keeps ":memory:" databases alive.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Debugf("sqlite store ready at %s", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const userColumns = `id, name, usn, email, created_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.USN, &u.Email, &u.CreatedAt)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, err
}

func (s *Store) UpsertUser(ctx context.Context, name, usn, email string, now time.Time) (domain.User, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (name, usn, email, created_at) VALUES (?, ?, ?, ?)`,
		name, usn, email, now.UTC())
	if err != nil {
		return domain.User{}, false, fmt.Errorf("insert user: %w", err)
	}
	n, _ := res.RowsAffected()
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE name = ? AND usn = ?`, name, usn))
	if err != nil {
		return domain.User{}, false, fmt.Errorf("select user: %w", err)
	}
	return user, n == 1, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const sessionSelect = `
	SELECT s.session_id, s.user_id, u.name, u.usn, s.status, s.total_questions,
	       s.correct_answers, s.percentage, s.time_taken, s.started_at, s.completed_at,
	       (SELECT COUNT(*) FROM quiz_answers a WHERE a.session_id = s.session_id)
	FROM quiz_sessions s
	JOIN users u ON u.id = s.user_id`

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var (
		sess      domain.Session
		status    string
		completed sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.USN, &status, &sess.TotalQuestions,
		&sess.CorrectAnswers, &sess.Percentage, &sess.TimeTaken, &sess.StartedAt, &completed,
		&sess.Answered)
	sess.Status = domain.SessionStatus(status)
	sess.StartedAt = sess.StartedAt.UTC()
	if completed.Valid {
		at := completed.Time.UTC()
		sess.CompletedAt = &at
	}
	return sess, err
}

func (s *Store) CreateSession(ctx context.Context, userID int64, sessionID string, now time.Time) (domain.Session, bool, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return domain.Session{}, false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO quiz_sessions (session_id, user_id, status, total_questions, started_at)
		VALUES (?, ?, 'in_progress', ?, ?)`,
		sessionID, userID, domain.TotalQuestions, now.UTC())
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("insert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		sess, err := s.GetSession(ctx, sessionID)
		return sess, true, err
	}

	sess, err := scanSession(s.db.QueryRowContext(ctx, sessionSelect+`
		WHERE s.user_id = ? AND s.status IN ('in_progress', 'completed')
		LIMIT 1`, userID))
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("select existing session: %w", err)
	}
	return sess, false, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, sessionSelect+` WHERE s.session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *Store) FindSession(ctx context.Context, userID int64, status domain.SessionStatus) (domain.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, sessionSelect+`
		WHERE s.user_id = ? AND s.status = ?
		ORDER BY s.started_at DESC
		LIMIT 1`, userID, string(status)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, status domain.SessionStatus) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, sessionSelect+`
		WHERE ?1 = '' OR s.status = ?1
		ORDER BY s.started_at, s.id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) sessionStatus(ctx context.Context, tx *sql.Tx, sessionID string) (domain.SessionStatus, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM quiz_sessions WHERE session_id = ?`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session status: %w", err)
	}
	return domain.SessionStatus(status), nil
}

func (s *Store) AppendAnswer(ctx context.Context, a domain.Answer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	status, err := s.sessionStatus(ctx, tx, a.SessionID)
	if err != nil {
		return err
	}
	if status != domain.StatusInProgress {
		return domain.ErrSessionNotActive
	}
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO quiz_answers (session_id, question_id, level, selected_answer, correct_answer, is_correct, time_taken, answered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.QuestionID, string(a.Level), a.SelectedAnswer, a.CorrectAnswer, a.IsCorrect, a.TimeTaken, a.AnsweredAt.UTC())
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAnswerExists
	}
	return tx.Commit()
}

const answerColumns = `a.session_id, a.question_id, a.level, a.selected_answer, a.correct_answer, a.is_correct, a.time_taken, a.answered_at`

func (s *Store) queryAnswers(ctx context.Context, query string, args ...any) ([]domain.Answer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := []domain.Answer{}
	for rows.Next() {
		var (
			a     domain.Answer
			level string
		)
		if err := rows.Scan(&a.SessionID, &a.QuestionID, &level, &a.SelectedAnswer, &a.CorrectAnswer, &a.IsCorrect, &a.TimeTaken, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.Level = domain.Level(level)
		a.AnsweredAt = a.AnsweredAt.UTC()
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func (s *Store) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.queryAnswers(ctx, `SELECT `+answerColumns+` FROM quiz_answers a WHERE a.session_id = ? ORDER BY a.answered_at, a.id`, sessionID)
}

func (s *Store) ListAnswersByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.Answer, error) {
	return s.queryAnswers(ctx, `
		SELECT `+answerColumns+`
		FROM quiz_answers a
		JOIN quiz_sessions s ON s.session_id = a.session_id
		WHERE s.status = ?
		ORDER BY a.id`, string(status))
}

func (s *Store) CompleteSession(ctx context.Context, sessionID string, timeTaken int, now time.Time) (domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	status, err := s.sessionStatus(ctx, tx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if status != domain.StatusInProgress {
		return domain.Session{}, domain.ErrSessionNotActive
	}

	var correct int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM quiz_answers WHERE session_id = ? AND is_correct`, sessionID).Scan(&correct); err != nil {
		return domain.Session{}, fmt.Errorf("count correct answers: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE quiz_sessions
		SET status = 'completed', correct_answers = ?, percentage = ?, time_taken = ?, completed_at = ?
		WHERE session_id = ?`,
		correct, domain.Percentage(correct, domain.TotalQuestions), timeTaken, now.UTC(), sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("complete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("commit: %w", err)
	}
	return s.GetSession(ctx, sessionID)
}

func (s *Store) CountRanksAhead(ctx context.Context, percentage, timeTaken int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM quiz_sessions
		WHERE status = 'completed'
		  AND (percentage > ?1 OR (percentage = ?1 AND time_taken < ?2))`,
		percentage, timeTaken).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ranks ahead: %w", err)
	}
	return n, nil
}

func (s *Store) AbandonStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE quiz_sessions SET status = 'abandoned'
		WHERE status = 'in_progress' AND started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("abandon stale sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM admin_settings`)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	out := domain.DefaultSettings()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) PutSetting(ctx context.Context, key, value string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now.UTC())
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{`DELETE FROM quiz_answers`, `DELETE FROM quiz_sessions`, `DELETE FROM users`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return tx.Commit()
}
