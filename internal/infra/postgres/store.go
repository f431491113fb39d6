package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

const foreignKeyViolation = "23503"

// Store is the relational app.Store. Uniqueness and state guards are enforced
// by the schema and row locks, so concurrent instances stay consistent.
type Store struct {
	pool *pgxpool.Pool
}

var _ app.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

const userColumns = `id, name, usn, email, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.USN, &u.Email, &u.CreatedAt)
	return u, err
}

func (s *Store) UpsertUser(ctx context.Context, name, usn, email string, now time.Time) (domain.User, bool, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (name, usn, email, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, usn) DO NOTHING
		RETURNING `+userColumns, name, usn, email, now))
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, false, fmt.Errorf("insert user: %w", err)
	}
	user, err = scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE name = $1 AND usn = $2`, name, usn))
	if err != nil {
		return domain.User{}, false, fmt.Errorf("select user: %w", err)
	}
	return user, false, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
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

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		sess   domain.Session
		status string
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.USN, &status, &sess.TotalQuestions,
		&sess.CorrectAnswers, &sess.Percentage, &sess.TimeTaken, &sess.StartedAt, &sess.CompletedAt,
		&sess.Answered)
	sess.Status = domain.SessionStatus(status)
	return sess, err
}

func (s *Store) CreateSession(ctx context.Context, userID int64, sessionID string, now time.Time) (domain.Session, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_sessions (session_id, user_id, status, total_questions, started_at)
		VALUES ($1, $2, 'in_progress', $3, $4)
		ON CONFLICT (user_id) WHERE status IN ('in_progress', 'completed') DO NOTHING`,
		sessionID, userID, domain.TotalQuestions, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Session{}, false, domain.ErrUserNotFound
		}
		return domain.Session{}, false, fmt.Errorf("insert session: %w", err)
	}
	if tag.RowsAffected() == 1 {
		sess, err := s.GetSession(ctx, sessionID)
		return sess, true, err
	}

	sess, err := scanSession(s.pool.QueryRow(ctx, sessionSelect+`
		WHERE s.user_id = $1 AND s.status IN ('in_progress', 'completed')
		LIMIT 1`, userID))
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("select existing session: %w", err)
	}
	return sess, false, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, sessionSelect+` WHERE s.session_id = $1`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *Store) FindSession(ctx context.Context, userID int64, status domain.SessionStatus) (domain.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, sessionSelect+`
		WHERE s.user_id = $1 AND s.status = $2
		ORDER BY s.started_at DESC
		LIMIT 1`, userID, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, status domain.SessionStatus) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx, sessionSelect+`
		WHERE $1 = '' OR s.status = $1
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

func (s *Store) AppendAnswer(ctx context.Context, a domain.Answer) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM quiz_sessions WHERE session_id = $1 FOR SHARE`, a.SessionID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	if domain.SessionStatus(status) != domain.StatusInProgress {
		return domain.ErrSessionNotActive
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO quiz_answers (session_id, question_id, level, selected_answer, correct_answer, is_correct, time_taken, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, level, question_id) DO NOTHING`,
		a.SessionID, a.QuestionID, string(a.Level), a.SelectedAnswer, a.CorrectAnswer, a.IsCorrect, a.TimeTaken, a.AnsweredAt)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAnswerExists
	}
	return tx.Commit(ctx)
}

const answerColumns = `a.session_id, a.question_id, a.level, a.selected_answer, a.correct_answer, a.is_correct, a.time_taken, a.answered_at`

func (s *Store) queryAnswers(ctx context.Context, query string, args ...interface{}) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func (s *Store) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.queryAnswers(ctx, `SELECT `+answerColumns+` FROM quiz_answers a WHERE a.session_id = $1 ORDER BY a.answered_at, a.id`, sessionID)
}

func (s *Store) ListAnswersByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.Answer, error) {
	return s.queryAnswers(ctx, `
		SELECT `+answerColumns+`
		FROM quiz_answers a
		JOIN quiz_sessions s ON s.session_id = a.session_id
		WHERE s.status = $1
		ORDER BY a.id`, string(status))
}

func (s *Store) CompleteSession(ctx context.Context, sessionID string, timeTaken int, now time.Time) (domain.Session, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Session{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM quiz_sessions WHERE session_id = $1 FOR UPDATE`, sessionID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("lock session: %w", err)
	}
	if domain.SessionStatus(status) != domain.StatusInProgress {
		return domain.Session{}, domain.ErrSessionNotActive
	}

	var correct int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM quiz_answers WHERE session_id = $1 AND is_correct`, sessionID).Scan(&correct); err != nil {
		return domain.Session{}, fmt.Errorf("count correct answers: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE quiz_sessions
		SET status = 'completed', correct_answers = $2, percentage = $3, time_taken = $4, completed_at = $5
		WHERE session_id = $1`,
		sessionID, correct, domain.Percentage(correct, domain.TotalQuestions), timeTaken, now)
	if err != nil {
		return domain.Session{}, fmt.Errorf("complete session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Session{}, fmt.Errorf("commit: %w", err)
	}
	return s.GetSession(ctx, sessionID)
}

func (s *Store) CountRanksAhead(ctx context.Context, percentage, timeTaken int) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM quiz_sessions
		WHERE status = 'completed'
		  AND (percentage > $1 OR (percentage = $1 AND time_taken < $2))`,
		percentage, timeTaken).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ranks ahead: %w", err)
	}
	return n, nil
}

func (s *Store) AbandonStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quiz_sessions SET status = 'abandoned'
		WHERE status = 'in_progress' AND started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("abandon stale sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM admin_settings`)
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	for _, stmt := range []string{`DELETE FROM quiz_answers`, `DELETE FROM quiz_sessions`, `DELETE FROM users`} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return tx.Commit(ctx)
}
