// Package slots implements app.Store over a handful of named key/value slots,
// each holding one JSON document. Sessions (with their answers) are the
// authoritative slot; leaderboard and analytics are projections written when a
// session completes and served through app.RankingProjection and app.AnswerProjection.
package slots

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

const (
	SlotUsers       = "quiz_users"
	SlotSessions    = "quiz_sessions"
	SlotLeaderboard = "quiz_leaderboard"
	SlotAnalytics   = "quiz_analytics"
	SlotSettings    = "quiz_settings"
)

// OriginRemote marks change events that arrived from another process.
const OriginRemote = "remote"

// Backend persists raw slot documents. Update must apply fn atomically with
// respect to other Updates of the same slot; a nil document means the slot is empty.
// When fn returns an error nothing is written and the error is returned unchanged.
type Backend interface {
	Load(ctx context.Context, slot string) ([]byte, error)
	Update(ctx context.Context, slot string, fn func(current []byte) ([]byte, error)) error
	Delete(ctx context.Context, slots ...string) error
}

// Change is emitted after a slot has been written.
type Change struct {
	Slot   string `json:"slot"`
	Origin string `json:"origin"`
}

// usersDoc keeps NextID across resets so user IDs are never reused.
type usersDoc struct {
	NextID int64         `json:"nextId"`
	Users  []domain.User `json:"users"`
}

type storedSession struct {
	domain.Session
	Answers []domain.Answer `json:"answers"`
}

type sessionsDoc struct {
	Sessions []storedSession `json:"sessions"`
}

type analyticsDoc struct {
	Questions map[string]*app.QuestionCounter `json:"questions"`
}

// Store is an observable app.Store. Subscribers are invoked synchronously
// after every local mutation and for remote changes passed to Notify.
type Store struct {
	backend Backend
	origin  string

	mu          sync.RWMutex
	nextSub     int
	subscribers map[int]func(Change)
}

func New(backend Backend) *Store {
	return NewWithOrigin(backend, "local")
}

// NewWithOrigin tags emitted changes with origin.
func NewWithOrigin(backend Backend, origin string) *Store {
	return &Store{
		backend:     backend,
		origin:      origin,
		subscribers: make(map[int]func(Change)),
	}
}

var (
	_ app.Store             = (*Store)(nil)
	_ app.RankingProjection = (*Store)(nil)
	_ app.AnswerProjection  = (*Store)(nil)
)

// Subscribe registers fn for change events and returns the unsubscribe func.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// Notify delivers a change that happened outside this Store (another process).
func (s *Store) Notify(c Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (s *Store) emit(slots ...string) {
	for _, slot := range slots {
		s.Notify(Change{Slot: slot, Origin: s.origin})
	}
}

func load[T any](ctx context.Context, b Backend, slot string) (T, error) {
	var doc T
	raw, err := b.Load(ctx, slot)
	if err != nil {
		return doc, fmt.Errorf("load %s: %w", slot, err)
	}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode %s: %w", slot, err)
	}
	return doc, nil
}

// update runs fn over the decoded slot document inside one backend Update.
func update[T any](ctx context.Context, b Backend, slot string, fn func(doc *T) error) error {
	return b.Update(ctx, slot, func(current []byte) ([]byte, error) {
		var doc T
		if len(current) > 0 {
			if err := json.Unmarshal(current, &doc); err != nil {
				return nil, fmt.Errorf("decode %s: %w", slot, err)
			}
		}
		if err := fn(&doc); err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	})
}

func (s *Store) UpsertUser(ctx context.Context, name, usn, email string, now time.Time) (domain.User, bool, error) {
	var (
		user    domain.User
		created bool
	)
	err := update(ctx, s.backend, SlotUsers, func(doc *usersDoc) error {
		created = false
		for _, u := range doc.Users {
			if u.Name == name && u.USN == usn {
				user = u
				return nil
			}
		}
		doc.NextID++
		user = domain.User{ID: doc.NextID, Name: name, USN: usn, Email: email, CreatedAt: now}
		doc.Users = append(doc.Users, user)
		created = true
		return nil
	})
	if err != nil {
		return domain.User{}, false, err
	}
	if created {
		s.emit(SlotUsers)
	}
	return user, created, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	doc, err := load[usersDoc](ctx, s.backend, SlotUsers)
	if err != nil {
		return domain.User{}, err
	}
	for _, u := range doc.Users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	doc, err := load[usersDoc](ctx, s.backend, SlotUsers)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, len(doc.Users))
	copy(out, doc.Users)
	return out, nil
}

func (s *Store) CreateSession(ctx context.Context, userID int64, sessionID string, now time.Time) (domain.Session, bool, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return domain.Session{}, false, err
	}

	var (
		session domain.Session
		created bool
	)
	err = update(ctx, s.backend, SlotSessions, func(doc *sessionsDoc) error {
		created = false
		for _, st := range doc.Sessions {
			if st.UserID == userID && (st.Status == domain.StatusInProgress || st.Status == domain.StatusCompleted) {
				session = withAnswered(st)
				return nil
			}
		}
		session = domain.Session{
			ID:             sessionID,
			UserID:         userID,
			Name:           user.Name,
			USN:            user.USN,
			Status:         domain.StatusInProgress,
			TotalQuestions: domain.TotalQuestions,
			StartedAt:      now,
		}
		doc.Sessions = append(doc.Sessions, storedSession{Session: session, Answers: []domain.Answer{}})
		created = true
		return nil
	})
	if err != nil {
		return domain.Session{}, false, err
	}
	if created {
		s.emit(SlotSessions)
	}
	return session, created, nil
}

func withAnswered(st storedSession) domain.Session {
	sess := st.Session
	sess.Answered = len(st.Answers)
	return sess
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	doc, err := load[sessionsDoc](ctx, s.backend, SlotSessions)
	if err != nil {
		return domain.Session{}, err
	}
	for _, st := range doc.Sessions {
		if st.ID == sessionID {
			return withAnswered(st), nil
		}
	}
	return domain.Session{}, domain.ErrSessionNotFound
}

func (s *Store) FindSession(ctx context.Context, userID int64, status domain.SessionStatus) (domain.Session, error) {
	doc, err := load[sessionsDoc](ctx, s.backend, SlotSessions)
	if err != nil {
		return domain.Session{}, err
	}
	var (
		found domain.Session
		ok    bool
	)
	for _, st := range doc.Sessions {
		if st.UserID != userID || st.Status != status {
			continue
		}
		if !ok || st.StartedAt.After(found.StartedAt) {
			found, ok = withAnswered(st), true
		}
	}
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return found, nil
}

func (s *Store) ListSessions(ctx context.Context, status domain.SessionStatus) ([]domain.Session, error) {
	doc, err := load[sessionsDoc](ctx, s.backend, SlotSessions)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(doc.Sessions))
	for _, st := range doc.Sessions {
		if status == "" || st.Status == status {
			out = append(out, withAnswered(st))
		}
	}
	return out, nil
}

func (s *Store) AppendAnswer(ctx context.Context, answer domain.Answer) error {
	err := update(ctx, s.backend, SlotSessions, func(doc *sessionsDoc) error {
		for i := range doc.Sessions {
			st := &doc.Sessions[i]
			if st.ID != answer.SessionID {
				continue
			}
			if st.Status != domain.StatusInProgress {
				return domain.ErrSessionNotActive
			}
			for _, a := range st.Answers {
				if a.Level == answer.Level && a.QuestionID == answer.QuestionID {
					return domain.ErrAnswerExists
				}
			}
			st.Answers = append(st.Answers, answer)
			return nil
		}
		return domain.ErrSessionNotFound
	})
	if err != nil {
		return err
	}

	s.emit(SlotSessions)
	return nil
}

func (s *Store) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	doc, err := load[sessionsDoc](ctx, s.backend, SlotSessions)
	if err != nil {
		return nil, err
	}
	for _, st := range doc.Sessions {
		if st.ID == sessionID {
			out := make([]domain.Answer, len(st.Answers))
			copy(out, st.Answers)
			return out, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (s *Store) ListAnswersByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.Answer, error) {
	doc, err := load[sessionsDoc](ctx, s.backend, SlotSessions)
	if err != nil {
		return nil, err
	}
	out := []domain.Answer{}
	for _, st := range doc.Sessions {
		if st.Status == status {
			out = append(out, st.Answers...)
		}
	}
	return out, nil
}

func (s *Store) CompleteSession(ctx context.Context, sessionID string, timeTaken int, now time.Time) (domain.Session, error) {
	var (
		session domain.Session
		answers []domain.Answer
	)
	err := update(ctx, s.backend, SlotSessions, func(doc *sessionsDoc) error {
		idx := -1
		for i := range doc.Sessions {
			if doc.Sessions[i].ID == sessionID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.ErrSessionNotFound
		}
		st := &doc.Sessions[idx]
		if st.Status != domain.StatusInProgress {
			return domain.ErrSessionNotActive
		}
		correct := 0
		for _, a := range st.Answers {
			if a.IsCorrect {
				correct++
			}
		}
		completedAt := now
		st.Status = domain.StatusCompleted
		st.CorrectAnswers = correct
		st.Percentage = domain.Percentage(correct, domain.TotalQuestions)
		st.TimeTaken = timeTaken
		st.CompletedAt = &completedAt
		session = withAnswered(*st)
		answers = append(answers[:0], st.Answers...)
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}

	// Projections. Each update folds in only this session, so concurrent
	// completions commute.
	err = update(ctx, s.backend, SlotLeaderboard, func(doc *[]domain.LeaderboardEntry) error {
		*doc = app.InsertRanked(*doc, session)
		return nil
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("update leaderboard projection: %w", err)
	}
	err = update(ctx, s.backend, SlotAnalytics, func(doc *analyticsDoc) error {
		if doc.Questions == nil {
			doc.Questions = make(map[string]*app.QuestionCounter)
		}
		for _, a := range answers {
			key := string(a.Level) + "/" + a.QuestionID
			c, ok := doc.Questions[key]
			if !ok {
				c = &app.QuestionCounter{Level: a.Level, QuestionID: a.QuestionID}
				doc.Questions[key] = c
			}
			c.Add(a)
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("update analytics projection: %w", err)
	}
	s.emit(SlotSessions, SlotLeaderboard, SlotAnalytics)
	return session, nil
}

func (s *Store) CountRanksAhead(ctx context.Context, percentage, timeTaken int) (int, error) {
	sessions, err := s.ListSessions(ctx, domain.StatusCompleted)
	if err != nil {
		return 0, err
	}
	return app.CountAhead(sessions, percentage, timeTaken), nil
}

func (s *Store) AbandonStale(ctx context.Context, cutoff time.Time) (int, error) {
	n := 0
	err := update(ctx, s.backend, SlotSessions, func(doc *sessionsDoc) error {
		n = 0
		for i := range doc.Sessions {
			st := &doc.Sessions[i]
			if st.Status == domain.StatusInProgress && st.StartedAt.Before(cutoff) {
				st.Status = domain.StatusAbandoned
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.emit(SlotSessions)
	}
	return n, nil
}

// Leaderboard returns the ranking materialized at the last completion.
func (s *Store) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	entries, err := load[[]domain.LeaderboardEntry](ctx, s.backend, SlotLeaderboard)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	return entries, nil
}

// QuestionCounters returns the per-question tallies of completed sessions.
func (s *Store) QuestionCounters(ctx context.Context) ([]app.QuestionCounter, error) {
	doc, err := load[analyticsDoc](ctx, s.backend, SlotAnalytics)
	if err != nil {
		return nil, err
	}
	out := make([]app.QuestionCounter, 0, len(doc.Questions))
	for _, c := range doc.Questions {
		out = append(out, *c)
	}
	return out, nil
}

func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	stored, err := load[map[string]string](ctx, s.backend, SlotSettings)
	if err != nil {
		return nil, err
	}
	out := domain.DefaultSettings()
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

func (s *Store) PutSetting(ctx context.Context, key, value string, _ time.Time) error {
	err := update(ctx, s.backend, SlotSettings, func(doc *map[string]string) error {
		if *doc == nil {
			*doc = make(map[string]string)
		}
		(*doc)[key] = value
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(SlotSettings)
	return nil
}

// Reset drops sessions and projections and empties the users slot. Settings
// and the user ID counter survive.
func (s *Store) Reset(ctx context.Context) error {
	err := update(ctx, s.backend, SlotUsers, func(doc *usersDoc) error {
		doc.Users = []domain.User{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset users: %w", err)
	}
	cleared := []string{SlotSessions, SlotLeaderboard, SlotAnalytics}
	if err := s.backend.Delete(ctx, cleared...); err != nil {
		return fmt.Errorf("reset slots: %w", err)
	}
	s.emit(append([]string{SlotUsers}, cleared...)...)
	return nil
}
