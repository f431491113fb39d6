package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"classroom-quiz-service/internal/domain"
)

// QuizConfig tunes QuizService behaviour.
type QuizConfig struct {
	// StrictUSN enforces the institutional USN format on registration.
	StrictUSN bool
	// Now is test-only for deterministic timestamps.
	Now func() time.Time
	// NewID is test-only for deterministic session IDs.
	NewID func() string
}

// QuizService contains the student-facing quiz use cases.
type QuizService struct {
	store     Store
	publisher Publisher
	validate  *validator.Validate
	now       func() time.Time
	newID     func() string
}

func NewQuizService(store Store, publisher Publisher, cfg QuizConfig) *QuizService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &QuizService{
		store:     store,
		publisher: publisher,
		validate:  newValidator(cfg.StrictUSN),
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
}

// RegisterResult is returned by Register. Session is set only when the user
// already finished the quiz.
type RegisterResult struct {
	User    domain.User
	Created bool
	Session *domain.Session
}

// Register creates a student or returns the existing one with the same name and USN.
func (s *QuizService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.USN = strings.TrimSpace(in.USN)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return RegisterResult{}, validationError(err)
	}

	user, created, err := s.store.UpsertUser(ctx, in.Name, in.USN, in.Email, s.now().UTC())
	if err != nil {
		return RegisterResult{}, err
	}
	res := RegisterResult{User: user, Created: created}
	if created {
		return res, nil
	}

	completed, err := s.store.FindSession(ctx, user.ID, domain.StatusCompleted)
	switch {
	case err == nil:
		res.Session = &completed
		return res, domain.ErrQuizAlreadyTaken
	case errors.Is(err, domain.ErrSessionNotFound):
		return res, nil
	default:
		return res, err
	}
}

func (s *QuizService) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return s.store.GetUser(ctx, id)
}

// ListUsers returns every user with attempt count, best score and last attempt.
func (s *QuizService) ListUsers(ctx context.Context) ([]domain.UserSummary, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, "")
	if err != nil {
		return nil, err
	}

	byUser := make(map[int64][]domain.Session, len(users))
	for _, sess := range sessions {
		byUser[sess.UserID] = append(byUser[sess.UserID], sess)
	}
	out := make([]domain.UserSummary, len(users))
	for i, u := range users {
		summary := domain.UserSummary{User: u}
		for _, sess := range byUser[u.ID] {
			summary.QuizAttempts++
			if sess.Status == domain.StatusCompleted && (summary.BestScore == nil || sess.Percentage > *summary.BestScore) {
				pct := sess.Percentage
				summary.BestScore = &pct
			}
			if summary.LastAttempt == nil || sess.StartedAt.After(*summary.LastAttempt) {
				started := sess.StartedAt
				summary.LastAttempt = &started
			}
		}
		out[i] = summary
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Questions returns the question bank in quiz order.
func (s *QuizService) Questions() []domain.LevelQuestions {
	return domain.Bank
}

// Start opens a session for the user, resuming an in-progress one if it exists.
// A user who already completed the quiz gets that session back with ErrQuizAlreadyTaken.
func (s *QuizService) Start(ctx context.Context, userID int64) (domain.Session, bool, error) {
	raw, err := s.store.Settings(ctx)
	if err != nil {
		return domain.Session{}, false, err
	}
	if !domain.ParseSettings(raw).QuizEnabled {
		return domain.Session{}, false, domain.ErrQuizDisabled
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return domain.Session{}, false, err
	}

	// The store resolves racing starts; whichever session survives is returned.
	session, created, err := s.store.CreateSession(ctx, userID, s.newID(), s.now().UTC())
	if err != nil {
		return domain.Session{}, false, err
	}
	if created {
		log.WithField("session", session.ID).Infof("quiz started for user %d", userID)
		return session, false, nil
	}
	if session.Status == domain.StatusCompleted {
		return session, false, domain.ErrQuizAlreadyTaken
	}
	return session, true, nil
}

// SubmitAnswer records one answer and reports whether it was correct.
func (s *QuizService) SubmitAnswer(ctx context.Context, in AnswerInput) (bool, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.QuestionID = strings.TrimSpace(in.QuestionID)
	if err := s.validate.Struct(in); err != nil {
		return false, validationError(err)
	}
	level, err := domain.ParseLevel(in.Level)
	if err != nil {
		return false, err
	}
	question, ok := domain.FindQuestion(level, in.QuestionID)
	if !ok {
		return false, domain.Invalid("unknown question %s/%s", level, in.QuestionID)
	}
	if *in.SelectedAnswer >= len(question.Options) || *in.CorrectAnswer >= len(question.Options) {
		return false, domain.Invalid("answer index out of range for question %s/%s", level, in.QuestionID)
	}

	answer := domain.Answer{
		SessionID:      in.SessionID,
		QuestionID:     in.QuestionID,
		Level:          level,
		SelectedAnswer: *in.SelectedAnswer,
		CorrectAnswer:  *in.CorrectAnswer,
		IsCorrect:      *in.SelectedAnswer == *in.CorrectAnswer,
		TimeTaken:      in.TimeTaken,
		AnsweredAt:     s.now().UTC(),
	}
	if err := s.store.AppendAnswer(ctx, answer); err != nil {
		return false, err
	}
	return answer.IsCorrect, nil
}

// Complete finalizes the session, scoring it against the fixed question total,
// and notifies live observers.
func (s *QuizService) Complete(ctx context.Context, sessionID string, totalTimeTaken int) (domain.Session, domain.Results, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, domain.Results{}, domain.Invalid("sessionId is required")
	}
	if totalTimeTaken < 0 {
		return domain.Session{}, domain.Results{}, domain.Invalid("totalTimeTaken must not be negative")
	}

	now := s.now().UTC()
	session, err := s.store.CompleteSession(ctx, sessionID, totalTimeTaken, now)
	if err != nil {
		return domain.Session{}, domain.Results{}, err
	}
	results := domain.Results{
		Score:          session.CorrectAnswers,
		TotalQuestions: session.TotalQuestions,
		Percentage:     session.Percentage,
		TimeTaken:      session.TimeTaken,
	}

	update := domain.LeaderboardUpdate{
		Reason:         domain.UpdateCompleted,
		Name:           session.Name,
		USN:            session.USN,
		Percentage:     session.Percentage,
		Score:          session.CorrectAnswers,
		TotalQuestions: session.TotalQuestions,
		At:             now,
	}
	if err := s.publisher.Publish(ctx, update); err != nil {
		log.WithField("session", sessionID).Warnf("leaderboard update not delivered: %v", err)
	}
	return session, results, nil
}

// Session returns a session with its answers in submission order.
func (s *QuizService) Session(ctx context.Context, sessionID string) (domain.SessionDetail, error) {
	return sessionDetail(ctx, s.store, sessionID)
}

func sessionDetail(ctx context.Context, store Store, sessionID string) (domain.SessionDetail, error) {
	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionDetail{}, err
	}
	answers, err := store.ListAnswers(ctx, sessionID)
	if err != nil {
		return domain.SessionDetail{}, err
	}
	session.Answered = len(answers)
	return domain.SessionDetail{Session: session, Answers: answers}, nil
}

// Stats is the public classroom summary.
func (s *QuizService) Stats(ctx context.Context) (domain.ClassroomStats, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return domain.ClassroomStats{}, err
	}
	sessions, err := s.store.ListSessions(ctx, "")
	if err != nil {
		return domain.ClassroomStats{}, err
	}
	return Stats(users, sessions), nil
}
