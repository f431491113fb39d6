package app

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"classroom-quiz-service/internal/domain"
)

const (
	recentActivityLimit = 20
	extremeQuestions    = 5
	defaultSessionLimit = 100
)

// AdminService backs the instructor dashboard.
type AdminService struct {
	store     Store
	publisher Publisher
	now       func() time.Time
}

func NewAdminService(store Store, publisher Publisher) *AdminService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &AdminService{store: store, publisher: publisher, now: time.Now}
}

func (s *AdminService) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	sessions, err := s.store.ListSessions(ctx, "")
	if err != nil {
		return domain.Dashboard{}, err
	}
	_, levels, err := s.answerStats(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	return domain.Dashboard{
		Stats:            Stats(users, sessions),
		RecentActivity:   RecentActivity(sessions, recentActivityLimit),
		LevelPerformance: levels,
		TimeDistribution: TimeDistribution(sessions),
	}, nil
}

// SessionPage is a page of sessions, newest first.
type SessionPage struct {
	Sessions []domain.Session `json:"sessions"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// Sessions lists sessions newest first. An empty status lists every session.
func (s *AdminService) Sessions(ctx context.Context, status domain.SessionStatus, limit, offset int) (SessionPage, error) {
	if status != "" && !status.Valid() {
		return SessionPage{}, domain.Invalid("unknown status %q", status)
	}
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	if offset < 0 {
		return SessionPage{}, domain.Invalid("offset must not be negative")
	}
	sessions, err := s.store.ListSessions(ctx, status)
	if err != nil {
		return SessionPage{}, err
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].StartedAt.After(sessions[j].StartedAt) })

	total := len(sessions)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return SessionPage{Sessions: sessions[start:end], Total: total, Limit: limit, Offset: offset}, nil
}

func (s *AdminService) SessionDetail(ctx context.Context, sessionID string) (domain.SessionDetail, error) {
	return sessionDetail(ctx, s.store, sessionID)
}

// QuestionAnalytics rolls up answers from completed sessions per question.
func (s *AdminService) QuestionAnalytics(ctx context.Context) (domain.QuestionAnalytics, error) {
	stats, _, err := s.answerStats(ctx)
	if err != nil {
		return domain.QuestionAnalytics{}, err
	}
	return domain.QuestionAnalytics{
		ByLevel: GroupByLevel(stats),
		Summary: SummarizeQuestions(stats, extremeQuestions),
	}, nil
}

// answerStats rolls up answers of completed sessions, from the store's
// counters when it keeps them.
func (s *AdminService) answerStats(ctx context.Context) ([]domain.QuestionStat, []domain.LevelStat, error) {
	if p, ok := s.store.(AnswerProjection); ok {
		counters, err := p.QuestionCounters(ctx)
		if err != nil {
			return nil, nil, err
		}
		questions, levels := CounterStats(counters)
		return questions, levels, nil
	}
	answers, err := s.store.ListAnswersByStatus(ctx, domain.StatusCompleted)
	if err != nil {
		return nil, nil, err
	}
	return QuestionStats(answers), LevelStats(answers), nil
}

// Reset erases all users, sessions and answers. confirm must equal domain.ResetConfirmation.
func (s *AdminService) Reset(ctx context.Context, confirm string) error {
	if confirm != domain.ResetConfirmation {
		return domain.ErrResetNotConfirmed
	}
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	log.Warn("all quiz data has been reset")
	if err := s.publisher.Publish(ctx, domain.LeaderboardUpdate{Reason: domain.UpdateReset, At: s.now().UTC()}); err != nil {
		log.Warnf("reset update not delivered: %v", err)
	}
	return nil
}

func (s *AdminService) Settings(ctx context.Context) (domain.Settings, error) {
	raw, err := s.store.Settings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return domain.ParseSettings(raw), nil
}

// UpdateSettings validates every pair before writing any of them.
func (s *AdminService) UpdateSettings(ctx context.Context, values map[string]string) (domain.Settings, error) {
	if len(values) == 0 {
		return domain.Settings{}, domain.Invalid("no settings provided")
	}
	keys := make([]string, 0, len(values))
	for k, v := range values {
		if err := domain.ValidateSetting(k, v); err != nil {
			return domain.Settings{}, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	now := s.now().UTC()
	for _, k := range keys {
		if err := s.store.PutSetting(ctx, k, values[k], now); err != nil {
			return domain.Settings{}, err
		}
	}
	return s.Settings(ctx)
}
