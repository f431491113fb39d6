package app

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/sync/singleflight"

	"classroom-quiz-service/internal/domain"
)

const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 500
	contextRadius           = 2
)

// LeaderboardService serves rankings, from the store's projection when it keeps one.
type LeaderboardService struct {
	store Store
	group singleflight.Group
}

func NewLeaderboardService(store Store) *LeaderboardService {
	return &LeaderboardService{store: store}
}

// ranked returns the completed ranking; concurrent readers share one computation.
func (s *LeaderboardService) ranked(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	v, err, _ := s.group.Do("ranked", func() (interface{}, error) {
		if p, ok := s.store.(RankingProjection); ok {
			return p.Leaderboard(ctx)
		}
		sessions, err := s.store.ListSessions(ctx, domain.StatusCompleted)
		if err != nil {
			return nil, err
		}
		return RankCompleted(sessions), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.LeaderboardEntry), nil
}

// Top returns one page of the completed ranking.
func (s *LeaderboardService) Top(ctx context.Context, limit, offset int) (domain.Page, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	if offset < 0 {
		return domain.Page{}, domain.Invalid("offset must not be negative")
	}
	entries, err := s.ranked(ctx)
	if err != nil {
		return domain.Page{}, err
	}
	return Paginate(entries, limit, offset), nil
}

// Live returns every participant, finished or not, with a status summary.
func (s *LeaderboardService) Live(ctx context.Context) (domain.LiveBoard, error) {
	v, err, _ := s.group.Do("live", func() (interface{}, error) {
		users, err := s.store.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		sessions, err := s.store.ListSessions(ctx, "")
		if err != nil {
			return nil, err
		}
		return domain.LiveBoard{
			Entries: LiveRanking(users, sessions),
			Summary: Summarize(users, sessions),
		}, nil
	})
	if err != nil {
		return domain.LiveBoard{}, err
	}
	return v.(domain.LiveBoard), nil
}

// UserRank locates the user's latest completed session and its neighbours.
func (s *LeaderboardService) UserRank(ctx context.Context, userID int64) (domain.UserRank, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return domain.UserRank{}, err
	}
	session, err := s.store.FindSession(ctx, userID, domain.StatusCompleted)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.UserRank{}, domain.ErrNoCompletedSession
		}
		return domain.UserRank{}, err
	}
	ahead, err := s.store.CountRanksAhead(ctx, session.Percentage, session.TimeTaken)
	if err != nil {
		return domain.UserRank{}, err
	}
	rank := ahead + 1

	entries, err := s.ranked(ctx)
	if err != nil {
		return domain.UserRank{}, err
	}
	return domain.UserRank{
		Session: session,
		Rank:    rank,
		Context: Window(entries, rank, contextRadius),
	}, nil
}

// ParsePaging reads limit/offset query values, treating blanks as defaults.
func ParsePaging(rawLimit, rawOffset string) (int, int, error) {
	limit, offset := 0, 0
	var err error
	if rawLimit != "" {
		if limit, err = strconv.Atoi(rawLimit); err != nil {
			return 0, 0, domain.Invalid("limit must be an integer")
		}
	}
	if rawOffset != "" {
		if offset, err = strconv.Atoi(rawOffset); err != nil || offset < 0 {
			return 0, 0, domain.Invalid("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
