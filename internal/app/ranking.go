package app

import (
	"math"
	"sort"
	"time"

	"classroom-quiz-service/internal/domain"
)

// RankCompleted filters completed sessions, orders them by percentage desc then
// time asc, and assigns ranks 1..N. Exact ties fall back to completion time and
// session ID so the same input always yields the same order.
func RankCompleted(sessions []domain.Session) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(sessions))
	for _, s := range sessions {
		if s.Status == domain.StatusCompleted {
			entries = append(entries, entryOf(s))
		}
	}
	return rank(entries)
}

// InsertRanked places one completed session into an already ranked list,
// replacing any entry for the same session. Insertion order does not matter:
// applying the same set of sessions in any order yields the same ranking.
func InsertRanked(entries []domain.LeaderboardEntry, s domain.Session) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, 0, len(entries)+1)
	for _, e := range entries {
		if e.SessionID != s.ID {
			out = append(out, e)
		}
	}
	if s.Status == domain.StatusCompleted {
		out = append(out, entryOf(s))
	}
	return rank(out)
}

func entryOf(s domain.Session) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		UserID:         s.UserID,
		SessionID:      s.ID,
		Name:           s.Name,
		USN:            s.USN,
		Percentage:     s.Percentage,
		Score:          s.CorrectAnswers,
		TotalQuestions: s.TotalQuestions,
		TimeTaken:      s.TimeTaken,
		CompletedAt:    s.CompletedAt,
	}
}

func rank(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		return rankedBefore(entries[i], entries[j])
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func rankedBefore(a, b domain.LeaderboardEntry) bool {
	if a.Percentage != b.Percentage {
		return a.Percentage > b.Percentage
	}
	if a.TimeTaken != b.TimeTaken {
		return a.TimeTaken < b.TimeTaken
	}
	ca, cb := completedAt(a.CompletedAt), completedAt(b.CompletedAt)
	if !ca.Equal(cb) {
		return ca.Before(cb)
	}
	return a.SessionID < b.SessionID
}

func completedAt(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// CountAhead counts completed sessions strictly ahead of target by (percentage desc, time asc).
// Stores without a query engine use it to answer CountRanksAhead.
func CountAhead(sessions []domain.Session, percentage, timeTaken int) int {
	n := 0
	for _, s := range sessions {
		if s.Status != domain.StatusCompleted {
			continue
		}
		if s.Percentage > percentage || (s.Percentage == percentage && s.TimeTaken < timeTaken) {
			n++
		}
	}
	return n
}

// Window returns the entries whose rank lies within radius of rank.
func Window(entries []domain.LeaderboardEntry, rank, radius int) []domain.LeaderboardEntry {
	lo := rank - radius
	if lo < 1 {
		lo = 1
	}
	hi := rank + radius
	out := make([]domain.LeaderboardEntry, 0, 2*radius+1)
	for _, e := range entries {
		if e.Rank >= lo && e.Rank <= hi {
			out = append(out, e)
		}
	}
	return out
}

// Paginate slices a ranked list.
func Paginate(entries []domain.LeaderboardEntry, limit, offset int) domain.Page {
	total := len(entries)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	page := make([]domain.LeaderboardEntry, end-start)
	copy(page, entries[start:end])
	return domain.Page{
		Entries: page,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// LiveRanking builds the live view: every session, plus every user without one
// as not_started. Completed rows come first, then in_progress, abandoned and
// not_started; within a class the usual (percentage desc, time asc) order applies.
func LiveRanking(users []domain.User, sessions []domain.Session) []domain.LiveEntry {
	byID := make(map[int64]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	hasSession := make(map[int64]bool, len(sessions))

	entries := make([]domain.LiveEntry, 0, len(users)+len(sessions))
	for _, s := range sessions {
		hasSession[s.UserID] = true
		name, usn := s.Name, s.USN
		if u, ok := byID[s.UserID]; ok && name == "" {
			name, usn = u.Name, u.USN
		}
		started := s.StartedAt
		e := domain.LiveEntry{
			UserID:         s.UserID,
			SessionID:      s.ID,
			Name:           name,
			USN:            usn,
			Status:         s.Status,
			DisplayStatus:  s.Status.DisplayStatus(),
			Percentage:     s.Percentage,
			Score:          s.CorrectAnswers,
			TotalQuestions: s.TotalQuestions,
			Answered:       s.Answered,
			StartedAt:      &started,
			CompletedAt:    s.CompletedAt,
		}
		if s.Status == domain.StatusCompleted {
			t := s.TimeTaken
			e.TimeTaken = &t
		}
		entries = append(entries, e)
	}
	for _, u := range users {
		if hasSession[u.ID] {
			continue
		}
		entries = append(entries, domain.LiveEntry{
			UserID:         u.ID,
			Name:           u.Name,
			USN:            u.USN,
			Status:         domain.StatusNotStarted,
			DisplayStatus:  domain.StatusNotStarted.DisplayStatus(),
			TotalQuestions: domain.TotalQuestions,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if ca, cb := liveClass(a.Status), liveClass(b.Status); ca != cb {
			return ca < cb
		}
		if a.Percentage != b.Percentage {
			return a.Percentage > b.Percentage
		}
		if ta, tb := liveTime(a), liveTime(b); ta != tb {
			return ta < tb
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.SessionID < b.SessionID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func liveClass(status domain.SessionStatus) int {
	switch status {
	case domain.StatusCompleted:
		return 0
	case domain.StatusInProgress:
		return 1
	case domain.StatusAbandoned:
		return 2
	default:
		return 3
	}
}

func liveTime(e domain.LiveEntry) int {
	if e.TimeTaken == nil {
		return int(^uint(0) >> 1)
	}
	return *e.TimeTaken
}

// Summarize counts participants by status for the live view.
func Summarize(users []domain.User, sessions []domain.Session) domain.LiveSummary {
	active := make(map[int64]bool, len(sessions))
	summary := domain.LiveSummary{TotalRegistered: len(users)}
	sum := 0
	for _, s := range sessions {
		switch s.Status {
		case domain.StatusCompleted:
			summary.Completed++
			sum += s.Percentage
			if s.Percentage > summary.HighestScore {
				summary.HighestScore = s.Percentage
			}
			active[s.UserID] = true
		case domain.StatusInProgress:
			summary.InProgress++
			active[s.UserID] = true
		}
	}
	for _, u := range users {
		if !active[u.ID] {
			summary.NotStarted++
		}
	}
	if summary.Completed > 0 {
		summary.AverageScore = int(math.Round(float64(sum) / float64(summary.Completed)))
	}
	return summary
}
