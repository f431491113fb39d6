package app

import (
	"math"
	"sort"
	"strconv"

	"classroom-quiz-service/internal/domain"
)

type questionKey struct {
	level      domain.Level
	questionID string
}

type rollup struct {
	total, correct, timeSum int
	minTime, maxTime        int
}

func (r *rollup) add(a domain.Answer) {
	r.merge(rollup{total: 1, timeSum: a.TimeTaken, minTime: a.TimeTaken, maxTime: a.TimeTaken, correct: boolInt(a.IsCorrect)})
}

func (r *rollup) merge(o rollup) {
	if o.total == 0 {
		return
	}
	if r.total == 0 || o.minTime < r.minTime {
		r.minTime = o.minTime
	}
	if r.total == 0 || o.maxTime > r.maxTime {
		r.maxTime = o.maxTime
	}
	r.total += o.total
	r.correct += o.correct
	r.timeSum += o.timeSum
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r rollup) successRate() float64 {
	if r.total == 0 {
		return 0
	}
	return round2(float64(r.correct) / float64(r.total) * 100)
}

func (r rollup) avgTime() float64 {
	if r.total == 0 {
		return 0
	}
	return round2(float64(r.timeSum) / float64(r.total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// QuestionCounter is a running tally for one question, kept by stores that
// project answer statistics at completion time.
type QuestionCounter struct {
	Level      domain.Level `json:"level"`
	QuestionID string       `json:"questionId"`
	Total      int          `json:"total"`
	Correct    int          `json:"correct"`
	TimeSum    int          `json:"timeSum"`
	MinTime    int          `json:"minTime"`
	MaxTime    int          `json:"maxTime"`
}

// Add folds one answer into the counter.
func (c *QuestionCounter) Add(a domain.Answer) {
	r := c.rollup()
	r.add(a)
	c.Total, c.Correct, c.TimeSum, c.MinTime, c.MaxTime = r.total, r.correct, r.timeSum, r.minTime, r.maxTime
}

func (c QuestionCounter) rollup() rollup {
	return rollup{total: c.Total, correct: c.Correct, timeSum: c.TimeSum, minTime: c.MinTime, maxTime: c.MaxTime}
}

// QuestionStats groups answers by (level, question) and orders the result by
// level then numeric question ID.
func QuestionStats(answers []domain.Answer) []domain.QuestionStat {
	groups := make(map[questionKey]*rollup)
	for _, a := range answers {
		k := questionKey{level: a.Level, questionID: a.QuestionID}
		r, ok := groups[k]
		if !ok {
			r = &rollup{}
			groups[k] = r
		}
		r.add(a)
	}
	return questionStatsOf(groups)
}

// CounterStats builds the same question and level statistics as QuestionStats
// and LevelStats from pre-aggregated counters.
func CounterStats(counters []QuestionCounter) ([]domain.QuestionStat, []domain.LevelStat) {
	questions := make(map[questionKey]*rollup, len(counters))
	levels := make(map[domain.Level]*rollup)
	for _, c := range counters {
		k := questionKey{level: c.Level, questionID: c.QuestionID}
		q, ok := questions[k]
		if !ok {
			q = &rollup{}
			questions[k] = q
		}
		q.merge(c.rollup())
		l, ok := levels[c.Level]
		if !ok {
			l = &rollup{}
			levels[c.Level] = l
		}
		l.merge(c.rollup())
	}
	return questionStatsOf(questions), levelStatsOf(levels)
}

func questionStatsOf(groups map[questionKey]*rollup) []domain.QuestionStat {
	stats := make([]domain.QuestionStat, 0, len(groups))
	for k, r := range groups {
		if r.total == 0 {
			continue
		}
		stats = append(stats, domain.QuestionStat{
			QuestionID:      k.questionID,
			Level:           k.level,
			TotalAttempts:   r.total,
			CorrectAttempts: r.correct,
			SuccessRate:     r.successRate(),
			AvgTime:         r.avgTime(),
			MinTime:         r.minTime,
			MaxTime:         r.maxTime,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if oa, ob := a.Level.Order(), b.Level.Order(); oa != ob {
			return oa < ob
		}
		na, errA := strconv.Atoi(a.QuestionID)
		nb, errB := strconv.Atoi(b.QuestionID)
		if errA == nil && errB == nil && na != nb {
			return na < nb
		}
		return a.QuestionID < b.QuestionID
	})
	return stats
}

// GroupByLevel buckets question stats per level; every level is present.
func GroupByLevel(stats []domain.QuestionStat) map[domain.Level][]domain.QuestionStat {
	out := make(map[domain.Level][]domain.QuestionStat, len(domain.Levels))
	for _, l := range domain.Levels {
		out[l] = []domain.QuestionStat{}
	}
	for _, s := range stats {
		out[s.Level] = append(out[s.Level], s)
	}
	return out
}

// SummarizeQuestions picks the hardest and easiest questions. The input is not reordered.
func SummarizeQuestions(stats []domain.QuestionStat, n int) domain.AnalyticsSummary {
	summary := domain.AnalyticsSummary{
		TotalQuestions:   len(stats),
		HardestQuestions: []domain.QuestionStat{},
		EasiestQuestions: []domain.QuestionStat{},
	}
	if len(stats) == 0 {
		return summary
	}
	sum := 0.0
	for _, s := range stats {
		sum += s.SuccessRate
	}
	summary.AverageSuccessRate = int(math.Round(sum / float64(len(stats))))

	byRate := make([]domain.QuestionStat, len(stats))
	copy(byRate, stats)
	sort.SliceStable(byRate, func(i, j int) bool { return byRate[i].SuccessRate < byRate[j].SuccessRate })
	if n > len(byRate) {
		n = len(byRate)
	}
	summary.HardestQuestions = append(summary.HardestQuestions, byRate[:n]...)
	for i := len(byRate) - 1; i >= len(byRate)-n; i-- {
		summary.EasiestQuestions = append(summary.EasiestQuestions, byRate[i])
	}
	return summary
}

// LevelStats groups answers per level in quiz order. Levels without answers are omitted.
func LevelStats(answers []domain.Answer) []domain.LevelStat {
	groups := make(map[domain.Level]*rollup)
	for _, a := range answers {
		r, ok := groups[a.Level]
		if !ok {
			r = &rollup{}
			groups[a.Level] = r
		}
		r.add(a)
	}
	return levelStatsOf(groups)
}

func levelStatsOf(groups map[domain.Level]*rollup) []domain.LevelStat {
	stats := make([]domain.LevelStat, 0, len(groups))
	for _, l := range domain.Levels {
		r, ok := groups[l]
		if !ok || r.total == 0 {
			continue
		}
		stats = append(stats, domain.LevelStat{
			Level:          l,
			TotalAnswered:  r.total,
			CorrectAnswers: r.correct,
			AccuracyRate:   r.successRate(),
			AvgTime:        r.avgTime(),
		})
	}
	return stats
}

// Stats is the classroom-wide aggregate over users and sessions.
func Stats(users []domain.User, sessions []domain.Session) domain.ClassroomStats {
	stats := domain.ClassroomStats{TotalStudents: len(users)}
	sum := 0
	for _, s := range sessions {
		switch s.Status {
		case domain.StatusInProgress:
			stats.InProgressQuizzes++
		case domain.StatusCompleted:
			if stats.CompletedQuizzes == 0 || s.Percentage < stats.LowestScore {
				stats.LowestScore = s.Percentage
			}
			if stats.CompletedQuizzes == 0 || s.Percentage > stats.HighestScore {
				stats.HighestScore = s.Percentage
			}
			stats.CompletedQuizzes++
			sum += s.Percentage
		}
	}
	if stats.CompletedQuizzes > 0 {
		stats.AverageScore = round2(float64(sum) / float64(stats.CompletedQuizzes))
	}
	return stats
}

var timeBuckets = []struct {
	label string
	upTo  int
}{
	{"0-5 min", 300},
	{"5-10 min", 600},
	{"10-15 min", 900},
	{"15-20 min", 1200},
	{"20+ min", math.MaxInt},
}

// TimeDistribution buckets completed sessions into fixed five-minute ranges.
// All buckets are returned, empty ones with zero counts.
func TimeDistribution(sessions []domain.Session) []domain.TimeBucket {
	counts := make([]int, len(timeBuckets))
	sums := make([]int, len(timeBuckets))
	for _, s := range sessions {
		if s.Status != domain.StatusCompleted {
			continue
		}
		for i, b := range timeBuckets {
			if s.TimeTaken <= b.upTo {
				counts[i]++
				sums[i] += s.Percentage
				break
			}
		}
	}
	out := make([]domain.TimeBucket, len(timeBuckets))
	for i, b := range timeBuckets {
		out[i] = domain.TimeBucket{Range: b.label, StudentCount: counts[i]}
		if counts[i] > 0 {
			out[i].AvgScore = round2(float64(sums[i]) / float64(counts[i]))
		}
	}
	return out
}

// RecentActivity returns the n sessions with the latest activity, newest first.
func RecentActivity(sessions []domain.Session, n int) []domain.ActivityRow {
	sorted := make([]domain.Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastActivity().After(sorted[j].LastActivity())
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	rows := make([]domain.ActivityRow, n)
	for i, s := range sorted[:n] {
		rows[i] = domain.ActivityRow{
			Name:         s.Name,
			USN:          s.USN,
			Status:       s.Status,
			Percentage:   s.Percentage,
			StartedAt:    s.StartedAt,
			CompletedAt:  s.CompletedAt,
			LastActivity: s.LastActivity(),
		}
	}
	return rows
}
