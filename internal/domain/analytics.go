package domain

import (
	"strconv"
	"time"
)

// ClassroomStats is a single aggregate pass over users and sessions.
type ClassroomStats struct {
	TotalStudents     int     `json:"totalStudents"`
	CompletedQuizzes  int     `json:"completedQuizzes"`
	InProgressQuizzes int     `json:"inProgressQuizzes"`
	AverageScore      float64 `json:"averageScore"`
	HighestScore      int     `json:"highestScore"`
	LowestScore       int     `json:"lowestScore"`
}

// QuestionStat rolls up every answer to one (level, question) pair.
type QuestionStat struct {
	QuestionID      string  `json:"questionId"`
	Level           Level   `json:"level"`
	TotalAttempts   int     `json:"totalAttempts"`
	CorrectAttempts int     `json:"correctAttempts"`
	SuccessRate     float64 `json:"successRate"`
	AvgTime         float64 `json:"avgTime"`
	MinTime         int     `json:"minTime"`
	MaxTime         int     `json:"maxTime"`
}

// LevelStat rolls up every answer to one level.
type LevelStat struct {
	Level          Level   `json:"level"`
	TotalAnswered  int     `json:"totalQuestionsAnswered"`
	CorrectAnswers int     `json:"correctAnswers"`
	AccuracyRate   float64 `json:"accuracyRate"`
	AvgTime        float64 `json:"avgTimePerQuestion"`
}

// TimeBucket is one bar of the completion time histogram.
type TimeBucket struct {
	Range        string  `json:"timeRange"`
	StudentCount int     `json:"studentCount"`
	AvgScore     float64 `json:"avgScore"`
}

// ActivityRow is one line of the dashboard's recent activity feed.
type ActivityRow struct {
	Name         string        `json:"name"`
	USN          string        `json:"usn"`
	Status       SessionStatus `json:"status"`
	Percentage   int           `json:"percentage"`
	StartedAt    time.Time     `json:"startedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	LastActivity time.Time     `json:"lastActivity"`
}

// Dashboard bundles everything the instructor overview needs.
type Dashboard struct {
	Stats            ClassroomStats `json:"stats"`
	RecentActivity   []ActivityRow  `json:"recentActivity"`
	LevelPerformance []LevelStat    `json:"levelPerformance"`
	TimeDistribution []TimeBucket   `json:"timeDistribution"`
}

// AnalyticsSummary highlights the extremes of the per-question rollup.
type AnalyticsSummary struct {
	TotalQuestions     int            `json:"totalQuestions"`
	AverageSuccessRate int            `json:"averageSuccessRate"`
	HardestQuestions   []QuestionStat `json:"hardestQuestions"`
	EasiestQuestions   []QuestionStat `json:"easiestQuestions"`
}

// QuestionAnalytics is the per-question rollup grouped by level.
type QuestionAnalytics struct {
	ByLevel map[Level][]QuestionStat `json:"questionStats"`
	Summary AnalyticsSummary         `json:"summary"`
}

// Setting keys stored in admin_settings.
const (
	SettingTimeLimit      = "quiz_time_limit"
	SettingQuizEnabled    = "quiz_enabled"
	SettingMaxAttempts    = "max_attempts"
	SettingShowResultsNow = "show_results_immediately"
)

// DefaultSettings seeds admin_settings.
func DefaultSettings() map[string]string {
	return map[string]string{
		SettingTimeLimit:      "30",
		SettingQuizEnabled:    "true",
		SettingMaxAttempts:    "1",
		SettingShowResultsNow: "true",
	}
}

// Settings is the typed view of admin_settings.
type Settings struct {
	TimeLimit              int  `json:"timeLimit"`
	QuizEnabled            bool `json:"quizEnabled"`
	MaxAttempts            int  `json:"maxAttempts"`
	ShowResultsImmediately bool `json:"showResultsImmediately"`
}

// ParseSettings converts raw key/value rows, falling back to defaults for
// missing or malformed values.
func ParseSettings(raw map[string]string) Settings {
	defaults := DefaultSettings()
	get := func(key string) string {
		if v, ok := raw[key]; ok {
			return v
		}
		return defaults[key]
	}
	atoi := func(key string) int {
		if n, err := strconv.Atoi(get(key)); err == nil {
			return n
		}
		n, _ := strconv.Atoi(defaults[key])
		return n
	}
	parseBool := func(key string) bool {
		if b, err := strconv.ParseBool(get(key)); err == nil {
			return b
		}
		b, _ := strconv.ParseBool(defaults[key])
		return b
	}
	return Settings{
		TimeLimit:              atoi(SettingTimeLimit),
		QuizEnabled:            parseBool(SettingQuizEnabled),
		MaxAttempts:            atoi(SettingMaxAttempts),
		ShowResultsImmediately: parseBool(SettingShowResultsNow),
	}
}

// ValidateSetting rejects unknown keys and values of the wrong shape.
func ValidateSetting(key, value string) error {
	switch key {
	case SettingTimeLimit, SettingMaxAttempts:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return Invalid("%s must be a positive integer", key)
		}
	case SettingQuizEnabled, SettingShowResultsNow:
		if _, err := strconv.ParseBool(value); err != nil {
			return Invalid("%s must be true or false", key)
		}
	default:
		return Invalid("unknown setting %q", key)
	}
	return nil
}
