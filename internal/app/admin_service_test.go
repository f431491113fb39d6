package app_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

func TestLeaderboardTopLiveAndUserRank(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.takeQuiz(t, "Ada", "eng001", 18, 900)
	grace := f.takeQuiz(t, "Grace", "eng002", 18, 600)
	f.takeQuiz(t, "Linus", "eng003", 10, 300)
	regKen, _ := f.quiz.Register(ctx, app.RegisterInput{Name: "Ken", USN: "eng004"})
	if _, _, err := f.quiz.Start(ctx, regKen.User.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	regRob, _ := f.quiz.Register(ctx, app.RegisterInput{Name: "Rob", USN: "eng005"})

	page, err := f.board.Top(ctx, 2, 0)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if page.Total != 3 || len(page.Entries) != 2 || !page.HasMore {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Entries[0].Name != "Grace" || page.Entries[1].Name != "Ada" {
		t.Fatalf("expected faster finisher first, got %+v", page.Entries)
	}
	if page, _ := f.board.Top(ctx, 10000, 0); page.Limit != app.MaxLeaderboardLimit {
		t.Fatalf("expected limit capped at %d, got %d", app.MaxLeaderboardLimit, page.Limit)
	}

	live, err := f.board.Live(ctx)
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	if len(live.Entries) != 5 || live.Entries[4].Name != "Rob" || live.Entries[3].Name != "Ken" {
		t.Fatalf("unexpected live order %+v", live.Entries)
	}
	if live.Summary.Completed != 3 || live.Summary.InProgress != 1 || live.Summary.NotStarted != 1 {
		t.Fatalf("unexpected summary %+v", live.Summary)
	}

	rank, err := f.board.UserRank(ctx, grace.UserID)
	if err != nil {
		t.Fatalf("user rank: %v", err)
	}
	if rank.Rank != 1 || len(rank.Context) != 3 {
		t.Fatalf("unexpected rank %+v", rank)
	}
	if _, err := f.board.UserRank(ctx, regRob.User.ID); !errors.Is(err, domain.ErrNoCompletedSession) {
		t.Fatalf("expected no completed session, got %v", err)
	}
	if _, err := f.board.UserRank(ctx, 4242); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestDashboardAndQuestionAnalytics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.takeQuiz(t, "Ada", "eng001", 20, 200)
	f.takeQuiz(t, "Grace", "eng002", 0, 1300)
	reg, _ := f.quiz.Register(ctx, app.RegisterInput{Name: "Ken", USN: "eng004"})
	open, _, _ := f.quiz.Start(ctx, reg.User.ID)
	f.answerAll(t, open.ID, 20)

	dash, err := f.admin.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Stats.TotalStudents != 3 || dash.Stats.CompletedQuizzes != 2 || dash.Stats.InProgressQuizzes != 1 {
		t.Fatalf("unexpected stats %+v", dash.Stats)
	}
	if dash.Stats.HighestScore != 100 || dash.Stats.LowestScore != 0 || dash.Stats.AverageScore != 50 {
		t.Fatalf("unexpected score stats %+v", dash.Stats)
	}
	if len(dash.TimeDistribution) != 5 || dash.TimeDistribution[0].StudentCount != 1 || dash.TimeDistribution[4].StudentCount != 1 {
		t.Fatalf("unexpected distribution %+v", dash.TimeDistribution)
	}
	if len(dash.LevelPerformance) != 4 || dash.LevelPerformance[0].Level != domain.LevelHTML {
		t.Fatalf("unexpected level performance %+v", dash.LevelPerformance)
	}
	// Only completed sessions count: Ada all right, Grace all wrong.
	if dash.LevelPerformance[0].TotalAnswered != 10 || dash.LevelPerformance[0].AccuracyRate != 50 {
		t.Fatalf("in-progress answers leaked into level stats: %+v", dash.LevelPerformance[0])
	}
	if len(dash.RecentActivity) != 3 {
		t.Fatalf("expected 3 activity rows, got %d", len(dash.RecentActivity))
	}

	qa, err := f.admin.QuestionAnalytics(ctx)
	if err != nil {
		t.Fatalf("question analytics: %v", err)
	}
	if qa.Summary.TotalQuestions != 20 || len(qa.Summary.HardestQuestions) != 5 || len(qa.Summary.EasiestQuestions) != 5 {
		t.Fatalf("unexpected summary %+v", qa.Summary)
	}
	for _, level := range domain.Levels {
		for _, s := range qa.ByLevel[level] {
			if s.TotalAttempts != 2 || s.SuccessRate != 50 {
				t.Fatalf("unexpected stat %+v", s)
			}
		}
	}
}

func TestSessionsListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.takeQuiz(t, "Ada", "eng001", 5, 100)
	f.clock.Advance(time.Minute)
	reg, _ := f.quiz.Register(ctx, app.RegisterInput{Name: "Ken", USN: "eng004"})
	f.quiz.Start(ctx, reg.User.ID)

	all, err := f.admin.Sessions(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if all.Total != 2 || all.Sessions[0].Name != "Ken" {
		t.Fatalf("expected newest first, got %+v", all.Sessions)
	}
	done, _ := f.admin.Sessions(ctx, domain.StatusCompleted, 10, 0)
	if done.Total != 1 || done.Sessions[0].Answered != 20 {
		t.Fatalf("unexpected completed listing %+v", done)
	}
	if _, err := f.admin.Sessions(ctx, "finished", 10, 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.admin.SessionDetail(ctx, "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var empty bytes.Buffer
	n, err := f.admin.ExportCSV(ctx, &empty)
	if err != nil || n != 0 {
		t.Fatalf("expected header-only export, n=%d err=%v", n, err)
	}
	if strings.TrimSpace(empty.String()) != strings.Join(app.ExportHeader, ",") {
		t.Fatalf("unexpected empty export %q", empty.String())
	}

	f.takeQuiz(t, "Lovelace, Ada", "eng001", 10, 500)
	f.takeQuiz(t, "Grace", "eng002", 15, 700)
	reg, _ := f.quiz.Register(ctx, app.RegisterInput{Name: "Ken", USN: "eng004"})
	f.quiz.Start(ctx, reg.User.ID)

	var out bytes.Buffer
	n, err = f.admin.ExportCSV(ctx, &out)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
	raw := out.String()
	if !strings.Contains(raw, `"Lovelace, Ada"`) {
		t.Fatalf("expected delimiter-containing value to be quoted: %q", raw)
	}
	records, err := csv.NewReader(strings.NewReader(raw)).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(records) != 3 || len(records[1]) != len(app.ExportHeader) {
		t.Fatalf("unexpected records %v", records)
	}
	if records[1][0] != "Grace" || records[2][0] != "Lovelace, Ada" || records[2][2] != "50" {
		t.Fatalf("unexpected rows %v", records[1:])
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.takeQuiz(t, "Ada", "eng001", 10, 500)
	before := f.pub.count()

	if err := f.admin.Reset(ctx, "yes"); !errors.Is(err, domain.ErrResetNotConfirmed) || !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected confirmation error, got %v", err)
	}
	users, _ := f.store.ListUsers(ctx)
	sessions, _ := f.store.ListSessions(ctx, "")
	if len(users) != 1 || len(sessions) != 1 || f.pub.count() != before {
		t.Fatalf("failed reset must leave data untouched")
	}

	if _, err := f.admin.UpdateSettings(ctx, map[string]string{domain.SettingTimeLimit: "45"}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if err := f.admin.Reset(ctx, domain.ResetConfirmation); err != nil {
		t.Fatalf("reset: %v", err)
	}
	users, _ = f.store.ListUsers(ctx)
	sessions, _ = f.store.ListSessions(ctx, "")
	if len(users) != 0 || len(sessions) != 0 {
		t.Fatalf("expected empty store after reset")
	}
	if f.pub.count() != before+1 || f.pub.updates[len(f.pub.updates)-1].Reason != domain.UpdateReset {
		t.Fatalf("expected a reset update")
	}
	settings, _ := f.admin.Settings(ctx)
	if settings.TimeLimit != 45 {
		t.Fatalf("settings must survive reset, got %+v", settings)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	settings, err := f.admin.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	want := domain.Settings{TimeLimit: 30, QuizEnabled: true, MaxAttempts: 1, ShowResultsImmediately: true}
	if settings != want {
		t.Fatalf("expected defaults %+v, got %+v", want, settings)
	}

	bad := []map[string]string{
		{"theme": "dark"},
		{domain.SettingTimeLimit: "-5"},
		{domain.SettingQuizEnabled: "maybe"},
		{},
	}
	for _, values := range bad {
		if _, err := f.admin.UpdateSettings(ctx, values); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error for %v, got %v", values, err)
		}
	}
	mixed := map[string]string{domain.SettingMaxAttempts: "3", "bogus": "1"}
	if _, err := f.admin.UpdateSettings(ctx, mixed); err == nil {
		t.Fatalf("expected mixed update to fail")
	}
	if s, _ := f.admin.Settings(ctx); s.MaxAttempts != 1 {
		t.Fatalf("partial write leaked: %+v", s)
	}
}

func TestSweeperAbandonsStaleSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	reg, _ := f.quiz.Register(ctx, app.RegisterInput{Name: "Ada", USN: "eng001"})
	stale, _, _ := f.quiz.Start(ctx, reg.User.ID)

	sweeper := app.NewSweeper(f.store, time.Hour, "").WithClock(f.clock.Now)
	if n, err := sweeper.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("fresh session must survive, abandoned %d err=%v", n, err)
	}

	f.clock.Advance(2 * time.Hour)
	n, err := sweeper.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one abandoned session, got %d err=%v", n, err)
	}
	got, _ := f.store.GetSession(ctx, stale.ID)
	if got.Status != domain.StatusAbandoned {
		t.Fatalf("expected abandoned, got %s", got.Status)
	}

	fresh, resumed, err := f.quiz.Start(ctx, reg.User.ID)
	if err != nil || resumed || fresh.ID == stale.ID {
		t.Fatalf("expected a new session after abandonment, got %+v resumed=%v err=%v", fresh, resumed, err)
	}
	if page, _ := f.board.Top(ctx, 0, 0); page.Total != 0 {
		t.Fatalf("abandoned sessions must not be ranked")
	}

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("start sweeper: %v", err)
	}
	if err := app.NewSweeper(f.store, time.Hour, "every tuesday").Start(ctx); err == nil {
		t.Fatalf("expected bad schedule to be rejected")
	}
	if n, _ := app.NewSweeper(f.store, 0, "").WithClock(f.clock.Now).Sweep(ctx); n != 0 {
		t.Fatalf("disabled sweeper must not touch sessions")
	}
}
