package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/postgres"
	infraredis "classroom-quiz-service/internal/infra/redis"
	"classroom-quiz-service/internal/infra/slots"
	"classroom-quiz-service/internal/realtime"
)

func TestPostgresQuizEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	if err := postgres.Migrate(ctx, pgURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Applying twice is a no-op.
	if err := postgres.Migrate(ctx, pgURL); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	pool, err := postgres.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	hub := realtime.NewHub()
	events, cancel := hub.Subscribe(realtime.DefaultRoom)
	defer cancel()

	quiz := app.NewQuizService(store, hub, app.QuizConfig{})
	board := app.NewLeaderboardService(store)
	admin := app.NewAdminService(store, hub)

	reg, err := quiz.Register(ctx, app.RegisterInput{Name: "Ada", USN: "eng001"})
	if err != nil || !reg.Created {
		t.Fatalf("register: created=%v err=%v", reg.Created, err)
	}

	// Racing starts resolve to a single session.
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]bool{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, _, err := quiz.Start(ctx, reg.User.ID)
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			mu.Lock()
			ids[sess.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != 1 {
		t.Fatalf("expected one session from racing starts, got %v", ids)
	}
	var sessionID string
	for id := range ids {
		sessionID = id
	}

	// Five correct html answers: 5/20 = 25%.
	for q := 1; q <= 5; q++ {
		sel, cor := 1, 1
		correct, err := quiz.SubmitAnswer(ctx, app.AnswerInput{
			SessionID: sessionID, QuestionID: fmt.Sprint(q), Level: "html",
			SelectedAnswer: &sel, CorrectAnswer: &cor, TimeTaken: 10,
		})
		if err != nil || !correct {
			t.Fatalf("answer %d: correct=%v err=%v", q, correct, err)
		}
	}
	sel, cor := 0, 1
	_, err = quiz.SubmitAnswer(ctx, app.AnswerInput{SessionID: sessionID, QuestionID: "1", Level: "html", SelectedAnswer: &sel, CorrectAnswer: &cor})
	if !errors.Is(err, domain.ErrAnswerExists) {
		t.Fatalf("expected duplicate answer conflict, got %v", err)
	}

	session, results, err := quiz.Complete(ctx, sessionID, 600)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if results.Score != 5 || results.Percentage != 25 || session.Status != domain.StatusCompleted {
		t.Fatalf("unexpected results %+v session %+v", results, session)
	}
	if _, _, err := quiz.Complete(ctx, sessionID, 600); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected second completion to conflict, got %v", err)
	}

	select {
	case ev := <-events:
		if update := ev.Payload.(domain.LeaderboardUpdate); update.Name != "Ada" || update.Percentage != 25 {
			t.Fatalf("unexpected update %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected leaderboard update")
	}

	rank, err := board.UserRank(ctx, reg.User.ID)
	if err != nil || rank.Rank != 1 || len(rank.Context) != 1 {
		t.Fatalf("unexpected rank %+v err=%v", rank, err)
	}
	if _, err := quiz.Register(ctx, app.RegisterInput{Name: "Ada", USN: "eng001"}); !errors.Is(err, domain.ErrQuizAlreadyTaken) {
		t.Fatalf("expected already taken on re-register, got %v", err)
	}

	analytics, err := admin.QuestionAnalytics(ctx)
	if err != nil || len(analytics.ByLevel[domain.LevelHTML]) != 5 {
		t.Fatalf("unexpected analytics %+v err=%v", analytics, err)
	}

	var csv strings.Builder
	rows, err := admin.ExportCSV(ctx, &csv)
	if err != nil || rows != 1 || !strings.Contains(csv.String(), "Ada,eng001,25,5,20,600") {
		t.Fatalf("unexpected export rows=%d err=%v\n%s", rows, err, csv.String())
	}

	if err := admin.Reset(ctx, domain.ResetConfirmation); err != nil {
		t.Fatalf("reset: %v", err)
	}
	live, _ := board.Live(ctx)
	if len(live.Entries) != 0 {
		t.Fatalf("expected empty live board after reset, got %+v", live.Entries)
	}
	settings, _ := admin.Settings(ctx)
	if !settings.QuizEnabled || settings.TimeLimit != 30 {
		t.Fatalf("expected seeded settings to survive reset, got %+v", settings)
	}
}

// Two instances share slots through Redis and see each other's leaderboard updates.
func TestRedisSlotsAcrossInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()
	clientA, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	clientB, _ := redisClientFromURL(redisURL)

	storeA := slots.New(infraredis.NewSlotBackend(clientA, "it:"))
	backendB := infraredis.NewSlotBackend(clientB, "it:")
	storeB := slots.New(backendB)

	remote := make(chan slots.Change, 16)
	storeB.Subscribe(func(c slots.Change) {
		if c.Origin == slots.OriginRemote {
			remote <- c
		}
	})
	listening := make(chan struct{})
	go func() {
		_ = backendB.Listen(ctx, func(slot string) {
			storeB.Notify(slots.Change{Slot: slot, Origin: slots.OriginRemote})
		}, listening)
	}()
	<-listening

	hubB := realtime.NewHub()
	updates, unsubscribe := hubB.Subscribe(realtime.DefaultRoom)
	defer unsubscribe()
	busReady := make(chan struct{})
	go func() { _ = infraredis.NewBus(clientB, "it:").Run(ctx, hubB, busReady) }()
	<-busReady

	quizA := app.NewQuizService(storeA, infraredis.NewBus(clientA, "it:"), app.QuizConfig{})
	reg, err := quizA.Register(ctx, app.RegisterInput{Name: "Grace", USN: "eng002"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	sess, _, err := quizA.Start(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := quizA.Complete(ctx, sess.ID, 90); err != nil {
		t.Fatalf("complete: %v", err)
	}

	select {
	case c := <-remote:
		if c.Slot == "" {
			t.Fatalf("empty remote change")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("instance B saw no remote slot change")
	}
	select {
	case ev := <-updates:
		if update := ev.Payload.(domain.LeaderboardUpdate); update.Name != "Grace" {
			t.Fatalf("unexpected update %+v", update)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("instance B saw no leaderboard update")
	}

	// Instance B reads the state instance A wrote.
	page, err := app.NewLeaderboardService(storeB).Top(ctx, 10, 0)
	if err != nil || page.Total != 1 || page.Entries[0].Name != "Grace" {
		t.Fatalf("unexpected shared leaderboard %+v err=%v", page, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		// Terminate with a fresh context; the test context may already be cancelled.
		_ = container.Terminate(context.Background())
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
