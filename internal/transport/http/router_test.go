package http

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
	"classroom-quiz-service/internal/infra/slots"
	"classroom-quiz-service/internal/realtime"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *realtime.Hub) {
	t.Helper()
	store := slots.New(memory.NewBackend())
	hub := realtime.NewHub()
	clock := func() time.Time { return fixedNow }
	quiz := app.NewQuizService(store, hub, app.QuizConfig{Now: clock})
	board := app.NewLeaderboardService(store)
	admin := app.NewAdminService(store, hub)
	opts.Now = clock

	server := httptest.NewServer(NewRouter(quiz, board, admin, hub, opts).Engine())
	t.Cleanup(server.Close)
	return server, hub
}

func doJSON(t *testing.T, method, url string, body any, header http.Header) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestQuizFlowOverHTTP(t *testing.T) {
	server, _ := newTestServer(t, Options{Mode: "production"})
	api := server.URL + "/api"

	status, body := doJSON(t, http.MethodPost, api+"/users/register", map[string]any{"name": "Ada", "usn": "eng001"}, nil)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", status, body)
	}
	userID := body["user"].(map[string]any)["id"]

	status, _ = doJSON(t, http.MethodPost, api+"/users/register", map[string]any{"name": "Ada", "usn": "eng001"}, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for returning user, got %d", status)
	}

	status, body = doJSON(t, http.MethodPost, api+"/quiz/start", map[string]any{"userId": userID}, nil)
	if status != http.StatusOK || body["resumed"] != false {
		t.Fatalf("unexpected start response %d %v", status, body)
	}
	sessionID := body["sessionId"].(string)

	status, body = doJSON(t, http.MethodPost, api+"/quiz/start", map[string]any{"userId": userID}, nil)
	if status != http.StatusOK || body["sessionId"] != sessionID || body["resumed"] != true {
		t.Fatalf("expected resumed session, got %d %v", status, body)
	}

	// Numeric question ids are accepted.
	answer := map[string]any{"sessionId": sessionID, "questionId": 1, "level": "html", "selectedAnswer": 0, "correctAnswer": 0, "timeTaken": 5}
	status, body = doJSON(t, http.MethodPost, api+"/quiz/answer", answer, nil)
	if status != http.StatusOK || body["isCorrect"] != true {
		t.Fatalf("unexpected answer response %d %v", status, body)
	}
	status, body = doJSON(t, http.MethodPost, api+"/quiz/answer", answer, nil)
	if status != http.StatusConflict {
		t.Fatalf("expected duplicate answer conflict, got %d %v", status, body)
	}

	status, body = doJSON(t, http.MethodPost, api+"/quiz/answer", map[string]any{"sessionId": sessionID, "questionId": "1", "level": "html"}, nil)
	if status != http.StatusBadRequest || body["error"] != "selectedAnswer is required" {
		t.Fatalf("expected validation error, got %d %v", status, body)
	}

	status, body = doJSON(t, http.MethodPost, api+"/quiz/complete", map[string]any{"sessionId": sessionID, "totalTimeTaken": 300}, nil)
	if status != http.StatusOK {
		t.Fatalf("complete: %d %v", status, body)
	}
	results := body["results"].(map[string]any)
	if results["score"] != float64(1) || results["percentage"] != float64(5) {
		t.Fatalf("unexpected results %v", results)
	}
	completedSession, ok := body["session"].(map[string]any)
	if !ok || completedSession["status"] != "completed" || completedSession["percentage"] != float64(5) || completedSession["sessionId"] != sessionID {
		t.Fatalf("expected completed session in response, got %v", body["session"])
	}

	status, body = doJSON(t, http.MethodPost, api+"/users/register", map[string]any{"name": "Ada", "usn": "eng001"}, nil)
	if status != http.StatusConflict || body["session"] == nil || body["user"] == nil {
		t.Fatalf("expected 409 with user and session, got %d %v", status, body)
	}
	status, body = doJSON(t, http.MethodPost, api+"/quiz/start", map[string]any{"userId": userID}, nil)
	if status != http.StatusConflict || body["session"] == nil {
		t.Fatalf("expected 409 with session, got %d %v", status, body)
	}

	status, body = doJSON(t, http.MethodGet, api+"/leaderboard?limit=10", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("leaderboard: %d", status)
	}
	entries := body["leaderboard"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["rank"] != float64(1) {
		t.Fatalf("unexpected leaderboard %v", body)
	}

	status, body = doJSON(t, http.MethodGet, api+"/leaderboard/user/1", nil, nil)
	if status != http.StatusOK || body["rank"] != float64(1) {
		t.Fatalf("unexpected user rank %d %v", status, body)
	}

	status, body = doJSON(t, http.MethodGet, api+"/quiz/session/"+sessionID, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("session detail: %d", status)
	}
	if answers := body["session"].(map[string]any)["answers"].([]any); len(answers) != 1 {
		t.Fatalf("expected one stored answer, got %v", answers)
	}
}

func TestErrorMapping(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	api := server.URL + "/api"

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"short name", http.MethodPost, "/users/register", map[string]any{"name": "A", "usn": "eng001"}, http.StatusBadRequest},
		{"bad email", http.MethodPost, "/users/register", map[string]any{"name": "Ada", "usn": "eng001", "email": "nope"}, http.StatusBadRequest},
		{"unknown user", http.MethodGet, "/users/99", nil, http.StatusNotFound},
		{"non numeric user", http.MethodGet, "/users/abc", nil, http.StatusBadRequest},
		{"start without user", http.MethodPost, "/quiz/start", map[string]any{}, http.StatusBadRequest},
		{"start unknown user", http.MethodPost, "/quiz/start", map[string]any{"userId": 42}, http.StatusNotFound},
		{"unknown session", http.MethodPost, "/quiz/complete", map[string]any{"sessionId": "missing"}, http.StatusNotFound},
		{"unknown level", http.MethodPost, "/quiz/answer", map[string]any{"sessionId": "s", "questionId": "1", "level": "go", "selectedAnswer": 0, "correctAnswer": 0}, http.StatusBadRequest},
		{"rank without completion", http.MethodGet, "/leaderboard/user/7", nil, http.StatusNotFound},
		{"bad paging", http.MethodGet, "/leaderboard?offset=-1", nil, http.StatusBadRequest},
		{"reset unconfirmed", http.MethodPost, "/admin/reset", map[string]any{"confirmReset": "yes"}, http.StatusBadRequest},
		{"unknown setting", http.MethodPut, "/admin/settings", map[string]any{"theme": "dark"}, http.StatusBadRequest},
		{"bad session status", http.MethodGet, "/admin/sessions?status=paused", nil, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/nope", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doJSON(t, tc.method, api+tc.path, tc.body, nil)
			if status != tc.status {
				t.Fatalf("expected %d, got %d %v", tc.status, status, body)
			}
			if _, ok := body["error"]; !ok {
				t.Fatalf("expected error envelope, got %v", body)
			}
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	server, hub := newTestServer(t, Options{AdminPasswordHash: string(hash)})
	api := server.URL + "/api"
	auth := http.Header{AdminPasswordHeader: []string{"s3cret"}}

	if status, _ := doJSON(t, http.MethodGet, api+"/admin/dashboard", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without password, got %d", status)
	}
	if status, _ := doJSON(t, http.MethodGet, api+"/users", nil, http.Header{AdminPasswordHeader: []string{"wrong"}}); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong password, got %d", status)
	}

	_, body := doJSON(t, http.MethodPost, api+"/users/register", map[string]any{"name": "Lovelace, Ada", "usn": "eng001"}, nil)
	userID := body["user"].(map[string]any)["id"]
	_, body = doJSON(t, http.MethodPost, api+"/quiz/start", map[string]any{"userId": userID}, nil)
	sessionID := body["sessionId"]
	doJSON(t, http.MethodPost, api+"/quiz/complete", map[string]any{"sessionId": sessionID, "totalTimeTaken": 61}, nil)

	status, body := doJSON(t, http.MethodGet, api+"/admin/dashboard", nil, auth)
	if status != http.StatusOK {
		t.Fatalf("dashboard: %d %v", status, body)
	}
	data := body["data"].(map[string]any)
	if len(data["timeDistribution"].([]any)) != 5 {
		t.Fatalf("expected five time buckets, got %v", data["timeDistribution"])
	}

	status, body = doJSON(t, http.MethodGet, api+"/admin/sessions?status=completed", nil, auth)
	if status != http.StatusOK || len(body["sessions"].([]any)) != 1 {
		t.Fatalf("unexpected sessions %d %v", status, body)
	}

	req, _ := http.NewRequest(http.MethodGet, api+"/admin/export/results", nil)
	req.Header.Set(AdminPasswordHeader, "s3cret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "quiz-results-2026-10-19.csv") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 || records[1][0] != "Lovelace, Ada" {
		t.Fatalf("unexpected csv %v", records)
	}

	status, body = doJSON(t, http.MethodPut, api+"/admin/settings", map[string]any{"quiz_enabled": false, "quiz_time_limit": 45}, auth)
	if status != http.StatusOK {
		t.Fatalf("update settings: %d %v", status, body)
	}
	settings := body["settings"].(map[string]any)
	if settings["quizEnabled"] != false || settings["timeLimit"] != float64(45) {
		t.Fatalf("unexpected settings %v", settings)
	}

	events, cancel := hub.Subscribe(realtime.DefaultRoom)
	defer cancel()
	status, _ = doJSON(t, http.MethodPost, api+"/admin/reset", map[string]any{"confirmReset": domain.ResetConfirmation}, auth)
	if status != http.StatusOK {
		t.Fatalf("reset: %d", status)
	}
	select {
	case ev := <-events:
		if update, ok := ev.Payload.(domain.LeaderboardUpdate); !ok || update.Reason != domain.UpdateReset {
			t.Fatalf("unexpected reset event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a reset broadcast")
	}

	_, body = doJSON(t, http.MethodGet, api+"/leaderboard/live", nil, nil)
	if live := body["liveData"].([]any); len(live) != 0 {
		t.Fatalf("expected empty live board after reset, got %v", live)
	}
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, Options{Mode: "development"})
	status, body := doJSON(t, http.MethodGet, server.URL+"/api/health", nil, nil)
	if status != http.StatusOK || body["status"] != "OK" || body["environment"] != "development" {
		t.Fatalf("unexpected health %d %v", status, body)
	}
}

func TestSecurityHeaders(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	for header, want := range map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'self'",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Fatalf("%s: expected %q, got %q", header, want, got)
		}
	}
}

func TestClassLeaderboard(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	status, body := doJSON(t, http.MethodGet, server.URL+"/api/leaderboard/class/cs-a", nil, nil)
	if status != http.StatusOK || body["className"] != "cs-a" {
		t.Fatalf("unexpected class leaderboard %d %v", status, body)
	}
	if entries, ok := body["leaderboard"].([]any); !ok || len(entries) != 0 {
		t.Fatalf("expected empty leaderboard list, got %v", body["leaderboard"])
	}
}

func TestRateLimit(t *testing.T) {
	server, _ := newTestServer(t, Options{RateLimit: 2, RateWindow: time.Hour})
	for i := 0; i < 2; i++ {
		if status, _ := doJSON(t, http.MethodGet, server.URL+"/api/health", nil, nil); status != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, status)
		}
	}
	if status, _ := doJSON(t, http.MethodGet, server.URL+"/api/health", nil, nil); status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
}

func TestIPLimiterEvictsIdleClients(t *testing.T) {
	clock := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	limiter := newIPLimiter(1, time.Minute)
	limiter.now = func() time.Time { return clock }

	if !limiter.allow("10.0.0.1") || limiter.allow("10.0.0.1") {
		t.Fatalf("expected one request per minute for 10.0.0.1")
	}
	clock = clock.Add(30 * time.Second)
	limiter.allow("10.0.0.2")
	if len(limiter.clients) != 2 {
		t.Fatalf("expected two tracked clients, got %d", len(limiter.clients))
	}

	// 10.0.0.1 has been idle a full window; 10.0.0.2 only half of one.
	clock = clock.Add(40 * time.Second)
	if !limiter.allow("10.0.0.3") {
		t.Fatalf("expected a new client to be allowed")
	}
	if _, ok := limiter.clients["10.0.0.1"]; ok || len(limiter.clients) != 2 {
		t.Fatalf("expected idle client evicted, have %d clients", len(limiter.clients))
	}
	if !limiter.allow("10.0.0.1") {
		t.Fatalf("expected evicted client to start with a full bucket")
	}
}
