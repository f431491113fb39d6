// Package http exposes the quiz over a gin REST API and a websocket endpoint.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/realtime"
)

// Options configures the router's middleware.
type Options struct {
	// Mode is "development" or "production"; development exposes error details.
	Mode      string
	ClientURL string
	// RateLimit requests are allowed per RateWindow per client IP on /api. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
	// AdminPasswordHash is a bcrypt hash guarding admin routes. Empty leaves them open.
	AdminPasswordHash string
	// Now is test-only for deterministic export file names.
	Now func() time.Time
}

func (o Options) Development() bool {
	return o.Mode == "development"
}

// Router owns the HTTP handlers.
type Router struct {
	quiz    *app.QuizService
	board   *app.LeaderboardService
	admin   *app.AdminService
	ws      *WSHandler
	opts    Options
	started time.Time
}

func NewRouter(quiz *app.QuizService, board *app.LeaderboardService, admin *app.AdminService, hub *realtime.Hub, opts Options) *Router {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{
		quiz:    quiz,
		board:   board,
		admin:   admin,
		ws:      NewWSHandler(hub),
		opts:    opts,
		started: opts.Now(),
	}
}

// Engine builds the gin engine with every route registered.
func (r *Router) Engine() *gin.Engine {
	if !r.opts.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(recovery(r.opts.Development()), requestLogger(), securityHeaders(), cors(r.opts.ClientURL))

	engine.GET("/ws", gin.WrapF(r.ws.ServeWS))

	api := engine.Group("/api")
	api.Use(rateLimit(r.opts.RateLimit, r.opts.RateWindow))
	api.GET("/health", r.health)

	admin := adminGate(r.opts.AdminPasswordHash)

	users := api.Group("/users")
	{
		users.POST("/register", r.register)
		users.GET("/:id", r.getUser)
		users.GET("", admin, r.listUsers)
	}

	quiz := api.Group("/quiz")
	{
		quiz.GET("/questions", r.questions)
		quiz.POST("/start", r.startQuiz)
		quiz.POST("/answer", r.submitAnswer)
		quiz.POST("/complete", r.completeQuiz)
		quiz.GET("/session/:sessionId", r.getSession)
		quiz.GET("/stats", r.quizStats)
	}

	board := api.Group("/leaderboard")
	{
		board.GET("", r.leaderboard)
		board.GET("/live", r.liveLeaderboard)
		board.GET("/user/:userId", r.userRank)
		board.GET("/class/:className", r.classLeaderboard)
	}

	adminGroup := api.Group("/admin", admin)
	{
		adminGroup.GET("/dashboard", r.dashboard)
		adminGroup.GET("/sessions", r.adminSessions)
		adminGroup.GET("/sessions/:sessionId", r.adminSessionDetail)
		adminGroup.GET("/analytics/questions", r.questionAnalytics)
		adminGroup.GET("/export/results", r.exportResults)
		adminGroup.POST("/reset", r.reset)
		adminGroup.GET("/settings", r.getSettings)
		adminGroup.PUT("/settings", r.updateSettings)
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "Route not found"})
	})
	return engine
}

func (r *Router) health(c *gin.Context) {
	environment := r.opts.Mode
	if environment == "" {
		environment = "development"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "OK",
		"timestamp":   r.opts.Now().UTC().Format(time.RFC3339),
		"uptime":      r.opts.Now().Sub(r.started).Seconds(),
		"environment": environment,
	})
}
