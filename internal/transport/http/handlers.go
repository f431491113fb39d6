package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

// flexibleID accepts both JSON strings and numbers; clients send question ids either way.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type startRequest struct {
	UserID int64 `json:"userId"`
}

type answerRequest struct {
	SessionID      string     `json:"sessionId"`
	QuestionID     flexibleID `json:"questionId"`
	Level          string     `json:"level"`
	SelectedAnswer *int       `json:"selectedAnswer"`
	CorrectAnswer  *int       `json:"correctAnswer"`
	TimeTaken      int        `json:"timeTaken"`
}

type completeRequest struct {
	SessionID      string `json:"sessionId"`
	TotalTimeTaken int    `json:"totalTimeTaken"`
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return domain.Invalid("invalid request body")
	}
	return nil
}

func (r *Router) register(c *gin.Context) {
	var in app.RegisterInput
	if err := bindJSON(c, &in); err != nil {
		r.respondError(c, err, "Failed to register user")
		return
	}
	res, err := r.quiz.Register(c.Request.Context(), in)
	if errors.Is(err, domain.ErrQuizAlreadyTaken) {
		r.respondErrorWith(c, err, "", gin.H{"user": res.User, "session": res.Session})
		return
	}
	if err != nil {
		r.respondError(c, err, "Failed to register user")
		return
	}
	if res.Created {
		c.JSON(http.StatusCreated, gin.H{"success": true, "user": res.User, "message": "User registered successfully"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": res.User, "message": "Welcome back! You can continue your quiz."})
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid("%s must be a positive integer", name)
	}
	return id, nil
}

func (r *Router) getUser(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		r.respondError(c, err, "")
		return
	}
	user, err := r.quiz.GetUser(c.Request.Context(), id)
	if err != nil {
		r.respondError(c, err, "Failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (r *Router) listUsers(c *gin.Context) {
	users, err := r.quiz.ListUsers(c.Request.Context())
	if err != nil {
		r.respondError(c, err, "Failed to fetch users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": users})
}

func (r *Router) questions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "levels": r.quiz.Questions(), "totalQuestions": domain.TotalQuestions})
}

func (r *Router) startQuiz(c *gin.Context) {
	var in startRequest
	if err := bindJSON(c, &in); err != nil {
		r.respondError(c, err, "")
		return
	}
	if in.UserID <= 0 {
		r.respondError(c, domain.Invalid("User ID is required"), "")
		return
	}
	session, resumed, err := r.quiz.Start(c.Request.Context(), in.UserID)
	if errors.Is(err, domain.ErrQuizAlreadyTaken) {
		r.respondErrorWith(c, err, "", gin.H{"session": session})
		return
	}
	if err != nil {
		r.respondError(c, err, "Failed to start quiz session")
		return
	}
	msg := "Quiz session started successfully"
	if resumed {
		msg = "Resuming existing quiz session"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessionId": session.ID, "resumed": resumed, "message": msg})
}

func (r *Router) submitAnswer(c *gin.Context) {
	var in answerRequest
	if err := bindJSON(c, &in); err != nil {
		r.respondError(c, err, "")
		return
	}
	correct, err := r.quiz.SubmitAnswer(c.Request.Context(), app.AnswerInput{
		SessionID:      in.SessionID,
		QuestionID:     string(in.QuestionID),
		Level:          in.Level,
		SelectedAnswer: in.SelectedAnswer,
		CorrectAnswer:  in.CorrectAnswer,
		TimeTaken:      in.TimeTaken,
	})
	if err != nil {
		r.respondError(c, err, "Failed to submit answer")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "isCorrect": correct, "message": "Answer submitted successfully"})
}

func (r *Router) completeQuiz(c *gin.Context) {
	var in completeRequest
	if err := bindJSON(c, &in); err != nil {
		r.respondError(c, err, "")
		return
	}
	session, results, err := r.quiz.Complete(c.Request.Context(), in.SessionID, in.TotalTimeTaken)
	if err != nil {
		r.respondError(c, err, "Failed to complete quiz")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": session,
		"results": results,
		"message": "Quiz completed successfully",
	})
}

func (r *Router) getSession(c *gin.Context) {
	detail, err := r.quiz.Session(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		r.respondError(c, err, "Failed to fetch quiz session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": detail})
}

func (r *Router) quizStats(c *gin.Context) {
	stats, err := r.quiz.Stats(c.Request.Context())
	if err != nil {
		r.respondError(c, err, "Failed to fetch quiz statistics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

func (r *Router) leaderboard(c *gin.Context) {
	limit, offset, err := app.ParsePaging(c.Query("limit"), c.Query("offset"))
	if err != nil {
		r.respondError(c, err, "")
		return
	}
	page, err := r.board.Top(c.Request.Context(), limit, offset)
	if err != nil {
		r.respondError(c, err, "Failed to fetch leaderboard")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"leaderboard": page.Entries,
		"pagination": gin.H{
			"total":   page.Total,
			"limit":   page.Limit,
			"offset":  page.Offset,
			"hasMore": page.HasMore,
		},
	})
}

// classLeaderboard serves the top of the ranking under a class label. Users
// carry no class yet, so every class sees the whole classroom.
func (r *Router) classLeaderboard(c *gin.Context) {
	page, err := r.board.Top(c.Request.Context(), app.DefaultLeaderboardLimit, 0)
	if err != nil {
		r.respondError(c, err, "Failed to fetch class leaderboard")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "leaderboard": page.Entries, "className": c.Param("className")})
}

func (r *Router) liveLeaderboard(c *gin.Context) {
	live, err := r.board.Live(c.Request.Context())
	if err != nil {
		r.respondError(c, err, "Failed to fetch live leaderboard")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "liveData": live.Entries, "summary": live.Summary})
}

func (r *Router) userRank(c *gin.Context) {
	id, err := pathID(c, "userId")
	if err != nil {
		r.respondError(c, err, "")
		return
	}
	rank, err := r.board.UserRank(c.Request.Context(), id)
	if err != nil {
		r.respondError(c, err, "Failed to fetch user rank")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "userSession": rank.Session, "rank": rank.Rank, "contextUsers": rank.Context})
}
