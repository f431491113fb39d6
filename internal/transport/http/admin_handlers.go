package http

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

func (r *Router) dashboard(c *gin.Context) {
	dash, err := r.admin.Dashboard(c.Request.Context())
	if err != nil {
		r.respondError(c, err, "Failed to fetch dashboard data")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": dash})
}

func (r *Router) adminSessions(c *gin.Context) {
	limit, offset, err := app.ParsePaging(c.Query("limit"), c.Query("offset"))
	if err != nil {
		r.respondError(c, err, "")
		return
	}
	page, err := r.admin.Sessions(c.Request.Context(), domain.SessionStatus(c.Query("status")), limit, offset)
	if err != nil {
		r.respondError(c, err, "Failed to fetch sessions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"sessions": page.Sessions,
		"pagination": gin.H{
			"total":  page.Total,
			"limit":  page.Limit,
			"offset": page.Offset,
		},
	})
}

func (r *Router) adminSessionDetail(c *gin.Context) {
	detail, err := r.admin.SessionDetail(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		r.respondError(c, err, "Failed to fetch session details")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": detail.Session, "answers": detail.Answers})
}

func (r *Router) questionAnalytics(c *gin.Context) {
	analytics, err := r.admin.QuestionAnalytics(c.Request.Context())
	if err != nil {
		r.respondError(c, err, "Failed to fetch question analytics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "questionStats": analytics.ByLevel, "summary": analytics.Summary})
}

// exportResults buffers the CSV so a storage failure can still be reported as JSON.
func (r *Router) exportResults(c *gin.Context) {
	var buf bytes.Buffer
	rows, err := r.admin.ExportCSV(c.Request.Context(), &buf)
	if err != nil {
		r.respondError(c, err, "Failed to export results")
		return
	}
	log.Infof("exported %d quiz results", rows)
	filename := app.ExportFilename(r.opts.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

type resetRequest struct {
	ConfirmReset string `json:"confirmReset"`
}

func (r *Router) reset(c *gin.Context) {
	var in resetRequest
	// An empty or malformed body falls through to the confirmation check.
	_ = c.ShouldBindJSON(&in)
	if err := r.admin.Reset(c.Request.Context(), in.ConfirmReset); err != nil {
		r.respondError(c, err, "Failed to reset data")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "All quiz data has been reset successfully"})
}

func (r *Router) getSettings(c *gin.Context) {
	settings, err := r.admin.Settings(c.Request.Context())
	if err != nil {
		r.respondError(c, err, "Failed to fetch settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settings})
}

func (r *Router) updateSettings(c *gin.Context) {
	var body map[string]any
	if err := bindJSON(c, &body); err != nil {
		r.respondError(c, err, "")
		return
	}
	values := make(map[string]string, len(body))
	for k, v := range body {
		values[k] = fmt.Sprint(v)
	}
	settings, err := r.admin.UpdateSettings(c.Request.Context(), values)
	if err != nil {
		r.respondError(c, err, "Failed to update settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settings})
}
