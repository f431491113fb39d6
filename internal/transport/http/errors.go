package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"classroom-quiz-service/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage strips the kind prefix from classified errors so clients see
// "user not found" rather than "not found: user not found".
func publicMessage(err error) string {
	msg := err.Error()
	for _, kind := range []error{domain.ErrValidation, domain.ErrNotFound, domain.ErrConflict} {
		if rest, ok := strings.CutPrefix(msg, kind.Error()+": "); ok {
			return rest
		}
	}
	return msg
}

// respondError writes the error envelope. Unclassified errors are reported with
// fallback as the message; their detail is only exposed in development mode.
func (r *Router) respondError(c *gin.Context, err error, fallback string) {
	r.respondErrorWith(c, err, fallback, nil)
}

func (r *Router) respondErrorWith(c *gin.Context, err error, fallback string, extra gin.H) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithField("path", c.FullPath()).Errorf("%s: %v", fallback, err)
		body := errorResponse{Error: fallback}
		if r.opts.Development() {
			body.Details = err.Error()
		}
		c.AbortWithStatusJSON(status, body)
		return
	}

	body := gin.H{"error": publicMessage(err)}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
