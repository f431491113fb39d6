package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"classroom-quiz-service/internal/domain"
)

// ExportHeader is the fixed column order of the results export.
var ExportHeader = []string{
	"Student Name",
	"USN",
	"Score (%)",
	"Correct Answers",
	"Total Questions",
	"Time Taken (seconds)",
	"Started At",
	"Completed At",
	"Status",
}

// ExportCSV writes one row per completed session in ranking order.
// The header is always written, so an empty classroom yields a header-only file.
func (s *AdminService) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	sessions, err := s.store.ListSessions(ctx, domain.StatusCompleted)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]domain.Session, len(sessions))
	for _, sess := range sessions {
		byID[sess.ID] = sess
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("write export header: %w", err)
	}
	entries := RankCompleted(sessions)
	for _, e := range entries {
		sess := byID[e.SessionID]
		completed := ""
		if sess.CompletedAt != nil {
			completed = sess.CompletedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			sess.Name,
			sess.USN,
			strconv.Itoa(sess.Percentage),
			strconv.Itoa(sess.CorrectAnswers),
			strconv.Itoa(sess.TotalQuestions),
			strconv.Itoa(sess.TimeTaken),
			sess.StartedAt.UTC().Format(time.RFC3339),
			completed,
			string(sess.Status),
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write export row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush export: %w", err)
	}
	return len(entries), nil
}

// ExportFilename names the download after the export date.
func ExportFilename(now time.Time) string {
	return "quiz-results-" + now.Format("2006-01-02") + ".csv"
}
