package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/realtime"
	transport "classroom-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", "", "port to listen on (overrides config and PORT)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.SetupLogging()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	b, err := openBackends(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer b.Close()

	for _, listen := range b.listeners {
		go func(listen func(context.Context) error) {
			if err := listen(ctx); err != nil {
				log.Errorf("event listener stopped: %v", err)
			}
		}(listen)
	}

	sweeper := app.NewSweeper(b.store, config.Duration(cfg.Quiz.AbandonAfter, 2*time.Hour), cfg.Quiz.SweepSchedule)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	quiz := app.NewQuizService(b.store, b.publisher, app.QuizConfig{StrictUSN: cfg.Quiz.StrictUSN})
	board := app.NewLeaderboardService(b.store)
	admin := app.NewAdminService(b.store, b.publisher)
	if cfg.Admin.PasswordHash == "" {
		log.Warn("admin.password_hash is not set, admin routes are open")
	}

	router := transport.NewRouter(quiz, board, admin, hub, transport.Options{
		Mode:              cfg.Server.Mode,
		ClientURL:         cfg.Server.ClientURL,
		RateLimit:         cfg.Server.RateLimit,
		RateWindow:        config.Duration(cfg.Server.RateWindow, 15*time.Minute),
		AdminPasswordHash: cfg.Admin.PasswordHash,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router.Engine(),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		log.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
