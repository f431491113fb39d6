package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/domain"
)

// NewExportCmd writes the results CSV without going through the HTTP API.
func NewExportCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export completed quiz results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			cfg.SetupLogging()
			b, err := openBackends(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				if out == "auto" {
					out = app.ExportFilename(time.Now())
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			rows, err := app.NewAdminService(b.store, b.publisher).ExportCSV(cmd.Context(), w)
			if err != nil {
				return err
			}
			if out != "" {
				log.Infof("wrote %d results to %s", rows, out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", `output file; "auto" picks quiz-results-<date>.csv (default stdout)`)
	return cmd
}

// NewResetCmd deletes every user, session and answer.
func NewResetCmd(configPath *string) *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all users, sessions and answers (settings are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			cfg.SetupLogging()
			b, err := openBackends(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := app.NewAdminService(b.store, b.publisher).Reset(cmd.Context(), confirm); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all quiz data has been reset")
			return nil
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "must be "+domain.ResetConfirmation)
	return cmd
}

// NewHashPasswordCmd prints a bcrypt hash for admin.password_hash.
func NewHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for the admin password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}
