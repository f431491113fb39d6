package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/infra/postgres"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			cfg.SetupLogging()
			if cfg.Storage.Driver != config.StoragePostgres {
				return fmt.Errorf("migrations apply to postgres storage only, configured driver is %s", cfg.Storage.Driver)
			}
			if down {
				return postgres.Rollback(cmd.Context(), cfg.Postgres.URL)
			}
			return postgres.Migrate(cmd.Context(), cfg.Postgres.URL)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the last migration group")
	return cmd
}
