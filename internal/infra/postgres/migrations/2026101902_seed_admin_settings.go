package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 2026101902_seed_admin_settings.sql
var seedAdminSettingsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, seedAdminSettingsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DELETE FROM admin_settings WHERE key IN ('quiz_time_limit', 'quiz_enabled', 'max_attempts', 'show_results_immediately')`)
			return err
		},
	)
}
