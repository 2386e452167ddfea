package main

import (
	"fmt"

	"github.com/medibook/medibook/libs/config"
	"github.com/medibook/medibook/libs/db"
	"github.com/medibook/medibook/libs/runtime"
	"github.com/medibook/medibook/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := runtime.NewLogger(config.String("SERVICE_NAME", "booking-service"))
			dbURL, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 2})
			if err != nil {
				return fmt.Errorf("db connection failed: %w", err)
			}
			defer pool.Close()

			applied, err := db.Migrate(ctx, pool, storage.Migrations)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("migrations applied", "count", len(applied), "names", applied)
			return nil
		},
	}
}
