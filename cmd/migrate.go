package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadAll()
			if err != nil {
				return err
			}
			defer log.Close()

			db, err := storage.InitPostgres(&cfg.Postgres, log)
			if err != nil {
				return err
			}
			if err := storage.Migrate(db); err != nil {
				return err
			}
			log.Info("migration complete", zap.String("db", cfg.Postgres.DBName))
			return nil
		},
	}
}
