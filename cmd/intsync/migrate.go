package main

import (
	"github.com/spf13/cobra"

	"intsync/internal/config"
	"intsync/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		pool, err := connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := migrations.Apply(cmd.Context(), pool)
		if err != nil {
			return err
		}
		logger.Info().Strs("migrations", applied).Msg("schema up to date")
		return nil
	},
}
