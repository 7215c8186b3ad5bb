package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"partsmarket/db/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		cfg.DB.MigrateOnStart = true

		dbConn, err := connect(cfg.DB)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		version, err := migrations.Version(dbConn.DB)
		if err != nil {
			return err
		}
		log.Info().Int64("version", version).Msg("Database is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
