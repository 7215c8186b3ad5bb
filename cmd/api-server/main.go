package main

import (
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"partsmarket/config"
	"partsmarket/db/migrations"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "api-server",
	Short: "Parts procurement marketplace",
	Long: `Order intake, buyer offers, client quotes and chat for vehicle parts procurement.
Run "serve" for the HTTP API and "worker" for mail intake and CRM reconciliation.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory with config.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup читает конфигурацию и настраивает глобальный логгер
func setup() (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, err
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Environment == "development" || cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return cfg, nil
}

func connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dbConn, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.MigrateOnStart {
		if err := migrations.Run(dbConn.DB); err != nil {
			dbConn.Close()
			return nil, err
		}
	}
	return dbConn, nil
}
