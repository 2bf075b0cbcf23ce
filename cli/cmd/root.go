// Package cmd implements the gatekeep command line interface.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gatekeep-io/gatekeep/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "gatekeep",
	Short: "Multi-tenant authentication and session lifecycle service",
	Long: `Gatekeep is a multi-tenant authentication service: credential and
social logins, email verification, TOTP two-factor, password reset and
concurrent-session management, backed by PostgreSQL and Redis.

Configuration is read from gatekeep.yaml (or the file named by
GATEKEEP_CONFIG) and GATEKEEP_-prefixed environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig loads configuration and applies its logging settings globally.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Logging.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	return cfg, nil
}
