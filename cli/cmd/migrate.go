package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gatekeep-io/gatekeep/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending database migrations and exit.

Examples:
  gatekeep migrate
  GATEKEEP_DATABASE_HOST=db.internal gatekeep migrate`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return database.Migrate(&cfg.Database)
}
