package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AutomNexus/Automn-sub001/db"
	"github.com/AutomNexus/Automn-sub001/errors"
	"github.com/AutomNexus/Automn-sub001/logger"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the Automn database",
	Long: `Manage database operations including migrations and statistics.

Examples:
  automn db migrate                # Apply pending schema migrations
  automn db stats                  # Show run and runner statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func openDatabase() (*sql.DB, string, error) {
	cfg, err := loadConfig("")
	if err != nil {
		return nil, "", err
	}
	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to open database")
	}
	return database, cfg.Database.Path, nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "migration failed")
	}
	fmt.Printf("Database at %s is up to date\n", path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "migration failed")
	}

	var runners, scripts, runs, running int
	if err := database.QueryRow(`SELECT COUNT(*) FROM runner_hosts`).Scan(&runners); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query runner stats: %w", err)
	}
	if err := database.QueryRow(`SELECT COUNT(*) FROM scripts`).Scan(&scripts); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query script stats: %w", err)
	}
	if err := database.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query run stats: %w", err)
	}
	if err := database.QueryRow(`SELECT COUNT(*) FROM runs WHERE status = 'running'`).Scan(&running); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query running stats: %w", err)
	}

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Database Path:  %s\n", path)
	fmt.Printf("Runner Hosts:   %d\n", runners)
	fmt.Printf("Scripts:        %d\n", scripts)
	fmt.Printf("Runs:           %d\n", runs)
	fmt.Printf("Runs In Flight: %d\n", running)
	return nil
}
