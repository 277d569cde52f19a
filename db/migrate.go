package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/AutomNexus/Automn-sub001/errors"
)

//go:embed sqlite/migrations/*.sql
var migrationFS embed.FS

const migrationsDir = "sqlite/migrations"

// Migrate brings the schema up to date by applying pending migrations in
// version order. Each migration runs in its own transaction and records
// itself in schema_migrations. A nil logger keeps it silent.
func Migrate(database *sql.DB, logger *zap.SugaredLogger) error {
	names, err := migrationNames()
	if err != nil {
		return err
	}

	applied := 0
	for _, name := range names {
		didApply, err := applyMigration(database, name, logger)
		if err != nil {
			return err
		}
		if didApply {
			applied++
		}
	}

	if logger != nil {
		if applied == 0 {
			logger.Debugw("Schema up to date", "migrations", len(names))
		} else {
			logger.Infow("Schema migrated", "applied", applied, "migrations", len(names))
		}
	}
	return nil
}

// migrationNames lists the embedded migration files in apply order. The
// bootstrap migration sorts first and creates schema_migrations itself.
func migrationNames() ([]string, error) {
	entries, err := migrationFS.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read embedded migrations")
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// applyMigration runs a single migration unless its version is already
// recorded. Returns whether it actually applied.
func applyMigration(database *sql.DB, name string, logger *zap.SugaredLogger) (bool, error) {
	version := strings.SplitN(name, "_", 2)[0]

	var exists bool
	err := database.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version,
	).Scan(&exists)
	if err != nil {
		// schema_migrations is absent only on a fresh database, where the
		// bootstrap migration has not run yet.
		if version != "000" {
			return false, errors.Wrapf(err, "schema_migrations missing before %s", name)
		}
	} else if exists {
		return false, nil
	}

	stmt, err := migrationFS.ReadFile(path.Join(migrationsDir, name))
	if err != nil {
		return false, errors.Wrapf(err, "failed to read migration %s", name)
	}

	if logger != nil {
		logger.Infow("Applying migration", "migration", name)
	}

	tx, err := database.Begin()
	if err != nil {
		return false, errors.Wrapf(err, "failed to begin transaction for %s", name)
	}
	if _, err := tx.Exec(string(stmt)); err != nil {
		tx.Rollback()
		return false, errors.Wrapf(err, "failed to execute migration %s", name)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		tx.Rollback()
		return false, errors.Wrapf(err, "failed to record migration %s", name)
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrapf(err, "failed to commit migration %s", name)
	}
	return true, nil
}
