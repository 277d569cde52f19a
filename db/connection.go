package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/AutomNexus/Automn-sub001/errors"
)

// openPragmas tune the connection for the host's workload: WAL lets run
// settlement writes proceed while the API serves reads, foreign keys keep
// runs attached to real scripts, and the busy timeout makes concurrent
// settlers wait instead of erroring.
var openPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
}

// Open opens the host database at path and applies the connection pragmas.
// A nil logger keeps it silent, for CLI commands that print their own
// output.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	for _, pragma := range openPragmas {
		if _, err := database.Exec(pragma); err != nil {
			database.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}

	if logger != nil {
		logger.Infow("Database ready", "path", path)
	}
	return database, nil
}
