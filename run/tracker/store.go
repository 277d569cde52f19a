package tracker

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AutomNexus/Automn-sub001/errors"
)

// Store handles persistence of runs and their log records.
type Store struct {
	db *sql.DB
}

// NewStore creates a new run store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRun inserts the provisional running-state record.
func (s *Store) CreateRun(r *Run) error {
	query := `
		INSERT INTO runs (
			id, script_id, status, started_at, code_version,
			triggered_by, triggered_by_user_id, http_method
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	userID := sql.NullString{}
	if r.TriggeredByUserID != nil {
		userID = sql.NullString{String: *r.TriggeredByUserID, Valid: true}
	}
	_, err := s.db.Exec(query,
		r.ID, r.ScriptID, r.Status, r.StartedAt, r.CodeVersion,
		r.TriggeredBy, userID, r.HTTPMethod,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create run")
	}
	return nil
}

// SettleRun writes the terminal status for a run. The status guard makes
// the transition single-shot at the storage layer: a run already settled
// by another path returns ErrConflict, never a second terminal write.
func (s *Store) SettleRun(runID string, status RunStatus, endedAt time.Time, durationMs int64, returnValue string) error {
	query := `
		UPDATE runs
		SET status = ?, ended_at = ?, duration_ms = ?, return_value = ?
		WHERE id = ? AND status = ?
	`
	res, err := s.db.Exec(query, status, endedAt, durationMs, returnValue, runID, RunStatusRunning)
	if err != nil {
		return errors.Wrapf(err, "failed to settle run %s", runID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := s.GetRun(runID); getErr != nil {
			return getErr
		}
		return errors.Wrapf(errors.ErrConflict, "run %s already settled", runID)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	query := `
		SELECT id, script_id, status, started_at, ended_at, duration_ms,
		       return_value, code_version, triggered_by, triggered_by_user_id, http_method
		FROM runs WHERE id = ?
	`
	var r Run
	var endedAt sql.NullTime
	var durationMs sql.NullInt64
	var userID sql.NullString

	err := s.db.QueryRow(query, id).Scan(
		&r.ID, &r.ScriptID, &r.Status, &r.StartedAt, &endedAt, &durationMs,
		&r.ReturnValue, &r.CodeVersion, &r.TriggeredBy, &userID, &r.HTTPMethod,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("run not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get run")
	}

	if endedAt.Valid {
		t := endedAt.Time
		r.EndedAt = &t
	}
	if durationMs.Valid {
		d := durationMs.Int64
		r.DurationMs = &d
	}
	if userID.Valid {
		u := userID.String
		r.TriggeredByUserID = &u
	}
	return &r, nil
}

// ListRunsForScript returns a script's runs, newest first.
func (s *Store) ListRunsForScript(scriptID string, limit int) ([]*Run, error) {
	query := `
		SELECT id, script_id, status, started_at, ended_at, duration_ms,
		       return_value, code_version, triggered_by, triggered_by_user_id, http_method
		FROM runs WHERE script_id = ? ORDER BY started_at DESC LIMIT ?
	`
	rows, err := s.db.Query(query, scriptID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list runs for script %s", scriptID)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var endedAt sql.NullTime
		var durationMs sql.NullInt64
		var userID sql.NullString
		if err := rows.Scan(
			&r.ID, &r.ScriptID, &r.Status, &r.StartedAt, &endedAt, &durationMs,
			&r.ReturnValue, &r.CodeVersion, &r.TriggeredBy, &userID, &r.HTTPMethod,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan run row")
		}
		if endedAt.Valid {
			t := endedAt.Time
			r.EndedAt = &t
		}
		if durationMs.Valid {
			d := durationMs.Int64
			r.DurationMs = &d
		}
		if userID.Valid {
			u := userID.String
			r.TriggeredByUserID = &u
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating runs")
	}
	return runs, nil
}

// CreateLogRecord writes the detailed execution record for a settled run.
func (s *Store) CreateLogRecord(rec *LogRecord) error {
	entries, err := json.Marshal(rec.Entries)
	if err != nil {
		return errors.Wrap(err, "failed to marshal diagnostics")
	}

	notifications := rec.Notifications
	if len(notifications) == 0 {
		notifications = json.RawMessage("[]")
	}
	input := rec.Input
	if len(input) == 0 {
		input = json.RawMessage("null")
	}

	query := `
		INSERT INTO run_logs (run_id, stdout, stderr, exit_code, entries, notifications, input)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query,
		rec.RunID, rec.Stdout, rec.Stderr, rec.ExitCode,
		string(entries), string(notifications), string(input),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create log record for run %s", rec.RunID)
	}
	return nil
}

// GetLogRecord retrieves the log record for a run, or ErrNotFound when the
// run never completed.
func (s *Store) GetLogRecord(runID string) (*LogRecord, error) {
	query := `SELECT run_id, stdout, stderr, exit_code, entries, notifications, input FROM run_logs WHERE run_id = ?`

	var rec LogRecord
	var entries, notifications, input string
	err := s.db.QueryRow(query, runID).Scan(
		&rec.RunID, &rec.Stdout, &rec.Stderr, &rec.ExitCode, &entries, &notifications, &input,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("log record not found for run: %s", runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get log record")
	}

	if err := json.Unmarshal([]byte(entries), &rec.Entries); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal diagnostics")
	}
	rec.Notifications = json.RawMessage(notifications)
	rec.Input = json.RawMessage(input)
	return &rec, nil
}

// CountLogRecords reports how many log records exist for a run. Used by
// idempotency tests; settled runs have exactly one.
func (s *Store) CountLogRecords(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM run_logs WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count log records")
	}
	return n, nil
}
