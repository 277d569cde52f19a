package tracker

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AutomNexus/Automn-sub001/errors"
	"github.com/AutomNexus/Automn-sub001/runner/protocol"
	"github.com/AutomNexus/Automn-sub001/script"
)

// SettleFunc observes terminal runs, e.g. to broadcast them to operator
// UIs. Called after persistence, outside the tracker lock.
type SettleFunc func(run *Run, rec *LogRecord)

// Tracker owns the run state machine: created -> running -> {success,
// error}, terminal, no further transitions. Complete and Fail are
// idempotent because both the dispatch call site and an asynchronous
// continuation may race to settle the same run.
type Tracker struct {
	store   *Store
	scripts *script.Store
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	active   map[string]*activeRun
	onSettle SettleFunc

	now func() time.Time
}

type activeRun struct {
	startedAt time.Time
	input     json.RawMessage
	settled   bool
}

// New creates a run tracker.
func New(store *Store, scripts *script.Store, logger *zap.SugaredLogger) *Tracker {
	return &Tracker{
		store:   store,
		scripts: scripts,
		logger:  logger,
		active:  make(map[string]*activeRun),
		now:     time.Now,
	}
}

// SetOnSettle registers an observer for terminal runs.
func (t *Tracker) SetOnSettle(fn SettleFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettle = fn
}

// Create inserts the provisional running-state record before dispatch. The
// script's current maximum stored version is captured as an immutable
// snapshot so concurrent edits never retroactively change attribution.
func (t *Tracker) Create(runID string, sc *script.Script, triggeredBy string, userID *string, input json.RawMessage, httpMethod string) (*Run, error) {
	codeVersion, err := t.scripts.MaxVersion(sc.ID)
	if err != nil {
		return nil, err
	}

	now := t.now().UTC()
	run := &Run{
		ID:                runID,
		ScriptID:          sc.ID,
		Status:            RunStatusRunning,
		StartedAt:         now,
		CodeVersion:       codeVersion,
		TriggeredBy:       triggeredBy,
		TriggeredByUserID: userID,
		HTTPMethod:        httpMethod,
	}

	if err := t.store.CreateRun(run); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.active[runID] = &activeRun{startedAt: now, input: input}
	t.mu.Unlock()

	t.logger.Debugw("Run created",
		"run_id", runID,
		"script_id", sc.ID,
		"code_version", codeVersion,
		"triggered_by", triggeredBy,
	)
	return run, nil
}

// Complete settles the run from a runner-reported result. A second call
// after settlement (by either Complete or Fail) is a no-op.
func (t *Tracker) Complete(runID string, res *protocol.RunResult) error {
	ar, claimed := t.claim(runID)
	if !claimed {
		return nil
	}

	now := t.now().UTC()
	canonical := Normalize(res, now.Sub(ar.startedAt), now)
	if len(canonical.Input) == 0 {
		canonical.Input = ar.input
	}
	return t.persist(runID, canonical, now)
}

// Fail settles the run from a dispatch-side failure (unreachable runner,
// timeout, protocol violation, abort). Idempotent like Complete.
func (t *Tracker) Fail(runID string, cause error) error {
	ar, claimed := t.claim(runID)
	if !claimed {
		return nil
	}

	now := t.now().UTC()
	message := "unknown failure"
	if cause != nil {
		message = cause.Error()
	}

	canonical := &CanonicalResult{
		Stderr:     message,
		ExitCode:   1,
		DurationMs: now.Sub(ar.startedAt).Milliseconds(),
		Input:      ar.input,
		Success:    false,
	}
	canonical.Entries = []Diagnostic{synthesizeEntry(canonical, now)}
	return t.persist(runID, canonical, now)
}

// claim marks the run settled exactly once. Returns the active record and
// whether the caller won the settlement.
func (t *Tracker) claim(runID string) (*activeRun, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ar, ok := t.active[runID]
	if !ok {
		// Unknown to this process (e.g. observed after restart). Settle
		// only if the persisted run is still running.
		run, err := t.store.GetRun(runID)
		if err != nil || run.Status != RunStatusRunning {
			return nil, false
		}
		ar = &activeRun{startedAt: run.StartedAt}
		t.active[runID] = ar
	}
	if ar.settled {
		return nil, false
	}
	ar.settled = true
	return ar, true
}

// persist writes the terminal record. The run's terminal status goes first;
// the detailed log record is written afterward and may fail independently.
// A run visible with terminal status but no log record is a documented
// degraded mode, not a crash.
func (t *Tracker) persist(runID string, c *CanonicalResult, endedAt time.Time) error {
	status := RunStatusError
	if c.Success {
		status = RunStatusSuccess
	}

	if err := t.store.SettleRun(runID, status, endedAt, c.DurationMs, c.ReturnValue); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			// Another settler (e.g. a second tracker over the same store)
			// already wrote the terminal record.
			return nil
		}
		return err
	}

	rec := &LogRecord{
		RunID:         runID,
		Stdout:        c.Stdout,
		Stderr:        c.Stderr,
		ExitCode:      c.ExitCode,
		Entries:       c.Entries,
		Notifications: c.Notifications,
		Input:         c.Input,
	}
	if err := t.store.CreateLogRecord(rec); err != nil {
		t.logger.Warnw("Run settled but log record write failed",
			"run_id", runID,
			"status", status,
			"error", err,
		)
	}

	t.logger.Infow("Run settled",
		"run_id", runID,
		"status", status,
		"exit_code", c.ExitCode,
		"duration_ms", c.DurationMs,
	)

	t.mu.Lock()
	onSettle := t.onSettle
	delete(t.active, runID)
	t.mu.Unlock()

	if onSettle != nil {
		run, err := t.store.GetRun(runID)
		if err == nil {
			onSettle(run, rec)
		}
	}
	return nil
}

// Get returns a run by id.
func (t *Tracker) Get(runID string) (*Run, error) {
	return t.store.GetRun(runID)
}

// GetLog returns the detailed log record for a run.
func (t *Tracker) GetLog(runID string) (*LogRecord, error) {
	return t.store.GetLogRecord(runID)
}

// ListForScript returns a script's runs, newest first.
func (t *Tracker) ListForScript(scriptID string, limit int) ([]*Run, error) {
	return t.store.ListRunsForScript(scriptID, limit)
}
