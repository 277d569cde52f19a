// Package tracker turns raw runner output into a canonical, persisted run
// record. Every dispatched job ends with exactly one terminal run record,
// no matter which path (result, failure, timeout, abort) settles it.
package tracker

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of one execution attempt.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// Run is one execution attempt of a script, keyed by run id.
// CodeVersion is frozen at dispatch time: concurrent edits never change
// what version a run is attributed to.
type Run struct {
	ID                string     `json:"id"`
	ScriptID          string     `json:"scriptId"`
	Status            RunStatus  `json:"status"`
	StartedAt         time.Time  `json:"startedAt"`
	EndedAt           *time.Time `json:"endedAt,omitempty"`
	DurationMs        *int64     `json:"durationMs,omitempty"`
	ReturnValue       string     `json:"returnValue,omitempty"`
	CodeVersion       int        `json:"codeVersion"`
	TriggeredBy       string     `json:"triggeredBy"`
	TriggeredByUserID *string    `json:"triggeredByUserId,omitempty"`
	HTTPMethod        string     `json:"httpMethod"`
}

// Diagnostic is one normalized structured log entry attached to a run.
type Diagnostic struct {
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Type      string         `json:"type"`
	Context   map[string]any `json:"context,omitempty"`
	Order     int            `json:"order"`
	Timestamp time.Time      `json:"timestamp"`
}

// LogRecord is the execution detail written once at completion. A run in
// running state with no log record is the expected signature of a crash or
// hang before completion, not an error.
type LogRecord struct {
	RunID         string          `json:"runId"`
	Stdout        string          `json:"stdout"`
	Stderr        string          `json:"stderr"`
	ExitCode      int             `json:"exitCode"`
	Entries       []Diagnostic    `json:"entries"`
	Notifications json.RawMessage `json:"notifications,omitempty"`
	Input         json.RawMessage `json:"input,omitempty"`
}
