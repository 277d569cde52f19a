package tracker

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/AutomNexus/Automn-sub001/runner/protocol"
)

// CanonicalResult is the normalized shape every run outcome is coerced
// into before persistence, regardless of what the runner reported.
type CanonicalResult struct {
	Stdout        string
	Stderr        string
	ExitCode      int
	DurationMs    int64
	ReturnValue   string
	Entries       []Diagnostic
	Notifications json.RawMessage
	Input         json.RawMessage
	Success       bool
}

// Normalize coerces arbitrary runner output into the canonical shape.
// Success is computed here, not trusted from the runner: success iff exit
// code is 0 and trimmed stderr is empty.
func Normalize(res *protocol.RunResult, elapsed time.Duration, now time.Time) *CanonicalResult {
	c := &CanonicalResult{
		Stdout:        coerceString(res.Stdout),
		Stderr:        coerceString(res.Stderr),
		ExitCode:      coerceInt(res.Code, 1),
		Notifications: res.Notifications,
		Input:         res.Input,
	}

	c.DurationMs = int64(coerceInt(res.Duration, 0))
	if c.DurationMs <= 0 {
		c.DurationMs = elapsed.Milliseconds()
	}

	if len(res.ReturnData) > 0 {
		c.ReturnValue = string(res.ReturnData)
	}

	c.Success = c.ExitCode == 0 && strings.TrimSpace(c.Stderr) == ""
	c.Entries = normalizeEntries(res.Logs, now)

	if len(c.Entries) == 0 {
		c.Entries = []Diagnostic{synthesizeEntry(c, now)}
	}

	return c
}

// normalizeEntries coerces runner-supplied diagnostics into the canonical
// entry shape with a stable order index even when the runner supplied none.
func normalizeEntries(raw []map[string]any, now time.Time) []Diagnostic {
	entries := make([]Diagnostic, 0, len(raw))
	for i, m := range raw {
		d := Diagnostic{
			Message:   coerceString(m["message"]),
			Level:     coerceString(m["level"]),
			Type:      coerceString(m["type"]),
			Order:     i,
			Timestamp: now,
		}
		if d.Level == "" {
			d.Level = "info"
		}
		if d.Type == "" {
			d.Type = "general"
		}
		if order, ok := m["order"]; ok {
			d.Order = coerceInt(order, i)
		}
		if ts := coerceString(m["timestamp"]); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				d.Timestamp = parsed
			}
		}
		if ctx, ok := m["context"].(map[string]any); ok {
			d.Context = ctx
		}
		entries = append(entries, d)
	}
	return entries
}

// synthesizeEntry guarantees every run has at least one human-readable
// diagnostic line. Auth-flavored failures get classified separately so
// operators can spot credential problems at a glance.
func synthesizeEntry(c *CanonicalResult, now time.Time) Diagnostic {
	if c.Success {
		return Diagnostic{
			Message:   "Script completed successfully",
			Level:     "success",
			Type:      "general",
			Order:     0,
			Timestamp: now,
		}
	}

	message := strings.TrimSpace(c.Stderr)
	if message == "" {
		message = "Script failed with exit code " + strconv.Itoa(c.ExitCode)
	}

	if isAuthFailure(message, c.ExitCode) {
		return Diagnostic{
			Message:   message,
			Level:     "warn",
			Type:      "authentication",
			Order:     0,
			Timestamp: now,
		}
	}
	return Diagnostic{
		Message:   message,
		Level:     "error",
		Type:      "general",
		Order:     0,
		Timestamp: now,
	}
}

// isAuthFailure sniffs failure text and exit codes for authentication
// problems.
func isAuthFailure(text string, code int) bool {
	if code == 401 || code == 403 {
		return true
	}
	lowered := strings.ToLower(text)
	for _, marker := range []string{"unauthorized", "authentication", "auth failed", "invalid credential", "forbidden", "401", "403"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// coerceString forces any runner-supplied value to a string. Non-string
// scalars and objects are rendered as JSON.
func coerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// coerceInt forces any runner-supplied value to an integer, falling back
// to def when absent or invalid.
func coerceInt(v any, def int) int {
	switch n := v.(type) {
	case nil:
		return def
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		return def
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
		return def
	default:
		return def
	}
}
