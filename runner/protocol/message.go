// Package protocol implements the streaming wire protocol between the
// Automn host and a runner host: one HTTP POST per job, an NDJSON response
// carrying live log lines, and exactly one terminal result.
package protocol

import (
	"encoding/json"

	"github.com/AutomNexus/Automn-sub001/script"
)

// Header names for host -> runner authentication.
const (
	HeaderRunnerID     = "x-automn-runner-id"
	HeaderRunnerName   = "x-automn-runner-name"
	HeaderRunnerSecret = "x-automn-runner-secret"
)

// Credentials authenticate the host to a runner on each dispatch.
type Credentials struct {
	RunnerID   string
	RunnerName string
	Secret     string
}

// Job is the unary request body sent to a runner: the full job descriptor
// in a single JSON document.
type Job struct {
	RunID   string          `json:"runId"`
	Script  *script.Script  `json:"script"`
	ReqBody json.RawMessage `json:"reqBody,omitempty"`
}

// Kind tags the wire message shapes a runner may stream back.
type Kind string

const (
	KindLog    Kind = "log"
	KindResult Kind = "result"
	// KindOther covers any well-formed object with an unrecognized type.
	// The raw payload is preserved for forward compatibility.
	KindOther Kind = "other"
)

// Message is one parsed NDJSON line from the runner.
type Message struct {
	Kind   Kind
	Line   string          // KindLog
	Result *RunResult      // KindResult
	Raw    json.RawMessage // KindOther: the unrecognized payload
}

// RunResult is the terminal payload a runner reports for a job. Fields the
// runner controls are loosely typed; the run tracker owns coercion into the
// canonical record shape.
type RunResult struct {
	Stdout        any              `json:"stdout"`
	Stderr        any              `json:"stderr"`
	Code          any              `json:"code"`
	Duration      any              `json:"duration"`
	ReturnData    json.RawMessage  `json:"returnData,omitempty"`
	Logs          []map[string]any `json:"automnLogs,omitempty"`
	Notifications json.RawMessage  `json:"automnNotifications,omitempty"`
	Input         json.RawMessage  `json:"input,omitempty"`
}

// envelope is the minimal shape every stream line must decode into.
type envelope struct {
	Type string          `json:"type"`
	Line string          `json:"line"`
	Data json.RawMessage `json:"data"`
}

// parseLine decodes one complete NDJSON line into a Message.
func parseLine(line []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case "log":
		return &Message{Kind: KindLog, Line: env.Line}, nil
	case "result":
		var res RunResult
		if err := json.Unmarshal(env.Data, &res); err != nil {
			return nil, err
		}
		return &Message{Kind: KindResult, Result: &res}, nil
	default:
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		return &Message{Kind: KindOther, Raw: raw}, nil
	}
}
