package server

// This file contains broadcasting functionality for live run activity:
// log lines streamed from in-flight runs and terminal run settlements.

import (
	"time"

	"github.com/AutomNexus/Automn-sub001/run/tracker"
)

// RunLogMessage carries one live log line from an in-flight run.
type RunLogMessage struct {
	Type      string `json:"type"`
	RunID     string `json:"runId"`
	Line      string `json:"line"`
	Timestamp int64  `json:"timestamp"`
}

// RunSettledMessage announces a run reaching terminal state.
type RunSettledMessage struct {
	Type      string       `json:"type"`
	Run       *tracker.Run `json:"run"`
	ExitCode  int          `json:"exitCode"`
	Timestamp int64        `json:"timestamp"`
}

// broadcastMessage sends a message to all connected clients.
// Returns the number of clients that accepted the message (channel not full).
func (s *Server) broadcastMessage(msg interface{}) int {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		select {
		case client.sendMsg <- msg:
			sent++
		default:
			// Channel full - skip
		}
	}
	return sent
}

// broadcastRunLog forwards a live log line. Wired as the dispatcher's log
// observer; must not block the stream consumer.
func (s *Server) broadcastRunLog(runID, line string) {
	msg := RunLogMessage{
		Type:      "run_log",
		RunID:     runID,
		Line:      line,
		Timestamp: time.Now().Unix(),
	}
	sent := s.broadcastMessage(msg)
	s.logger.Debugw("Broadcasted run log line",
		"run_id", shortID(runID),
		"clients", sent,
	)
}

// broadcastRunSettled announces a terminal run. Wired as the tracker's
// settle observer.
func (s *Server) broadcastRunSettled(run *tracker.Run, rec *tracker.LogRecord) {
	msg := RunSettledMessage{
		Type:      "run_settled",
		Run:       run,
		Timestamp: time.Now().Unix(),
	}
	if rec != nil {
		msg.ExitCode = rec.ExitCode
	}
	sent := s.broadcastMessage(msg)
	s.logger.Debugw("Broadcasted run settlement",
		"run_id", shortID(run.ID),
		"status", run.Status,
		"clients", sent,
	)
}
