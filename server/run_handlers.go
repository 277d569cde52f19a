package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/AutomNexus/Automn-sub001/internal/version"
	"github.com/AutomNexus/Automn-sub001/runner/dispatch"
)

// maxRunInputBytes bounds the caller-supplied input body.
const maxRunInputBytes = 1 << 20

// HandleScriptSubresource routes /api/scripts/{id}/run (POST) and
// /api/scripts/{id}/runs (GET).
func (s *Server) HandleScriptSubresource(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/scripts/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	scriptID := parts[0]

	switch parts[1] {
	case "run":
		s.handleScriptRun(w, r, scriptID)
	case "runs":
		s.handleScriptRuns(w, r, scriptID)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// handleScriptRun admits one execution. Queued mode (the default) returns
// 202 with the run id; sync mode holds the connection until the terminal
// result and returns the settled run.
func (s *Server) handleScriptRun(w http.ResponseWriter, r *http.Request, scriptID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	sc, err := s.scripts.Get(scriptID)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}

	input, err := io.ReadAll(io.LimitReader(r.Body, maxRunInputBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	mode := dispatch.ModeQueued
	if r.URL.Query().Get("mode") == "sync" {
		mode = dispatch.ModeSync
	}

	req := &dispatch.Request{
		Script:      sc,
		Input:       json.RawMessage(input),
		TriggeredBy: "api",
		HTTPMethod:  r.Method,
		Mode:        mode,
	}
	if userID := r.Header.Get("x-automn-user-id"); userID != "" {
		req.TriggeredByUserID = &userID
	}

	ack, run, err := s.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		s.logger.Warnw("Dispatch rejected",
			"script_id", shortID(scriptID), "error", err)
		writeClassifiedError(w, err)
		return
	}

	if mode == dispatch.ModeSync {
		log, logErr := s.tracker.GetLog(run.ID)
		resp := map[string]interface{}{"run": run}
		if logErr == nil {
			resp["log"] = log
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleScriptRuns(w http.ResponseWriter, r *http.Request, scriptID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	runs, err := s.tracker.ListForScript(scriptID, limit)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// HandleRunByID routes /api/runs/{id} and /api/runs/{id}/log.
func (s *Server) HandleRunByID(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Run id required")
		return
	}
	runID := parts[0]

	if len(parts) > 1 && parts[1] == "log" {
		log, err := s.tracker.GetLog(runID)
		if err != nil {
			writeClassifiedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, log)
		return
	}

	run, err := s.tracker.Get(runID)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleHealth reports process liveness and whether any runner host looks
// alive under the staleness window.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	anyRunner, err := s.registry.AnyHealthy()
	if err != nil {
		s.logger.Warnw("Health check failed to query runners", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"version":          version.Version,
		"runnersAvailable": anyRunner,
	})
}
