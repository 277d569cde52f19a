package server

import (
	"net/http"
	"strings"

	"github.com/AutomNexus/Automn-sub001/runner/registry"
)

// HandleRunners lists runner hosts (GET) or provisions one (POST).
func (s *Server) HandleRunners(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		hosts, err := s.registry.List()
		if err != nil {
			writeClassifiedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"runners": hosts})

	case http.MethodPost:
		var req struct {
			Name      string `json:"name"`
			Endpoint  string `json:"endpoint"`
			AdminOnly bool   `json:"adminOnly"`
		}
		if readJSON(w, r, &req) != nil {
			return
		}
		host, secret, err := s.registry.Provision(req.Name, req.Endpoint, req.AdminOnly)
		if err != nil {
			writeClassifiedError(w, err)
			return
		}
		// The plaintext secret appears in this response only; afterwards
		// the host keeps just the hash.
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"runner": host,
			"secret": secret,
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleRunnerByID routes /api/runners/{id} and its sub-actions:
// register, disable, enable, rotate-secret.
func (s *Server) HandleRunnerByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/runners/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Runner host id required")
		return
	}
	hostID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleRunnerGet(w, hostID)
		case http.MethodDelete:
			s.handleRunnerDelete(w, hostID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	switch parts[1] {
	case "register":
		s.handleRunnerRegister(w, r, hostID)
	case "disable":
		s.handleRunnerGate(w, r, hostID, true)
	case "enable":
		s.handleRunnerGate(w, r, hostID, false)
	case "rotate-secret":
		s.handleRunnerRotateSecret(w, r, hostID)
	default:
		writeError(w, http.StatusNotFound, "Unknown runner action")
	}
}

func (s *Server) handleRunnerGet(w http.ResponseWriter, hostID string) {
	host, err := s.registry.Get(hostID)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runner":  host,
		"healthy": s.registry.IsHealthy(host),
	})
}

func (s *Server) handleRunnerDelete(w http.ResponseWriter, hostID string) {
	if err := s.registry.Delete(hostID); err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleRunnerRegister is the runner-facing register/heartbeat endpoint.
// Unknown host ids and wrong secrets produce the same 401.
func (s *Server) handleRunnerRegister(w http.ResponseWriter, r *http.Request, hostID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req registry.RegisterRequest
	if readJSON(w, r, &req) != nil {
		return
	}
	req.HostID = hostID

	host, err := s.registry.Register(req)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runner":               host,
		"hostVersion":          s.registry.HostVersion(),
		"minimumRunnerVersion": s.registry.MinimumRunnerVersion(),
	})
}

func (s *Server) handleRunnerGate(w http.ResponseWriter, r *http.Request, hostID string, disable bool) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if readJSON(w, r, &req) != nil {
			return
		}
	}

	var err error
	if disable {
		err = s.registry.Disable(hostID, req.Reason)
	} else {
		err = s.registry.Enable(hostID, req.Reason)
	}
	if err != nil {
		writeClassifiedError(w, err)
		return
	}

	host, err := s.registry.Get(hostID)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runner": host})
}

func (s *Server) handleRunnerRotateSecret(w http.ResponseWriter, r *http.Request, hostID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	secret, err := s.registry.RotateSecret(hostID)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}
