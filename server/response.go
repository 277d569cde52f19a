package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/AutomNexus/Automn-sub001/errors"
	"github.com/AutomNexus/Automn-sub001/runner/registry"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeClassifiedError maps a domain error to its HTTP status. Messages
// come from the error itself except for authentication failures, which get
// a fixed message so unknown ids and wrong secrets stay indistinguishable.
func writeClassifiedError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsUnauthorizedError(err):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, errors.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, registry.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.IsNotFoundError(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errors.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.IsRunnerUnavailableError(err):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, errors.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// readJSON reads and decodes a JSON request body
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return err
	}
	return nil
}

// requireMethod checks if the request method matches the expected method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// shortID truncates an ID to 8 characters for logging
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
