package server

import (
	"net/http"
)

// setupRoutes configures all HTTP handlers
func (s *Server) setupRoutes() {
	// Runner host administration (operator-facing)
	s.mux.HandleFunc("/api/runners", s.corsMiddleware(s.HandleRunners))     // List (GET) / provision (POST)
	s.mux.HandleFunc("/api/runners/", s.corsMiddleware(s.HandleRunnerByID)) // Get/delete/disable/enable/rotate-secret/register

	// Script execution and run inspection
	s.mux.HandleFunc("/api/scripts/", s.corsMiddleware(s.HandleScriptSubresource)) // POST {id}/run, GET {id}/runs
	s.mux.HandleFunc("/api/runs/", s.corsMiddleware(s.HandleRunByID))              // GET {id}, GET {id}/log

	// Live run events (log lines, settlements)
	s.mux.HandleFunc("/ws", s.corsMiddleware(s.HandleWebSocket))

	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
}

// corsMiddleware adds CORS headers to HTTP responses using configured allowed origins
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
