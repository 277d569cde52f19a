// Package server exposes the Automn host HTTP API: runner host
// administration, runner registration, script execution, run inspection,
// and a WebSocket feed of live run activity.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AutomNexus/Automn-sub001/config"
	"github.com/AutomNexus/Automn-sub001/run/tracker"
	"github.com/AutomNexus/Automn-sub001/runner/dispatch"
	"github.com/AutomNexus/Automn-sub001/runner/registry"
	"github.com/AutomNexus/Automn-sub001/script"
)

// Server wires the execution core behind the HTTP boundary.
type Server struct {
	db         *sql.DB
	cfg        config.ServerConfig
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	tracker    *tracker.Tracker
	scripts    *script.Store
	logger     *zap.SugaredLogger

	mux        *http.ServeMux
	httpServer *http.Server

	// WebSocket clients receiving live run events
	mu      sync.RWMutex
	clients map[*Client]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server and registers its routes. Live run log lines and
// run settlements are pushed to connected WebSocket clients.
func New(db *sql.DB, cfg config.ServerConfig, reg *registry.Registry, disp *dispatch.Dispatcher, trk *tracker.Tracker, scripts *script.Store, logger *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		db:         db,
		cfg:        cfg,
		registry:   reg,
		dispatcher: disp,
		tracker:    trk,
		scripts:    scripts,
		logger:     logger,
		mux:        http.NewServeMux(),
		clients:    make(map[*Client]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.setupRoutes()

	disp.SetOnLog(s.broadcastRunLog)
	trk.SetOnSettle(s.broadcastRunSettled)

	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		// No global write timeout: synchronous dispatches hold the
		// caller's connection open for up to the per-job timeout.
	}

	s.logger.Infow("Automn host listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler exposes the route mux, used by httptest in package tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Shutdown drains HTTP connections and stops broadcast goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	for client := range s.clients {
		client.close()
	}
	s.clients = make(map[*Client]bool)
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}
