// Package dispatch admits script execution requests, resolves them to a
// runner host, and drives the streamed exchange to a terminal run record.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AutomNexus/Automn-sub001/config"
	"github.com/AutomNexus/Automn-sub001/errors"
	"github.com/AutomNexus/Automn-sub001/run/tracker"
	"github.com/AutomNexus/Automn-sub001/runner/protocol"
	"github.com/AutomNexus/Automn-sub001/runner/registry"
	"github.com/AutomNexus/Automn-sub001/script"
)

// Mode selects whether the caller blocks for the terminal result.
// It never changes runner selection or protocol behavior.
type Mode string

const (
	// ModeQueued acknowledges immediately; completion is recorded
	// asynchronously.
	ModeQueued Mode = "queued"
	// ModeSync holds the caller until the job's terminal result is known.
	ModeSync Mode = "sync"
)

// LogFunc receives live log lines from in-flight runs, e.g. for broadcast
// to operator UIs. Must not block.
type LogFunc func(runID, line string)

// Request is one admission attempt.
type Request struct {
	Script            *script.Script
	Input             json.RawMessage
	TriggeredBy       string
	TriggeredByUserID *string
	HTTPMethod        string
	Mode              Mode
}

// Ack is the immediate response for a queued dispatch.
type Ack struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// Dispatcher owns job admission: runner resolution, the health gate, the
// two-level capacity gates, and settlement through the tracker.
type Dispatcher struct {
	registry *registry.Registry
	scripts  *script.Store
	tracker  *tracker.Tracker
	client   *protocol.Client
	logger   *zap.SugaredLogger
	onLog    LogFunc

	mu             sync.Mutex
	global         *gate
	hosts          map[string]*gate
	inflight       map[string]map[string]*protocol.Exchange
	inheritRunner  bool
	defaultTimeout time.Duration
}

// New creates a dispatcher.
func New(reg *registry.Registry, scripts *script.Store, trk *tracker.Tracker, client *protocol.Client, cfg config.DispatchConfig, logger *zap.SugaredLogger) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		scripts:  scripts,
		tracker:  trk,
		client:   client,
		logger:   logger,
		hosts:    make(map[string]*gate),
		inflight: make(map[string]map[string]*protocol.Exchange),
	}
	d.ApplyConfig(cfg)
	return d
}

// ApplyConfig installs dispatch settings. Safe at runtime; the config
// watcher calls it on reload. In-flight jobs finish against the gates they
// acquired.
func (d *Dispatcher) ApplyConfig(cfg config.DispatchConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.global = newGate(int64(cfg.MaxInFlight))
	d.hosts = make(map[string]*gate)
	d.inheritRunner = cfg.InheritCategoryRunner
	d.defaultTimeout = time.Duration(cfg.DefaultJobTimeoutMs) * time.Millisecond
}

// SetOnLog registers the live log observer.
func (d *Dispatcher) SetOnLog(fn LogFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onLog = fn
}

// AbortHost tears down every in-flight exchange against the given host.
// The registry calls this when a host is disabled; each affected run
// settles as an error through the normal exchange path.
func (d *Dispatcher) AbortHost(hostID, reason string) {
	msg := "runner host disabled"
	if reason != "" {
		msg += ": " + reason
	}

	d.mu.Lock()
	exchanges := make([]*protocol.Exchange, 0, len(d.inflight[hostID]))
	for _, ex := range d.inflight[hostID] {
		exchanges = append(exchanges, ex)
	}
	d.mu.Unlock()

	for _, ex := range exchanges {
		ex.Abort(msg)
	}
	if len(exchanges) > 0 {
		d.logger.Infow("Aborted in-flight runs for disabled runner host",
			"host_id", hostID, "count", len(exchanges))
	}
}

func (d *Dispatcher) trackExchange(hostID, runID string, ex *protocol.Exchange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.inflight[hostID]
	if !ok {
		m = make(map[string]*protocol.Exchange)
		d.inflight[hostID] = m
	}
	m[runID] = ex
}

func (d *Dispatcher) untrackExchange(hostID, runID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.inflight[hostID]
	if !ok {
		return
	}
	delete(m, runID)
	if len(m) == 0 {
		delete(d.inflight, hostID)
	}
}

// Dispatch admits one job. Queued mode returns an Ack as soon as the run
// record exists; sync mode returns the settled run. Admission failures
// (no runner configured, unhealthy runner) surface before any run record
// is created.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Ack, *tracker.Run, error) {
	host, err := d.resolveRunner(req.Script)
	if err != nil {
		return nil, nil, err
	}

	runID := uuid.NewString()
	if _, err := d.tracker.Create(runID, req.Script, req.TriggeredBy, req.TriggeredByUserID, req.Input, req.HTTPMethod); err != nil {
		return nil, nil, err
	}

	if req.Mode == ModeSync {
		d.execute(ctx, runID, req, host)
		run, err := d.tracker.Get(runID)
		if err != nil {
			return nil, nil, err
		}
		return nil, run, nil
	}

	go d.execute(context.Background(), runID, req, host)
	return &Ack{RunID: runID, Status: "accepted"}, nil, nil
}

// resolveRunner applies the resolution order: the script's own runner id,
// then the owning category's default when inheritance is enabled, then
// none. No network is touched; health is checked from registry state.
func (d *Dispatcher) resolveRunner(sc *script.Script) (*registry.Host, error) {
	d.mu.Lock()
	inherit := d.inheritRunner
	d.mu.Unlock()

	hostID := sc.RunnerHostID
	if hostID == "" && inherit && sc.InheritRunner && sc.CategoryID != "" {
		cat, err := d.scripts.GetCategory(sc.CategoryID)
		if err != nil && !errors.IsNotFoundError(err) {
			return nil, err
		}
		if cat != nil {
			hostID = cat.DefaultRunnerHostID
		}
	}
	if hostID == "" {
		return nil, errors.NewRunnerUnavailableError("no runner configured")
	}

	host, err := d.registry.Get(hostID)
	if errors.IsNotFoundError(err) {
		return nil, errors.NewRunnerUnavailableError("runner host %s not found", hostID)
	}
	if err != nil {
		return nil, err
	}
	if !d.registry.IsHealthy(host) {
		return nil, errors.NewRunnerUnavailableError("runner host %s is not healthy", host.Name)
	}
	return host, nil
}

// execute waits for capacity, performs the streamed exchange, and settles
// the run. Every path out of this function settles exactly once via the
// tracker's own idempotency guard.
func (d *Dispatcher) execute(ctx context.Context, runID string, req *Request, host *registry.Host) {
	d.mu.Lock()
	global := d.global
	hostGate := d.hostGate(host)
	onLog := d.onLog
	timeout := d.defaultTimeout
	d.mu.Unlock()

	if host.JobTimeout > 0 {
		timeout = host.JobTimeout
	}

	// Jobs beyond capacity wait in arrival order rather than being
	// rejected. Global first, then per-host.
	if err := global.acquire(ctx); err != nil {
		d.settleFail(runID, errors.Wrap(err, "cancelled waiting for dispatch capacity"))
		return
	}
	defer global.release()

	if err := hostGate.acquire(ctx); err != nil {
		d.settleFail(runID, errors.Wrap(err, "cancelled waiting for runner capacity"))
		return
	}
	defer hostGate.release()

	secret, ok := d.registry.Secret(host.ID)
	if !ok {
		// Known host but no verified secret in memory yet (host process
		// restarted and the runner has not heartbeated since).
		d.settleFail(runID, errors.NewRunnerUnavailableError("no dispatch credentials for runner host %s", host.Name))
		return
	}

	creds := protocol.Credentials{
		RunnerID:   host.ID,
		RunnerName: host.Name,
		Secret:     secret,
	}
	job := &protocol.Job{
		RunID:   runID,
		Script:  req.Script,
		ReqBody: req.Input,
	}

	ex, err := d.client.Send(ctx, host.Endpoint, creds, job, timeout)
	if err != nil {
		d.settleFail(runID, err)
		return
	}
	d.trackExchange(host.ID, runID, ex)
	defer d.untrackExchange(host.ID, runID)

	go func() {
		for line := range ex.Logs {
			if onLog != nil {
				onLog(runID, line)
			}
		}
	}()
	go func() {
		for range ex.Events {
		}
	}()

	result, err := ex.Wait(context.Background())
	if err != nil {
		d.settleFail(runID, err)
		return
	}
	if err := d.tracker.Complete(runID, result); err != nil {
		d.logger.Errorw("Failed to record run completion", "run_id", runID, "error", err)
	}
}

func (d *Dispatcher) settleFail(runID string, cause error) {
	d.logger.Warnw("Dispatch failed", "run_id", runID, "error", cause)
	if err := d.tracker.Fail(runID, cause); err != nil {
		d.logger.Errorw("Failed to record run failure", "run_id", runID, "error", err)
	}
}

// hostGate returns the capacity gate for a host, resized when the host's
// declared maxConcurrency changed at its last heartbeat. Jobs holding the
// old gate release against it; new jobs queue on the new one.
// Caller holds d.mu.
func (d *Dispatcher) hostGate(host *registry.Host) *gate {
	capacity := int64(host.MaxConcurrency)
	if capacity < 1 {
		capacity = 1
	}
	g, ok := d.hosts[host.ID]
	if !ok || g.capacity != capacity {
		g = newGate(capacity)
		d.hosts[host.ID] = g
	}
	return g
}
