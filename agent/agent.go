// Package agent is the runner-side companion process: it registers with
// the Automn host, heartbeats on an interval with fresh capability data,
// and keeps script dependency state rehydrated after restarts.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/AutomNexus/Automn-sub001/errors"
	"github.com/AutomNexus/Automn-sub001/installer"
	"github.com/AutomNexus/Automn-sub001/internal/version"
)

// Options configure the agent.
type Options struct {
	// HostURL is the Automn host base URL, e.g. http://host:8710.
	HostURL string
	// HostID and Secret identify this runner to the host.
	HostID string
	Secret string
	// Endpoint is this runner's own dispatch URL advertised to the host.
	Endpoint string
	// MaxConcurrency and TimeoutMs are advertised capability limits.
	MaxConcurrency int
	TimeoutMs      int64
	// MinimumHostVersion is the lowest host version this runner declares
	// compatibility with.
	MinimumHostVersion string
	// HeartbeatInterval defaults to 30s.
	HeartbeatInterval time.Duration
	// WorkdirRoot is where script working directories live.
	WorkdirRoot string
}

// Agent maintains the runner's relationship with the Automn host.
type Agent struct {
	opts       Options
	httpClient *http.Client
	installer  *installer.Installer
	logger     *zap.SugaredLogger
}

// New creates an agent.
func New(opts Options, logger *zap.SugaredLogger) (*Agent, error) {
	if opts.HostURL == "" || opts.HostID == "" || opts.Secret == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "host url, host id and secret are required")
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}

	return &Agent{
		opts:       opts,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		installer:  installer.New(opts.WorkdirRoot, logger.Named("installer")),
		logger:     logger,
	}, nil
}

// Installer exposes the agent's dependency installer.
func (a *Agent) Installer() *installer.Installer {
	return a.installer
}

// Run registers with the host, rehydrates the package cache, then
// heartbeats until ctx is cancelled. The initial registration retries
// with backoff; steady-state heartbeat failures are logged and retried on
// the next tick, since the host tolerates gaps up to its health window.
func (a *Agent) Run(ctx context.Context) error {
	a.installer.InstallSignalHandlers()

	err := retry.Do(
		func() error { return a.register(ctx) },
		retry.Context(ctx),
		retry.Attempts(10),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(time.Minute),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Warnw("Registration attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return errors.Wrap(err, "failed to register with host")
	}
	a.logger.Infow("Registered with Automn host", "host_url", a.opts.HostURL)

	if a.opts.WorkdirRoot != "" {
		if err := a.installer.RehydrateCache(ctx); err != nil {
			// Scripts whose directories failed rehydration reinstall
			// lazily on their next run.
			a.logger.Warnw("Package cache rehydration incomplete", "error", err)
		}
	}

	ticker := time.NewTicker(a.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.register(ctx); err != nil {
				a.logger.Warnw("Heartbeat failed", "error", err)
			}
		}
	}
}

// register performs one register/heartbeat call with current system data.
func (a *Agent) register(ctx context.Context) error {
	info := collectSystemInfo(ctx, a.logger)

	payload := map[string]interface{}{
		"secret":             a.opts.Secret,
		"endpoint":           a.opts.Endpoint,
		"maxConcurrency":     a.opts.MaxConcurrency,
		"timeoutMs":          a.opts.TimeoutMs,
		"version":            version.Version,
		"minimumHostVersion": a.opts.MinimumHostVersion,
		"os":                 info.OS,
		"platform":           info.Platform,
		"arch":               info.Arch,
		"uptime":             info.UptimeSeconds,
		"runtimes":           info.Runtimes,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal register payload")
	}

	url := fmt.Sprintf("%s/api/runners/%s/register", a.opts.HostURL, a.opts.HostID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build register request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "register request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Newf("host rejected registration: %d %s", resp.StatusCode, string(snippet))
	}

	var reply struct {
		HostVersion          string `json:"hostVersion"`
		MinimumRunnerVersion string `json:"minimumRunnerVersion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err == nil {
		a.logger.Debugw("Heartbeat acknowledged",
			"host_version", reply.HostVersion,
			"minimum_runner_version", reply.MinimumRunnerVersion,
		)
	}
	return nil
}
