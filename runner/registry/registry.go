package registry

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/AutomNexus/Automn-sub001/config"
	"github.com/AutomNexus/Automn-sub001/errors"
)

// ErrRateLimited indicates a host id exceeded its register/heartbeat budget.
var ErrRateLimited = errors.New("rate limited")

// Registry coordinates runner host provisioning, registration and health.
// All mutable caches live on the instance so multiple registries can
// coexist in one process (tests, embedded setups).
type Registry struct {
	store       *Store
	logger      *zap.SugaredLogger
	hostVersion string

	mu              sync.RWMutex
	healthWindow    time.Duration
	stalenessWindow time.Duration
	minRunnerVer    string
	nodeConstraint  string
	limiterRate     rate.Limit
	limiterBurst    int
	limiters        map[string]*rate.Limiter

	// secrets caches verified plaintext secrets for outbound dispatch
	// headers. Memory only; storage keeps just the hash. Repopulated on
	// provision, rotation, or any successful heartbeat after a restart.
	secrets map[string]string

	// onDisable is notified after a host is disabled, so in-flight work
	// against that host can be torn down.
	onDisable func(hostID, reason string)

	// now is swappable for tests
	now func() time.Time
}

// New creates a registry over the given store.
func New(store *Store, cfg config.RunnerConfig, hostVersion string, logger *zap.SugaredLogger) *Registry {
	r := &Registry{
		store:       store,
		logger:      logger,
		hostVersion: hostVersion,
		limiters:    make(map[string]*rate.Limiter),
		secrets:     make(map[string]string),
		now:         time.Now,
	}
	r.ApplyConfig(cfg)
	return r
}

// ApplyConfig installs runner settings. Safe to call at runtime; the config
// watcher uses it for hot reload.
func (r *Registry) ApplyConfig(cfg config.RunnerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthWindow = time.Duration(cfg.HealthWindowSeconds) * time.Second
	r.stalenessWindow = time.Duration(cfg.StalenessWindowSeconds) * time.Second
	r.minRunnerVer = cfg.MinimumRunnerVersion
	r.nodeConstraint = cfg.NodeConstraint
	r.limiterRate = rate.Limit(float64(cfg.RegisterPerMinute) / 60.0)
	r.limiterBurst = cfg.RegisterBurst
	// Existing limiters keep their old rate until the host next drops out;
	// new registrations pick up the new budget immediately.
	r.limiters = make(map[string]*rate.Limiter)
}

// SetOnDisable registers a callback invoked after a host is taken out of
// rotation. Called without registry locks held; must not call back into
// Disable.
func (r *Registry) SetOnDisable(fn func(hostID, reason string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDisable = fn
}

// HostVersion returns the coordinating host's own version string.
func (r *Registry) HostVersion() string { return r.hostVersion }

// MinimumRunnerVersion returns the advisory minimum runner version.
func (r *Registry) MinimumRunnerVersion() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minRunnerVer
}

// Provision creates a new runner host record and returns it together with
// the plaintext secret. The secret is shown exactly once; only its hash is
// stored.
func (r *Registry) Provision(name, endpoint string, adminOnly bool) (*Host, string, error) {
	if name == "" {
		return nil, "", errors.Wrap(errors.ErrInvalidRequest, "runner host name must not be empty")
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to generate runner secret")
	}

	now := r.now().UTC()
	h := &Host{
		ID:             uuid.NewString(),
		Name:           name,
		SecretHash:     HashSecret(secret),
		Status:         HostStatusPending,
		Endpoint:       endpoint,
		MaxConcurrency: 1,
		JobTimeoutMs:   int64(config.DefaultJobTimeoutMs),
		JobTimeout:     time.Duration(config.DefaultJobTimeoutMs) * time.Millisecond,
		AdminOnly:      adminOnly,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.store.CreateHost(h); err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	r.secrets[h.ID] = secret
	r.mu.Unlock()

	r.logger.Infow("Runner host provisioned", "host_id", h.ID, "name", name)
	return h, secret, nil
}

// Secret returns the cached plaintext secret for a host, used for outbound
// dispatch headers. Absent until the host has been provisioned, rotated, or
// has heartbeated successfully since this process started.
func (r *Registry) Secret(hostID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.secrets[hostID]
	return s, ok
}

// Register handles a runner's register/heartbeat call. The two are the same
// idempotent operation: authenticate, refresh freshness and capability
// fields, recompute advisory compatibility flags.
//
// A wrong secret and an unknown host id are indistinguishable to the
// caller: both return ErrUnauthorized. A disabled host is rejected with
// ErrForbidden; disable is a hard gate, not a health downgrade.
func (r *Registry) Register(req RegisterRequest) (*Host, error) {
	if !r.allowRegister(req.HostID) {
		return nil, errors.Wrapf(ErrRateLimited, "host %s", req.HostID)
	}

	h, err := r.store.GetHost(req.HostID)
	if errors.IsNotFoundError(err) {
		// Equalize timing with the known-host path before rejecting.
		verifySecret(dummyHash, req.Secret)
		return nil, errors.WithStack(errors.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	if !verifySecret(h.SecretHash, req.Secret) {
		return nil, errors.WithStack(errors.ErrUnauthorized)
	}

	if h.DisabledAt != nil {
		return nil, errors.Wrap(errors.ErrForbidden, "runner host is disabled")
	}

	r.mu.RLock()
	minRunnerVer := r.minRunnerVer
	nodeConstraint := r.nodeConstraint
	r.mu.RUnlock()

	now := r.now().UTC()
	h.Status = HostStatusHealthy
	h.StatusMessage = ""
	h.LastSeenAt = &now
	if req.Endpoint != "" {
		h.Endpoint = req.Endpoint
	}
	if req.MaxConcurrency > 0 {
		h.MaxConcurrency = req.MaxConcurrency
	}
	if req.TimeoutMs > 0 {
		h.JobTimeoutMs = req.TimeoutMs
		h.JobTimeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	h.RunnerVersion = req.Version
	h.MinimumHostVersion = req.MinimumHostVersion
	h.OS = req.OS
	h.Platform = req.Platform
	h.Arch = req.Arch

	// Bidirectional version compatibility. Advisory flags for operator
	// visibility; dispatch selection checks plain health only.
	h.RunnerCompatible = MeetsMinimum(req.Version, minRunnerVer)
	h.HostCompatible = MeetsMinimum(r.hostVersion, req.MinimumHostVersion)
	h.RuntimeAdvisory = runtimeAdvisory(req.Runtimes, nodeConstraint)
	h.UpdatedAt = now

	if err := r.store.UpdateHost(h); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.secrets[h.ID] = req.Secret
	r.mu.Unlock()

	r.logger.Debugw("Runner host heartbeat",
		"host_id", h.ID,
		"name", h.Name,
		"endpoint", h.Endpoint,
		"max_concurrency", h.MaxConcurrency,
		"runner_compatible", h.RunnerCompatible,
		"host_compatible", h.HostCompatible,
	)
	return h, nil
}

// Disable takes a host out of rotation. Sticky: heartbeats cannot undo it.
func (r *Registry) Disable(hostID, reason string) error {
	h, err := r.store.GetHost(hostID)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	h.Status = HostStatusDisabled
	h.StatusMessage = reason
	h.DisabledAt = &now
	h.UpdatedAt = now
	if err := r.store.UpdateHost(h); err != nil {
		return err
	}
	r.logger.Infow("Runner host disabled", "host_id", hostID, "reason", reason)

	r.mu.RLock()
	onDisable := r.onDisable
	r.mu.RUnlock()
	if onDisable != nil {
		onDisable(hostID, reason)
	}
	return nil
}

// Enable clears the disabled gate. The host goes back to pending until its
// next successful heartbeat.
func (r *Registry) Enable(hostID, reason string) error {
	h, err := r.store.GetHost(hostID)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	h.Status = HostStatusPending
	h.StatusMessage = reason
	h.DisabledAt = nil
	h.UpdatedAt = now
	if err := r.store.UpdateHost(h); err != nil {
		return err
	}
	r.logger.Infow("Runner host enabled", "host_id", hostID, "reason", reason)
	return nil
}

// RotateSecret replaces the host's secret and returns the new plaintext
// once. Rotation also clears the disabled gate, like Enable.
func (r *Registry) RotateSecret(hostID string) (string, error) {
	h, err := r.store.GetHost(hostID)
	if err != nil {
		return "", err
	}

	secret, err := generateSecret()
	if err != nil {
		return "", errors.Wrap(err, "failed to generate runner secret")
	}

	now := r.now().UTC()
	h.SecretHash = HashSecret(secret)
	h.Status = HostStatusPending
	h.DisabledAt = nil
	h.UpdatedAt = now
	if err := r.store.UpdateHost(h); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.secrets[hostID] = secret
	r.mu.Unlock()

	r.logger.Infow("Runner host secret rotated", "host_id", hostID)
	return secret, nil
}

// Delete removes a host record entirely.
func (r *Registry) Delete(hostID string) error {
	if err := r.store.DeleteHost(hostID); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.secrets, hostID)
	delete(r.limiters, hostID)
	r.mu.Unlock()
	r.logger.Infow("Runner host deleted", "host_id", hostID)
	return nil
}

// Get returns a host by id.
func (r *Registry) Get(hostID string) (*Host, error) {
	return r.store.GetHost(hostID)
}

// List returns all hosts.
func (r *Registry) List() ([]*Host, error) {
	return r.store.ListHosts()
}

// IsHealthy reports whether the host may be selected for dispatch right now.
func (r *Registry) IsHealthy(h *Host) bool {
	r.mu.RLock()
	window := r.healthWindow
	r.mu.RUnlock()
	return h.Healthy(r.now(), window)
}

// AnyHealthy reports whether at least one host looks alive under the longer
// staleness window. Used for "is script execution possible at all" checks,
// never for selecting a specific host.
func (r *Registry) AnyHealthy() (bool, error) {
	hosts, err := r.store.ListHosts()
	if err != nil {
		return false, err
	}
	r.mu.RLock()
	window := r.stalenessWindow
	r.mu.RUnlock()
	now := r.now()
	for _, h := range hosts {
		if h.Healthy(now, window) {
			return true, nil
		}
	}
	return false, nil
}

// allowRegister enforces the per-host register/heartbeat budget.
func (r *Registry) allowRegister(hostID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[hostID]
	if !ok {
		lim = rate.NewLimiter(r.limiterRate, r.limiterBurst)
		r.limiters[hostID] = lim
	}
	return lim.Allow()
}

// dummyHash keeps the unknown-host rejection path doing the same amount of
// work as a real secret comparison.
var dummyHash = HashSecret("automn-nonexistent-host")

// HashSecret computes the stored digest for a runner secret.
func HashSecret(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func verifySecret(storedHash []byte, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	return subtle.ConstantTimeCompare(storedHash, sum[:]) == 1
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
