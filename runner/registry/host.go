// Package registry is the durable record of known runner hosts, their
// capacity and versions, and the health predicate dispatch consults.
package registry

import (
	"time"
)

// HostStatus is the lifecycle state of a runner host.
type HostStatus string

const (
	// HostStatusPending means provisioned but never (or not yet re-) heartbeated.
	HostStatusPending HostStatus = "pending"
	// HostStatusHealthy means the host heartbeated successfully.
	HostStatusHealthy HostStatus = "healthy"
	// HostStatusDisabled means an operator disabled the host. Sticky: a
	// disabled host cannot self-reactivate via heartbeat.
	HostStatusDisabled HostStatus = "disabled"
)

// Host is the identity and operating envelope of one runner host.
// SecretHash never leaves host-internal checks and is excluded from JSON.
type Host struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	SecretHash         []byte        `json:"-"`
	Status             HostStatus    `json:"status"`
	StatusMessage      string        `json:"statusMessage,omitempty"`
	Endpoint           string        `json:"endpoint"`
	LastSeenAt         *time.Time    `json:"lastSeenAt,omitempty"`
	MaxConcurrency     int           `json:"maxConcurrency"`
	JobTimeout         time.Duration `json:"-"`
	JobTimeoutMs       int64         `json:"jobTimeoutMs"`
	RunnerVersion      string        `json:"runnerVersion,omitempty"`
	MinimumHostVersion string        `json:"minimumHostVersion,omitempty"`
	// HostCompatible reports whether this host's own version meets the
	// runner's declared minimum-host-version. Advisory only.
	HostCompatible bool `json:"hostCompatible"`
	// RunnerCompatible reports whether the runner's declared version meets
	// this host's minimum-runner-version. Advisory only.
	RunnerCompatible bool       `json:"runnerCompatible"`
	RuntimeAdvisory  string     `json:"runtimeAdvisory,omitempty"`
	OS               string     `json:"os,omitempty"`
	Platform         string     `json:"platform,omitempty"`
	Arch             string     `json:"arch,omitempty"`
	AdminOnly        bool       `json:"adminOnly"`
	DisabledAt       *time.Time `json:"disabledAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Healthy reports whether the host may be selected for dispatch: healthy
// status, not disabled, and a heartbeat within the window.
func (h *Host) Healthy(now time.Time, window time.Duration) bool {
	if h.Status != HostStatusHealthy || h.DisabledAt != nil {
		return false
	}
	if h.LastSeenAt == nil {
		return false
	}
	return now.Sub(*h.LastSeenAt) <= window
}

// RegisterRequest is the payload a runner sends on register/heartbeat.
// The two are the same idempotent call.
type RegisterRequest struct {
	HostID             string            `json:"-"`
	Secret             string            `json:"secret"`
	Endpoint           string            `json:"endpoint"`
	MaxConcurrency     int               `json:"maxConcurrency"`
	TimeoutMs          int64             `json:"timeoutMs"`
	Version            string            `json:"version"`
	MinimumHostVersion string            `json:"minimumHostVersion"`
	OS                 string            `json:"os"`
	Platform           string            `json:"platform"`
	Arch               string            `json:"arch"`
	UptimeSeconds      uint64            `json:"uptime"`
	Runtimes           map[string]string `json:"runtimes,omitempty"`
}
