package registry

import (
	"database/sql"
	"time"

	"github.com/AutomNexus/Automn-sub001/errors"
)

// Store handles persistence of runner hosts.
type Store struct {
	db *sql.DB
}

// NewStore creates a new runner host store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const hostColumns = `id, name, secret_hash, status, status_message, endpoint,
	last_seen_at, max_concurrency, job_timeout_ms, runner_version,
	minimum_host_version, host_compatible, runner_compatible,
	runtime_advisory, os, platform, arch, admin_only, disabled_at,
	created_at, updated_at`

// CreateHost inserts a new runner host row.
func (s *Store) CreateHost(h *Host) error {
	query := `
		INSERT INTO runner_hosts (
			id, name, secret_hash, status, status_message, endpoint,
			max_concurrency, job_timeout_ms, admin_only, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		h.ID, h.Name, h.SecretHash, h.Status, h.StatusMessage, h.Endpoint,
		h.MaxConcurrency, h.JobTimeoutMs, boolToInt(h.AdminOnly),
		h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create runner host")
	}
	return nil
}

// GetHost retrieves a runner host by id.
func (s *Store) GetHost(id string) (*Host, error) {
	row := s.db.QueryRow(`SELECT `+hostColumns+` FROM runner_hosts WHERE id = ?`, id)
	h, err := scanHost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("runner host not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get runner host")
	}
	return h, nil
}

// ListHosts returns all runner hosts ordered by name.
func (s *Store) ListHosts() ([]*Host, error) {
	rows, err := s.db.Query(`SELECT ` + hostColumns + ` FROM runner_hosts ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runner hosts")
	}
	defer rows.Close()

	var hosts []*Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan runner host row")
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating runner hosts")
	}
	return hosts, nil
}

// UpdateHost writes back all mutable host fields.
func (s *Store) UpdateHost(h *Host) error {
	query := `
		UPDATE runner_hosts
		SET name = ?, secret_hash = ?, status = ?, status_message = ?,
		    endpoint = ?, last_seen_at = ?, max_concurrency = ?,
		    job_timeout_ms = ?, runner_version = ?, minimum_host_version = ?,
		    host_compatible = ?, runner_compatible = ?, runtime_advisory = ?,
		    os = ?, platform = ?, arch = ?, admin_only = ?, disabled_at = ?,
		    updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.Exec(query,
		h.Name, h.SecretHash, h.Status, h.StatusMessage,
		h.Endpoint, h.LastSeenAt, h.MaxConcurrency,
		h.JobTimeoutMs, h.RunnerVersion, h.MinimumHostVersion,
		boolToInt(h.HostCompatible), boolToInt(h.RunnerCompatible), h.RuntimeAdvisory,
		h.OS, h.Platform, h.Arch, boolToInt(h.AdminOnly), h.DisabledAt,
		h.UpdatedAt,
		h.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update runner host")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("runner host not found: %s", h.ID)
	}
	return nil
}

// DeleteHost removes a runner host.
func (s *Store) DeleteHost(id string) error {
	res, err := s.db.Exec(`DELETE FROM runner_hosts WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete runner host")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("runner host not found: %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHost(row rowScanner) (*Host, error) {
	var h Host
	var lastSeen, disabledAt sql.NullTime
	var hostCompat, runnerCompat, adminOnly int

	err := row.Scan(
		&h.ID, &h.Name, &h.SecretHash, &h.Status, &h.StatusMessage, &h.Endpoint,
		&lastSeen, &h.MaxConcurrency, &h.JobTimeoutMs, &h.RunnerVersion,
		&h.MinimumHostVersion, &hostCompat, &runnerCompat,
		&h.RuntimeAdvisory, &h.OS, &h.Platform, &h.Arch, &adminOnly, &disabledAt,
		&h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSeen.Valid {
		t := lastSeen.Time
		h.LastSeenAt = &t
	}
	if disabledAt.Valid {
		t := disabledAt.Time
		h.DisabledAt = &t
	}
	h.HostCompatible = hostCompat != 0
	h.RunnerCompatible = runnerCompat != 0
	h.AdminOnly = adminOnly != 0
	h.JobTimeout = time.Duration(h.JobTimeoutMs) * time.Millisecond

	return &h, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
