package script

import (
	"database/sql"

	"github.com/AutomNexus/Automn-sub001/errors"
)

// Store handles persistence of the script boundary tables.
type Store struct {
	db *sql.DB
}

// NewStore creates a new script store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves a script with the code of its latest version.
func (s *Store) Get(id string) (*Script, error) {
	query := `
		SELECT s.id, s.name, s.category_id, s.runner_host_id, s.inherit_runner,
		       COALESCE((SELECT code FROM script_versions v
		                 WHERE v.script_id = s.id
		                 ORDER BY v.version DESC LIMIT 1), '')
		FROM scripts s WHERE s.id = ?
	`

	var sc Script
	var inherit int
	err := s.db.QueryRow(query, id).Scan(&sc.ID, &sc.Name, &sc.CategoryID, &sc.RunnerHostID, &inherit, &sc.Code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("script not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get script")
	}
	sc.InheritRunner = inherit != 0

	return &sc, nil
}

// GetCategory retrieves a category by id.
func (s *Store) GetCategory(id string) (*Category, error) {
	var c Category
	err := s.db.QueryRow(
		`SELECT id, name, default_runner_host_id FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.DefaultRunnerHostID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("category not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get category")
	}
	return &c, nil
}

// MaxVersion returns the highest stored version number for a script, or 0
// when the script has no stored versions yet.
func (s *Store) MaxVersion(scriptID string) (int, error) {
	var version int
	err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM script_versions WHERE script_id = ?`, scriptID,
	).Scan(&version)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get max version for script %s", scriptID)
	}
	return version, nil
}

// Create inserts a script row. Used by tests and seeding; full script CRUD
// is outside this core.
func (s *Store) Create(sc *Script) error {
	inherit := 0
	if sc.InheritRunner {
		inherit = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO scripts (id, name, category_id, runner_host_id, inherit_runner) VALUES (?, ?, ?, ?, ?)`,
		sc.ID, sc.Name, sc.CategoryID, sc.RunnerHostID, inherit,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create script")
	}
	return nil
}

// CreateCategory inserts a category row.
func (s *Store) CreateCategory(c *Category) error {
	_, err := s.db.Exec(
		`INSERT INTO categories (id, name, default_runner_host_id) VALUES (?, ?, ?)`,
		c.ID, c.Name, c.DefaultRunnerHostID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create category")
	}
	return nil
}

// AddVersion appends a new code version for a script.
func (s *Store) AddVersion(scriptID string, version int, code string) error {
	_, err := s.db.Exec(
		`INSERT INTO script_versions (script_id, version, code) VALUES (?, ?, ?)`,
		scriptID, version, code,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to add version %d for script %s", version, scriptID)
	}
	return nil
}
