package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Migration represents a single database migration
type Migration struct {
	Version int64  // ordering key
	Name    string // human-readable name
	Up      string // SQL to apply
}

// Migrate applies all pending migrations inside transactions
func (s *Store) Migrate(ctx context.Context, logger *zap.Logger) error {
	if err := s.initMigrations(ctx); err != nil {
		return err
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}

	pending := 0
	for _, m := range s.migrations() {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		logger.Info("applied migration", zap.String("name", m.Name), zap.Int64("version", m.Version))
		pending++
	}

	if pending == 0 {
		logger.Info("no pending migrations")
	}
	return nil
}

func (s *Store) initMigrations(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	return nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration history: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) applyMigration(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
		m.Version, m.Name,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// pk returns the auto-incrementing primary key column clause for the
// configured driver
func (s *Store) pk() string {
	if s.driver == "sqlite3" {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "BIGSERIAL PRIMARY KEY"
}

func (s *Store) migrations() []Migration {
	pk := s.pk()

	schema := fmt.Sprintf(`
CREATE TABLE products (
	id %[1]s,
	name VARCHAR(255) NOT NULL UNIQUE
);

CREATE TABLE versions (
	id %[1]s,
	product_id BIGINT NOT NULL REFERENCES products(id),
	value VARCHAR(255) NOT NULL
);

CREATE TABLE builds (
	id %[1]s,
	version_id BIGINT NOT NULL REFERENCES versions(id),
	name VARCHAR(255) NOT NULL
);

CREATE TABLE priorities (
	id %[1]s,
	value VARCHAR(64) NOT NULL UNIQUE
);

CREATE TABLE categories (
	id %[1]s,
	product_id BIGINT NOT NULL REFERENCES products(id),
	name VARCHAR(255) NOT NULL
);

CREATE TABLE case_statuses (
	id %[1]s,
	name VARCHAR(64) NOT NULL UNIQUE,
	is_confirmed BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE test_cases (
	id %[1]s,
	summary VARCHAR(255) NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	case_text_version INT NOT NULL DEFAULT 1,
	is_automated BOOLEAN NOT NULL DEFAULT FALSE,
	status_id BIGINT NOT NULL REFERENCES case_statuses(id),
	priority_id BIGINT NOT NULL REFERENCES priorities(id),
	category_id BIGINT NOT NULL REFERENCES categories(id),
	product_id BIGINT NOT NULL REFERENCES products(id)
);

CREATE TABLE components (
	id %[1]s,
	product_id BIGINT NOT NULL REFERENCES products(id),
	name VARCHAR(255) NOT NULL
);

CREATE TABLE case_components (
	case_id BIGINT NOT NULL REFERENCES test_cases(id),
	component_id BIGINT NOT NULL REFERENCES components(id),
	PRIMARY KEY (case_id, component_id)
);

CREATE TABLE test_plans (
	id %[1]s,
	product_id BIGINT NOT NULL REFERENCES products(id),
	name VARCHAR(255) NOT NULL
);

CREATE TABLE test_runs (
	id %[1]s,
	plan_id BIGINT NOT NULL REFERENCES test_plans(id),
	build_id BIGINT NOT NULL REFERENCES builds(id),
	summary VARCHAR(255) NOT NULL,
	product_version VARCHAR(255) NOT NULL DEFAULT ''
);

CREATE TABLE execution_statuses (
	id %[1]s,
	name VARCHAR(64) NOT NULL UNIQUE,
	weight INT NOT NULL DEFAULT 0,
	color VARCHAR(32) NOT NULL DEFAULT '',
	icon VARCHAR(64) NOT NULL DEFAULT ''
);

CREATE TABLE users (
	id %[1]s,
	username VARCHAR(255) NOT NULL UNIQUE,
	email VARCHAR(255) NOT NULL DEFAULT '',
	password_hash VARCHAR(255) NOT NULL DEFAULT '',
	roles VARCHAR(255) NOT NULL DEFAULT 'viewer'
);

CREATE TABLE test_executions (
	id %[1]s,
	run_id BIGINT NOT NULL REFERENCES test_runs(id),
	case_id BIGINT NOT NULL REFERENCES test_cases(id),
	build_id BIGINT NOT NULL REFERENCES builds(id),
	status_id BIGINT NOT NULL REFERENCES execution_statuses(id),
	assignee_id BIGINT REFERENCES users(id),
	tested_by_id BIGINT REFERENCES users(id),
	case_text_version INT NOT NULL DEFAULT 1,
	sort_key INT NOT NULL DEFAULT 0,
	started_at TIMESTAMP,
	stopped_at TIMESTAMP,
	UNIQUE (run_id, case_id)
);

CREATE INDEX idx_test_executions_case_run ON test_executions(case_id, run_id);
CREATE INDEX idx_test_executions_run ON test_executions(run_id);

CREATE TABLE link_references (
	id %[1]s,
	execution_id BIGINT NOT NULL REFERENCES test_executions(id),
	name VARCHAR(255) NOT NULL DEFAULT '',
	url VARCHAR(1024) NOT NULL,
	is_defect BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (execution_id, name, url)
);

CREATE TABLE comments (
	id %[1]s,
	execution_id BIGINT NOT NULL REFERENCES test_executions(id),
	author_id BIGINT NOT NULL REFERENCES users(id),
	text TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE trackers (
	id %[1]s,
	name VARCHAR(255) NOT NULL UNIQUE,
	kind VARCHAR(64) NOT NULL,
	base_url VARCHAR(1024) NOT NULL DEFAULT '',
	api_url VARCHAR(1024) NOT NULL DEFAULT '',
	api_username VARCHAR(255) NOT NULL DEFAULT '',
	api_password VARCHAR(255) NOT NULL DEFAULT ''
);
`, pk)

	jobs := `
CREATE TABLE jobs (
	id UUID PRIMARY KEY,
	queue VARCHAR(255) NOT NULL,
	type VARCHAR(255) NOT NULL,
	payload TEXT NOT NULL,
	status VARCHAR(32) NOT NULL,
	priority INT NOT NULL DEFAULT 50,
	attempts INT NOT NULL DEFAULT 0,
	max_attempts INT NOT NULL DEFAULT 3,
	error TEXT,
	created_at TIMESTAMP NOT NULL,
	run_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	completed_at TIMESTAMP,
	locked_by VARCHAR(255),
	locked_at TIMESTAMP
);

CREATE INDEX idx_jobs_dequeue ON jobs(queue, status, run_at, priority);
`

	// SQLite has no UUID column type
	if s.driver == "sqlite3" {
		jobs = strings.ReplaceAll(jobs, "UUID", "VARCHAR(36)")
	}

	return []Migration{
		{Version: 1, Name: "create_core_schema", Up: schema},
		{Version: 2, Name: "create_jobs_table", Up: jobs},
		{Version: 3, Name: "seed_statuses", Up: `
INSERT INTO case_statuses (name, is_confirmed) VALUES
	('PROPOSED', FALSE),
	('CONFIRMED', TRUE),
	('NEED_UPDATE', FALSE),
	('RETIRED', FALSE);

INSERT INTO execution_statuses (name, weight, color, icon) VALUES
	('IDLE', 0, 'gray', 'fa-question'),
	('RUNNING', 0, 'blue', 'fa-play'),
	('PAUSED', 0, 'orange', 'fa-pause'),
	('PASSED', 20, 'green', 'fa-check'),
	('FAILED', -30, 'red', 'fa-times'),
	('BLOCKED', -20, 'maroon', 'fa-ban'),
	('ERROR', -10, 'crimson', 'fa-exclamation'),
	('WAIVED', 10, 'olive', 'fa-minus');
`},
	}
}
