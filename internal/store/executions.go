package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// executionColumns is the canonical select list for test_executions
const executionColumns = `id, run_id, case_id, build_id, status_id, assignee_id,
	tested_by_id, case_text_version, sort_key, started_at, stopped_at`

// executionFilterColumns whitelists the fields accepted by FilterExecutions
var executionFilterColumns = map[string]bool{
	"id":          true,
	"run_id":      true,
	"case_id":     true,
	"build_id":    true,
	"status_id":   true,
	"assignee_id": true,
}

// NewExecution holds the validated values for creating a test execution
type NewExecution struct {
	RunID           int64
	CaseID          int64
	BuildID         int64
	StatusID        int64 // 0 means the default neutral status
	AssigneeID      *int64
	CaseTextVersion int // 0 means the case's current text version
	SortKey         int
}

// ExecutionUpdate holds the partial update values for a test execution.
// Nil fields are left untouched.
type ExecutionUpdate struct {
	BuildID    *int64
	AssigneeID *int64
	StatusID   *int64
	SortKey    *int
	// TestedByID is stamped together with a status change
	TestedByID *int64
}

// GetExecution fetches a single test execution by primary key
func (s *Store) GetExecution(ctx context.Context, id int64) (*TestExecution, error) {
	query := fmt.Sprintf(`SELECT %s FROM test_executions WHERE id = $1`, executionColumns)

	var e TestExecution
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.RunID, &e.CaseID, &e.BuildID, &e.StatusID, &e.AssigneeID,
		&e.TestedByID, &e.CaseTextVersion, &e.SortKey, &e.StartedAt, &e.StoppedAt,
	)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return &e, nil
}

// GetExecutionDetail fetches an execution joined with the display fields the
// tracker adapters and reports need
func (s *Store) GetExecutionDetail(ctx context.Context, id int64) (*ExecutionDetail, error) {
	query := `
		SELECT e.id, e.run_id, e.case_id, e.build_id, e.status_id, e.assignee_id,
		       e.tested_by_id, e.case_text_version, e.sort_key, e.started_at, e.stopped_at,
		       c.summary, c.text, r.summary, b.name, p.name, r.product_version, st.name,
		       COALESCE(au.username, ''), COALESCE(tu.username, '')
		FROM test_executions e
		JOIN test_cases c ON c.id = e.case_id
		JOIN test_runs r ON r.id = e.run_id
		JOIN test_plans pl ON pl.id = r.plan_id
		JOIN products p ON p.id = pl.product_id
		JOIN builds b ON b.id = e.build_id
		JOIN execution_statuses st ON st.id = e.status_id
		LEFT JOIN users au ON au.id = e.assignee_id
		LEFT JOIN users tu ON tu.id = e.tested_by_id
		WHERE e.id = $1
	`

	var d ExecutionDetail
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.RunID, &d.CaseID, &d.BuildID, &d.StatusID, &d.AssigneeID,
		&d.TestedByID, &d.CaseTextVersion, &d.SortKey, &d.StartedAt, &d.StoppedAt,
		&d.CaseSummary, &d.CaseText, &d.RunSummary, &d.BuildName, &d.ProductName,
		&d.ProductVersion, &d.StatusName, &d.AssigneeName, &d.TestedByName,
	)
	if err != nil {
		return nil, ConvertDBError(err)
	}

	components, err := s.caseComponents(ctx, d.CaseID)
	if err != nil {
		return nil, err
	}
	d.Components = components

	return &d, nil
}

func (s *Store) caseComponents(ctx context.Context, caseID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT co.name
		FROM case_components cc
		JOIN components co ON co.id = cc.component_id
		WHERE cc.case_id = $1
		ORDER BY co.name
	`, caseID)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CreateExecution validates references and inserts a new test execution.
// Zero-valued StatusID and CaseTextVersion are filled with defaults.
func (s *Store) CreateExecution(ctx context.Context, values NewExecution) (*TestExecution, error) {
	if values.StatusID == 0 {
		var err error
		values.StatusID, err = s.defaultExecutionStatus(ctx)
		if err != nil {
			return nil, err
		}
	}

	if values.CaseTextVersion == 0 {
		err := s.db.QueryRowContext(ctx,
			`SELECT case_text_version FROM test_cases WHERE id = $1`, values.CaseID,
		).Scan(&values.CaseTextVersion)
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", values.CaseID, ConvertDBError(err))
		}
	}

	var id int64
	if s.driver == "sqlite3" {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO test_executions
				(run_id, case_id, build_id, status_id, assignee_id, case_text_version, sort_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			values.RunID, values.CaseID, values.BuildID, values.StatusID,
			values.AssigneeID, values.CaseTextVersion, values.SortKey,
		)
		if err != nil {
			return nil, ConvertDBError(err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return nil, err
		}
	} else {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO test_executions
				(run_id, case_id, build_id, status_id, assignee_id, case_text_version, sort_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			values.RunID, values.CaseID, values.BuildID, values.StatusID,
			values.AssigneeID, values.CaseTextVersion, values.SortKey,
		).Scan(&id)
		if err != nil {
			return nil, ConvertDBError(err)
		}
	}

	return s.GetExecution(ctx, id)
}

// defaultExecutionStatus returns the id of the lowest-weight neutral status
func (s *Store) defaultExecutionStatus(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM execution_statuses WHERE weight = 0 ORDER BY id LIMIT 1`,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("no neutral execution status configured: %w", ConvertDBError(err))
	}
	return id, nil
}

// UpdateExecution applies a partial update. A status change stamps stopped_at.
func (s *Store) UpdateExecution(ctx context.Context, id int64, update ExecutionUpdate) (*TestExecution, error) {
	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.BuildID != nil {
		sets = append(sets, "build_id = "+arg(*update.BuildID))
	}
	if update.AssigneeID != nil {
		sets = append(sets, "assignee_id = "+arg(*update.AssigneeID))
	}
	if update.StatusID != nil {
		sets = append(sets, "status_id = "+arg(*update.StatusID))
		sets = append(sets, "stopped_at = "+arg(time.Now().UTC()))
		if update.TestedByID != nil {
			sets = append(sets, "tested_by_id = "+arg(*update.TestedByID))
		}
	}
	if update.SortKey != nil {
		sets = append(sets, "sort_key = "+arg(*update.SortKey))
	}

	if len(sets) == 0 {
		return s.GetExecution(ctx, id)
	}

	query := fmt.Sprintf(`UPDATE test_executions SET %s WHERE id = %s`,
		strings.Join(sets, ", "), arg(id))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return s.GetExecution(ctx, id)
}

// FilterExecutions performs a search over whitelisted execution fields.
// Unknown fields are rejected rather than ignored.
func (s *Store) FilterExecutions(ctx context.Context, query map[string]interface{}) ([]*TestExecution, error) {
	where := "1 = 1"
	args := make([]interface{}, 0, len(query))

	// Sorted keys keep the generated SQL deterministic
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		if !executionFilterColumns[field] {
			return nil, fmt.Errorf("cannot filter executions by field: %s", field)
		}
		args = append(args, query[field])
		where += fmt.Sprintf(" AND %s = $%d", field, len(args))
	}

	stmt := fmt.Sprintf(
		`SELECT %s FROM test_executions WHERE %s ORDER BY id`,
		executionColumns, where,
	)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var executions []*TestExecution
	for rows.Next() {
		var e TestExecution
		err := rows.Scan(
			&e.ID, &e.RunID, &e.CaseID, &e.BuildID, &e.StatusID, &e.AssigneeID,
			&e.TestedByID, &e.CaseTextVersion, &e.SortKey, &e.StartedAt, &e.StoppedAt,
		)
		if err != nil {
			return nil, err
		}
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}

// RunExists reports whether a test run exists
func (s *Store) RunExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, "test_runs", id)
}

// CaseExists reports whether a test case exists
func (s *Store) CaseExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, "test_cases", id)
}

// BuildExists reports whether a build exists
func (s *Store) BuildExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, "builds", id)
}

func (s *Store) exists(ctx context.Context, table string, id int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = $1`, table), id,
	).Scan(&n)
	if err != nil {
		return false, ConvertDBError(err)
	}
	return n > 0, nil
}

// GetExecutionStatus fetches an execution status by id
func (s *Store) GetExecutionStatus(ctx context.Context, id int64) (*ExecutionStatus, error) {
	var st ExecutionStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, weight, color, icon FROM execution_statuses WHERE id = $1`, id,
	).Scan(&st.ID, &st.Name, &st.Weight, &st.Color, &st.Icon)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return &st, nil
}

// ListExecutionStatuses returns all configured execution statuses ordered by id
func (s *Store) ListExecutionStatuses(ctx context.Context) ([]*ExecutionStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, weight, color, icon FROM execution_statuses ORDER BY id`)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var statuses []*ExecutionStatus
	for rows.Next() {
		var st ExecutionStatus
		if err := rows.Scan(&st.ID, &st.Name, &st.Weight, &st.Color, &st.Icon); err != nil {
			return nil, err
		}
		statuses = append(statuses, &st)
	}
	return statuses, rows.Err()
}
