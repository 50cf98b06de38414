package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, "postgres"), mock
}

func executionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "run_id", "case_id", "build_id", "status_id", "assignee_id",
		"tested_by_id", "case_text_version", "sort_key", "started_at", "stopped_at",
	})
}

func TestGetExecution(t *testing.T) {
	st, mock := setupTestStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM test_executions WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(executionRows().
			AddRow(7, 1, 2, 3, 4, nil, nil, 1, 10, nil, nil))

	execution, err := st.GetExecution(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), execution.ID)
	assert.Equal(t, int64(1), execution.RunID)
	assert.Nil(t, execution.AssigneeID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExecution_NotFound(t *testing.T) {
	st, mock := setupTestStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM test_executions WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := st.GetExecution(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateExecution_FillsDefaults(t *testing.T) {
	st, mock := setupTestStore(t)

	// Zero status id resolves to the first neutral status
	mock.ExpectQuery(`SELECT id FROM execution_statuses WHERE weight = 0`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	// Zero case text version resolves to the case's current one
	mock.ExpectQuery(`SELECT case_text_version FROM test_cases WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"case_text_version"}).AddRow(3))

	mock.ExpectQuery(`(?s)INSERT INTO test_executions.+RETURNING id`).
		WithArgs(int64(1), int64(2), int64(3), int64(1), nil, 3, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	mock.ExpectQuery(`(?s)SELECT .+ FROM test_executions WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(executionRows().
			AddRow(42, 1, 2, 3, 1, nil, nil, 3, 0, nil, nil))

	execution, err := st.CreateExecution(context.Background(), NewExecution{
		RunID:   1,
		CaseID:  2,
		BuildID: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), execution.ID)
	assert.Equal(t, int64(1), execution.StatusID)
	assert.Equal(t, 3, execution.CaseTextVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExecution_NoNeutralStatus(t *testing.T) {
	st, mock := setupTestStore(t)

	mock.ExpectQuery(`SELECT id FROM execution_statuses WHERE weight = 0`).
		WillReturnError(sql.ErrNoRows)

	_, err := st.CreateExecution(context.Background(), NewExecution{
		RunID:   1,
		CaseID:  2,
		BuildID: 3,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no neutral execution status")
}

func TestUpdateExecution_StatusChangeStampsStoppedAt(t *testing.T) {
	st, mock := setupTestStore(t)

	statusID := int64(5)
	testedBy := int64(9)

	mock.ExpectExec(`UPDATE test_executions SET status_id = \$1, stopped_at = \$2, tested_by_id = \$3 WHERE id = \$4`).
		WithArgs(statusID, sqlmock.AnyArg(), testedBy, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`(?s)SELECT .+ FROM test_executions WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(executionRows().
			AddRow(7, 1, 2, 3, statusID, nil, testedBy, 1, 0, nil, nil))

	execution, err := st.UpdateExecution(context.Background(), 7, ExecutionUpdate{
		StatusID:   &statusID,
		TestedByID: &testedBy,
	})
	require.NoError(t, err)
	assert.Equal(t, statusID, execution.StatusID)
	require.NotNil(t, execution.TestedByID)
	assert.Equal(t, testedBy, *execution.TestedByID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateExecution_NotFound(t *testing.T) {
	st, mock := setupTestStore(t)

	buildID := int64(4)
	mock.ExpectExec(`UPDATE test_executions SET build_id = \$1 WHERE id = \$2`).
		WithArgs(buildID, int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := st.UpdateExecution(context.Background(), 404, ExecutionUpdate{BuildID: &buildID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateExecution_NoChangesReturnsCurrent(t *testing.T) {
	st, mock := setupTestStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM test_executions WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(executionRows().
			AddRow(7, 1, 2, 3, 4, nil, nil, 1, 0, nil, nil))

	execution, err := st.UpdateExecution(context.Background(), 7, ExecutionUpdate{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), execution.ID)
}

func TestFilterExecutions(t *testing.T) {
	st, mock := setupTestStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM test_executions WHERE 1 = 1 AND run_id = \$1 ORDER BY id`).
		WithArgs(int64(3)).
		WillReturnRows(executionRows().
			AddRow(1, 3, 2, 3, 4, nil, nil, 1, 0, nil, nil).
			AddRow(2, 3, 5, 3, 4, nil, nil, 1, 1, nil, nil))

	executions, err := st.FilterExecutions(context.Background(), map[string]interface{}{
		"run_id": int64(3),
	})
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, int64(1), executions[0].ID)
	assert.Equal(t, int64(2), executions[1].ID)
}

func TestFilterExecutions_RejectsUnknownField(t *testing.T) {
	st, _ := setupTestStore(t)

	_, err := st.FilterExecutions(context.Background(), map[string]interface{}{
		"password": "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot filter executions by field")
}

func TestExecutionStatusColorClass(t *testing.T) {
	tests := []struct {
		name   string
		weight int
		want   string
	}{
		{"positive weight passes", 20, "passed"},
		{"negative weight fails", -30, "failed"},
		{"zero weight is neutral", 0, "neutral"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := ExecutionStatus{Weight: tt.weight}
			assert.Equal(t, tt.want, status.ColorClass())
		})
	}
}
