package tracker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/jobs"
	"github.com/caseflow/caseflow/internal/store"
)

func setupTestPoster(t *testing.T, opts Options) (*CommentPoster, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.NewWithDB(db, "postgres")
	queue := jobs.NewQueue(db)
	return NewCommentPoster(st, queue, "trackers", opts, zap.NewNop()), mock
}

func TestSchedule_EnqueuesPerExecution(t *testing.T) {
	poster, mock := setupTestPoster(t, testOptions())

	for i := 0; i < 2; i++ {
		mock.ExpectExec(`INSERT INTO jobs`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	err := poster.Schedule(context.Background(), 3, []int64{7, 8},
		"https://github.com/example/widget/issues/55")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedule_RejectsNonPostgresQueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.NewWithDB(db, "sqlite3")
	poster := NewCommentPoster(st, jobs.NewQueue(db), "trackers", testOptions(), zap.NewNop())

	err = poster.Schedule(context.Background(), 3, []int64{7},
		"https://github.com/example/widget/issues/55")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_PostsLinkComment(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	opts := testOptions()
	opts.HTTPClient = &http.Client{Transport: rewriteTransport{target: server.URL}}
	poster, mock := setupTestPoster(t, opts)

	mock.ExpectQuery(`(?s)SELECT .+ FROM trackers WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "kind", "base_url", "api_url", "api_username", "api_password",
		}).AddRow(3, "gh", "github", "https://github.com/example/widget", "", "", "token123"))

	mock.ExpectQuery(`(?s)SELECT e.id, e.run_id.+FROM test_executions e`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "run_id", "case_id", "build_id", "status_id", "assignee_id",
			"tested_by_id", "case_text_version", "sort_key", "started_at", "stopped_at",
			"case_summary", "case_text", "run_summary", "build_name", "product_name",
			"product_version", "status_name", "assignee_name", "tested_by_name",
		}).AddRow(42, 5, 7, 1, 4, nil, nil, 1, 0, nil, nil,
			"Login works", "steps", "Nightly regression", "build-123", "Widget",
			"2.0", "FAILED", "", ""))

	mock.ExpectQuery(`(?s)SELECT co.name\s+FROM case_components`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	err := poster.Handle(context.Background(), map[string]interface{}{
		"tracker_id":   float64(3),
		"execution_id": float64(42),
		"issue_url":    "https://github.com/example/widget/issues/55",
	})
	require.NoError(t, err)

	assert.Equal(t, "/repos/example/widget/issues/55/comments", gotPath)
	assert.Contains(t, gotBody, "Confirmed via test execution")
	assert.Contains(t, gotBody, "TC-7: Login works")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_RejectsTrackerWithoutCredentials(t *testing.T) {
	poster, mock := setupTestPoster(t, testOptions())

	mock.ExpectQuery(`(?s)SELECT .+ FROM trackers WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "kind", "base_url", "api_url", "api_username", "api_password",
		}).AddRow(3, "bz", "bugzilla", "https://bugzilla.example.com", "", "", ""))

	err := poster.Handle(context.Background(), map[string]interface{}{
		"tracker_id":   float64(3),
		"execution_id": float64(42),
		"issue_url":    "https://bugzilla.example.com/show_bug.cgi?id=9",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing comment credentials")
}

func TestHandle_RejectsMalformedPayload(t *testing.T) {
	poster, _ := setupTestPoster(t, testOptions())

	err := poster.Handle(context.Background(), map[string]interface{}{
		"execution_id": float64(42),
		"issue_url":    "https://x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker_id")

	err = poster.Handle(context.Background(), map[string]interface{}{
		"tracker_id":   float64(3),
		"execution_id": float64(42),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue_url")
}
