package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linkRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "execution_id", "name", "url", "is_defect", "created_at",
	})
}

func TestAddLink_ReturnsExisting(t *testing.T) {
	st, mock := setupTestStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM link_references\s+WHERE execution_id = \$1 AND name = \$2 AND url = \$3`).
		WithArgs(int64(7), "Bug", "https://example.com/bug/1").
		WillReturnRows(linkRows().
			AddRow(3, 7, "Bug", "https://example.com/bug/1", true, time.Now()))

	link, err := st.AddLink(context.Background(), 7, "Bug", "https://example.com/bug/1", true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), link.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddLink_CreatesWhenMissing(t *testing.T) {
	st, mock := setupTestStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM link_references\s+WHERE execution_id = \$1 AND name = \$2 AND url = \$3`).
		WithArgs(int64(7), "Bug", "https://example.com/bug/2").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery(`(?s)INSERT INTO link_references.+RETURNING id`).
		WithArgs(int64(7), "Bug", "https://example.com/bug/2", true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	mock.ExpectQuery(`(?s)SELECT .+ FROM link_references WHERE id = \$1`).
		WithArgs(int64(11)).
		WillReturnRows(linkRows().
			AddRow(11, 7, "Bug", "https://example.com/bug/2", true, time.Now()))

	link, err := st.AddLink(context.Background(), 7, "Bug", "https://example.com/bug/2", true)
	require.NoError(t, err)
	assert.Equal(t, int64(11), link.ID)
	assert.True(t, link.IsDefect)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilterLinks_RejectsUnknownField(t *testing.T) {
	st, _ := setupTestStore(t)

	_, err := st.FilterLinks(context.Background(), map[string]interface{}{
		"tracker": "jira",
	})
	require.Error(t, err)
}

func TestRemoveLinks(t *testing.T) {
	st, mock := setupTestStore(t)

	mock.ExpectExec(`DELETE FROM link_references WHERE 1 = 1 AND execution_id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	removed, err := st.RemoveLinks(context.Background(), map[string]interface{}{
		"execution_id": int64(7),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestRemoveLinks_RejectsEmptyQuery(t *testing.T) {
	st, _ := setupTestStore(t)

	_, err := st.RemoveLinks(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one filter field")
}

func TestAddComment_RejectsEmptyText(t *testing.T) {
	st, _ := setupTestStore(t)

	_, err := st.AddComment(context.Background(), 7, 1, "   \n\t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be empty")
}

func TestAddComment(t *testing.T) {
	st, mock := setupTestStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO comments.+RETURNING id`).
		WithArgs(int64(7), int64(1), "looks like a regression").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	mock.ExpectQuery(`(?s)SELECT .+ FROM comments c\s+JOIN users u ON u.id = c.author_id\s+WHERE c.id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "execution_id", "author_id", "username", "text", "created_at",
		}).AddRow(5, 7, 1, "dana", "looks like a regression", time.Now()))

	comment, err := st.AddComment(context.Background(), 7, 1, "  looks like a regression  ")
	require.NoError(t, err)
	assert.Equal(t, "looks like a regression", comment.Text)
	assert.Equal(t, "dana", comment.AuthorName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
