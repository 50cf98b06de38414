package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// linkFilterColumns whitelists the fields accepted by FilterLinks and RemoveLinks
var linkFilterColumns = map[string]bool{
	"id":           true,
	"execution_id": true,
	"name":         true,
	"url":          true,
	"is_defect":    true,
}

// AddLink attaches a URL to a test execution. The operation is idempotent:
// an existing link with the same execution, name and URL is returned as-is.
func (s *Store) AddLink(ctx context.Context, executionID int64, name, url string, isDefect bool) (*LinkReference, error) {
	var link LinkReference
	err := s.db.QueryRowContext(ctx, `
		SELECT id, execution_id, name, url, is_defect, created_at
		FROM link_references
		WHERE execution_id = $1 AND name = $2 AND url = $3`,
		executionID, name, url,
	).Scan(&link.ID, &link.ExecutionID, &link.Name, &link.URL, &link.IsDefect, &link.CreatedAt)
	if err == nil {
		return &link, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, ConvertDBError(err)
	}

	if s.driver == "sqlite3" {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO link_references (execution_id, name, url, is_defect)
			VALUES ($1, $2, $3, $4)`,
			executionID, name, url, isDefect,
		)
		if err != nil {
			return nil, ConvertDBError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return s.getLink(ctx, id)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO link_references (execution_id, name, url, is_defect)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		executionID, name, url, isDefect,
	).Scan(&id)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return s.getLink(ctx, id)
}

func (s *Store) getLink(ctx context.Context, id int64) (*LinkReference, error) {
	var link LinkReference
	err := s.db.QueryRowContext(ctx, `
		SELECT id, execution_id, name, url, is_defect, created_at
		FROM link_references WHERE id = $1`, id,
	).Scan(&link.ID, &link.ExecutionID, &link.Name, &link.URL, &link.IsDefect, &link.CreatedAt)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return &link, nil
}

// GetLinks returns all link references for an execution ordered by creation
func (s *Store) GetLinks(ctx context.Context, executionID int64) ([]*LinkReference, error) {
	return s.FilterLinks(ctx, map[string]interface{}{"execution_id": executionID})
}

// FilterLinks performs a search over whitelisted link-reference fields
func (s *Store) FilterLinks(ctx context.Context, query map[string]interface{}) ([]*LinkReference, error) {
	where, args, err := buildLinkWhere(query)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`
		SELECT id, execution_id, name, url, is_defect, created_at
		FROM link_references WHERE %s ORDER BY id`, where)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var links []*LinkReference
	for rows.Next() {
		var link LinkReference
		err := rows.Scan(&link.ID, &link.ExecutionID, &link.Name, &link.URL,
			&link.IsDefect, &link.CreatedAt)
		if err != nil {
			return nil, err
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

// RemoveLinks deletes all link references matching the query and returns the
// number removed. An empty query is rejected to guard against mass deletion.
func (s *Store) RemoveLinks(ctx context.Context, query map[string]interface{}) (int64, error) {
	if len(query) == 0 {
		return 0, fmt.Errorf("remove_links requires at least one filter field")
	}

	where, args, err := buildLinkWhere(query)
	if err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM link_references WHERE %s`, where), args...)
	if err != nil {
		return 0, ConvertDBError(err)
	}
	return result.RowsAffected()
}

func buildLinkWhere(query map[string]interface{}) (string, []interface{}, error) {
	where := "1 = 1"
	args := make([]interface{}, 0, len(query))

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		if !linkFilterColumns[field] {
			return "", nil, fmt.Errorf("cannot filter links by field: %s", field)
		}
		args = append(args, query[field])
		where += fmt.Sprintf(" AND %s = $%d", field, len(args))
	}
	return where, args, nil
}
