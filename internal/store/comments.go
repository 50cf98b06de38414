package store

import (
	"context"
	"fmt"
	"strings"
)

// AddComment attaches a comment to a test execution
func (s *Store) AddComment(ctx context.Context, executionID, authorID int64, text string) (*Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("comment text must not be empty")
	}

	if s.driver == "sqlite3" {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO comments (execution_id, author_id, text)
			VALUES ($1, $2, $3)`,
			executionID, authorID, text,
		)
		if err != nil {
			return nil, ConvertDBError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return s.getComment(ctx, id)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (execution_id, author_id, text)
		VALUES ($1, $2, $3)
		RETURNING id`,
		executionID, authorID, text,
	).Scan(&id)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return s.getComment(ctx, id)
}

func (s *Store) getComment(ctx context.Context, id int64) (*Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.execution_id, c.author_id, u.username, c.text, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.id = $1`, id,
	).Scan(&c.ID, &c.ExecutionID, &c.AuthorID, &c.AuthorName, &c.Text, &c.CreatedAt)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return &c, nil
}

// GetComments lists the comments on a test execution, oldest first
func (s *Store) GetComments(ctx context.Context, executionID int64) ([]*Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.execution_id, c.author_id, u.username, c.text, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.execution_id = $1
		ORDER BY c.created_at, c.id`, executionID)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		var c Comment
		err := rows.Scan(&c.ID, &c.ExecutionID, &c.AuthorID, &c.AuthorName, &c.Text, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}
