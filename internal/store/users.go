package store

import (
	"context"
	"strings"
)

// GetUser fetches a user by id
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(ctx, `WHERE id = $1`, id)
}

// GetUserByUsername fetches a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(ctx, `WHERE username = $1`, username)
}

func (s *Store) scanUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	var u User
	var roles string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, roles FROM users `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &roles)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	u.Roles = splitRoles(roles)
	return &u, nil
}

// CreateUser inserts a user record and returns it
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string, roles []string) (*User, error) {
	joined := strings.Join(roles, ",")

	if s.driver == "sqlite3" {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO users (username, email, password_hash, roles)
			VALUES ($1, $2, $3, $4)`,
			username, email, passwordHash, joined,
		)
		if err != nil {
			return nil, ConvertDBError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return s.GetUser(ctx, id)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, roles)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		username, email, passwordHash, joined,
	).Scan(&id)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return s.GetUser(ctx, id)
}

func splitRoles(roles string) []string {
	parts := strings.Split(roles, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
