package store

import (
	"context"
	"strings"
)

const trackerColumns = `id, name, kind, base_url, api_url, api_username, api_password`

// GetTracker fetches a configured issue tracker by id
func (s *Store) GetTracker(ctx context.Context, id int64) (*Tracker, error) {
	var t Tracker
	err := s.db.QueryRowContext(ctx,
		`SELECT `+trackerColumns+` FROM trackers WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Kind, &t.BaseURL, &t.APIURL, &t.APIUsername, &t.APIPassword)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return &t, nil
}

// ListTrackers returns all configured issue trackers
func (s *Store) ListTrackers(ctx context.Context) ([]*Tracker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trackerColumns+` FROM trackers ORDER BY id`)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var trackers []*Tracker
	for rows.Next() {
		var t Tracker
		err := rows.Scan(&t.ID, &t.Name, &t.Kind, &t.BaseURL, &t.APIURL,
			&t.APIUsername, &t.APIPassword)
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, &t)
	}
	return trackers, rows.Err()
}

// FindTrackerForURL returns the configured tracker whose base URL is a
// prefix of the given issue URL, or ErrNotFound
func (s *Store) FindTrackerForURL(ctx context.Context, url string) (*Tracker, error) {
	trackers, err := s.ListTrackers(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range trackers {
		if t.BaseURL != "" && strings.HasPrefix(url, strings.TrimSuffix(t.BaseURL, "/")) {
			return t, nil
		}
	}
	return nil, ErrNotFound
}
