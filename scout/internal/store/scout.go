package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openscouts/scoutd/dbopen"
)

// InsertScout adds a new scout.
func (s *Store) InsertScout(ctx context.Context, sc *Scout) error {
	now := time.Now().UnixMilli()
	if sc.CreatedAt == 0 {
		sc.CreatedAt = now
	}
	if sc.UpdatedAt == 0 {
		sc.UpdatedAt = now
	}

	queries, err := json.Marshal(sc.SearchQueries)
	if err != nil {
		return fmt.Errorf("marshal search queries: %w", err)
	}
	location, err := encodeLocation(sc.Location)
	if err != nil {
		return err
	}

	_, err = dbopen.Exec(ctx, s.DB,
		`INSERT INTO scouts (id, user_id, title, goal, description, search_queries,
		location_json, frequency, is_active, last_run_at, consecutive_failures,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.UserID, sc.Title, sc.Goal, sc.Description, string(queries),
		location, sc.Frequency, sc.IsActive, sc.LastRunAt, sc.ConsecutiveFailures,
		sc.CreatedAt, sc.UpdatedAt,
	)
	return err
}

const scoutColumns = `id, user_id, title, goal, description, search_queries,
	location_json, frequency, is_active, last_run_at, consecutive_failures,
	created_at, updated_at`

// GetScout retrieves a scout by ID. Returns nil, nil when absent.
func (s *Store) GetScout(ctx context.Context, id string) (*Scout, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+scoutColumns+` FROM scouts WHERE id = ?`, id)
	sc, err := scanScout(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sc, err
}

// ListScoutsByUser returns all scouts owned by a user, newest first.
func (s *Store) ListScoutsByUser(ctx context.Context, userID string) ([]*Scout, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+scoutColumns+` FROM scouts WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scouts []*Scout
	for rows.Next() {
		sc, err := scanScout(rows.Scan)
		if err != nil {
			return nil, err
		}
		scouts = append(scouts, sc)
	}
	return scouts, rows.Err()
}

// UpdateScout updates a scout's user-editable fields.
func (s *Store) UpdateScout(ctx context.Context, sc *Scout) error {
	sc.UpdatedAt = time.Now().UnixMilli()
	queries, err := json.Marshal(sc.SearchQueries)
	if err != nil {
		return fmt.Errorf("marshal search queries: %w", err)
	}
	location, err := encodeLocation(sc.Location)
	if err != nil {
		return err
	}
	_, err = dbopen.Exec(ctx, s.DB,
		`UPDATE scouts SET title=?, goal=?, description=?, search_queries=?,
		location_json=?, frequency=?, is_active=?, updated_at=?
		WHERE id=?`,
		sc.Title, sc.Goal, sc.Description, string(queries),
		location, sc.Frequency, sc.IsActive, sc.UpdatedAt, sc.ID,
	)
	return err
}

// TouchLastRun stamps the scout's last-run timestamp. Called exactly once
// per attempted run regardless of outcome, so cooldown math stays accurate
// for failed runs too.
func (s *Store) TouchLastRun(ctx context.Context, id string) error {
	now := time.Now().UnixMilli()
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE scouts SET last_run_at=?, updated_at=? WHERE id=?`, now, now, id)
	return err
}

// ResetFailures clears the consecutive-failure counter after a successful run.
func (s *Store) ResetFailures(ctx context.Context, id string) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE scouts SET consecutive_failures=0, updated_at=? WHERE id=?`,
		time.Now().UnixMilli(), id)
	return err
}

// IncrementFailures bumps the consecutive-failure counter after a failed run.
func (s *Store) IncrementFailures(ctx context.Context, id string) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE scouts SET consecutive_failures=consecutive_failures+1, updated_at=? WHERE id=?`,
		time.Now().UnixMilli(), id)
	return err
}

// DueScouts returns active scouts whose frequency interval has elapsed since
// last_run_at (never-run scouts are always due), skipping scouts at or over
// the failure ceiling. Completeness is checked by the caller.
func (s *Store) DueScouts(ctx context.Context, maxFailures int) ([]*Scout, error) {
	now := time.Now().UnixMilli()
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+scoutColumns+` FROM scouts
		WHERE is_active = 1
		  AND consecutive_failures < ?
		  AND (last_run_at IS NULL OR last_run_at + CASE frequency
			WHEN 'daily' THEN 86400000
			WHEN 'every_3_days' THEN 259200000
			WHEN 'weekly' THEN 604800000
			ELSE 86400000 END <= ?)
		ORDER BY last_run_at ASC NULLS FIRST`, maxFailures, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scouts []*Scout
	for rows.Next() {
		sc, err := scanScout(rows.Scan)
		if err != nil {
			return nil, err
		}
		scouts = append(scouts, sc)
	}
	return scouts, rows.Err()
}

func encodeLocation(l *Location) (string, error) {
	if l == nil {
		return "", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("marshal location: %w", err)
	}
	return string(b), nil
}

func scanScout(scan func(...any) error) (*Scout, error) {
	var sc Scout
	var active int
	var queries, location string
	err := scan(
		&sc.ID, &sc.UserID, &sc.Title, &sc.Goal, &sc.Description, &queries,
		&location, &sc.Frequency, &active, &sc.LastRunAt, &sc.ConsecutiveFailures,
		&sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan scout: %w", err)
	}
	sc.IsActive = active != 0
	if queries != "" {
		if err := json.Unmarshal([]byte(queries), &sc.SearchQueries); err != nil {
			return nil, fmt.Errorf("unmarshal search queries: %w", err)
		}
	}
	if location != "" {
		var l Location
		if err := json.Unmarshal([]byte(location), &l); err != nil {
			return nil, fmt.Errorf("unmarshal location: %w", err)
		}
		sc.Location = &l
	}
	return &sc, nil
}
