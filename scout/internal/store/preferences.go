package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openscouts/scoutd/dbopen"
)

// GetPreferences retrieves a user's credential record. Returns nil, nil when
// the user has no preferences row.
func (s *Store) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT user_id, firecrawl_api_key, firecrawl_custom_api_key,
		firecrawl_key_status, firecrawl_key_error, created_at, updated_at
		FROM user_preferences WHERE user_id = ?`, userID)

	var p Preferences
	err := row.Scan(&p.UserID, &p.APIKey, &p.CustomAPIKey, &p.KeyStatus, &p.KeyError,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan preferences: %w", err)
	}
	return &p, nil
}

// UpsertPreferences writes a user's credential record.
func (s *Store) UpsertPreferences(ctx context.Context, p *Preferences) error {
	now := time.Now().UnixMilli()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO user_preferences (user_id, firecrawl_api_key, firecrawl_custom_api_key,
		firecrawl_key_status, firecrawl_key_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			firecrawl_api_key=excluded.firecrawl_api_key,
			firecrawl_custom_api_key=excluded.firecrawl_custom_api_key,
			firecrawl_key_status=excluded.firecrawl_key_status,
			firecrawl_key_error=excluded.firecrawl_key_error,
			updated_at=excluded.updated_at`,
		p.UserID, p.APIKey, p.CustomAPIKey, p.KeyStatus, p.KeyError, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// MarkKeyInvalid flips a user's key status to invalid and records the reason.
// One-way: only a fresh user-provisioned key clears it.
func (s *Store) MarkKeyInvalid(ctx context.Context, userID, reason string) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE user_preferences SET firecrawl_key_status=?, firecrawl_key_error=?, updated_at=?
		WHERE user_id=?`,
		KeyInvalid, reason, time.Now().UnixMilli(), userID)
	return err
}
