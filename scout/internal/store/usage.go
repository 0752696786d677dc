package store

import (
	"context"
	"time"

	"github.com/openscouts/scoutd/dbopen"
)

// InsertUsageLog appends one credential-usage record. Rows are never updated
// or deleted by the control plane.
func (s *Store) InsertUsageLog(ctx context.Context, u *UsageLogEntry) error {
	if u.CreatedAt == 0 {
		u.CreatedAt = time.Now().UnixMilli()
	}
	if u.APICalls <= 0 {
		u.APICalls = 1
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO firecrawl_usage_logs (id, user_id, scout_id, execution_id,
		used_fallback, fallback_reason, api_calls_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.UserID, u.ScoutID, u.ExecutionID,
		u.UsedFallback, u.FallbackReason, u.APICalls, u.CreatedAt,
	)
	return err
}

// CountUsageByUser returns how many usage rows a user has accrued since
// the given time (ms). Used by administrative read paths.
func (s *Store) CountUsageByUser(ctx context.Context, userID string, since int64) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM firecrawl_usage_logs WHERE user_id = ? AND created_at >= ?`,
		userID, since).Scan(&n)
	return n, err
}
