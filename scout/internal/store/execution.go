package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openscouts/scoutd/dbopen"
)

// InsertExecution opens a run in status running. The partial unique index on
// (scout_id) WHERE status='running' makes this the conditional write that
// admits at most one concurrent run per scout; a lost race returns
// ErrConflict.
func (s *Store) InsertExecution(ctx context.Context, e *Execution) error {
	if e.StartedAt == 0 {
		e.StartedAt = time.Now().UnixMilli()
	}
	if e.Status == "" {
		e.Status = ExecutionRunning
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO scout_executions (id, scout_id, status, started_at)
		VALUES (?, ?, ?, ?)`,
		e.ID, e.ScoutID, e.Status, e.StartedAt,
	)
	if isUnique(err) {
		return ErrConflict
	}
	return err
}

const executionColumns = `id, scout_id, status, started_at, completed_at,
	error_message, results_json, summary`

// GetExecution retrieves an execution by ID. Returns nil, nil when absent.
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM scout_executions WHERE id = ?`, id)
	e, err := scanExecution(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListExecutions returns a scout's executions, newest first.
func (s *Store) ListExecutions(ctx context.Context, scoutID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM scout_executions
		WHERE scout_id = ? ORDER BY started_at DESC LIMIT ?`, scoutID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		e, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// CompleteExecution moves a running execution to completed with its results
// summary. Terminal states are immutable: a second call is a no-op.
func (s *Store) CompleteExecution(ctx context.Context, id string, results *ScoutResponse, summary string) error {
	var resultsJSON string
	if results != nil {
		b, err := json.Marshal(results)
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		resultsJSON = string(b)
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE scout_executions SET status=?, completed_at=?, results_json=?, summary=?
		WHERE id=? AND status=?`,
		ExecutionCompleted, time.Now().UnixMilli(), resultsJSON, summary, id, ExecutionRunning)
	return err
}

// FailExecution moves a running execution to failed with an error message.
// Terminal states are immutable: a second call is a no-op.
func (s *Store) FailExecution(ctx context.Context, id, errMsg string) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE scout_executions SET status=?, completed_at=?, error_message=?
		WHERE id=? AND status=?`,
		ExecutionFailed, time.Now().UnixMilli(), errMsg, id, ExecutionRunning)
	return err
}

// LatestStart returns the most recent execution start time (ms) for a scout.
// ok is false when the scout has never run.
func (s *Store) LatestStart(ctx context.Context, scoutID string) (startedAt int64, ok bool, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT started_at FROM scout_executions
		WHERE scout_id = ? ORDER BY started_at DESC LIMIT 1`, scoutID).Scan(&startedAt)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return startedAt, true, nil
}

// CountStartedSince counts executions across all of a user's scouts with a
// start time at or after since (ms).
func (s *Store) CountStartedSince(ctx context.Context, userID string, since int64) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scout_executions e
		JOIN scouts s ON s.id = e.scout_id
		WHERE s.user_id = ? AND e.started_at >= ?`, userID, since).Scan(&n)
	return n, err
}

// LatestCompletedSummary returns the summary text of the scout's most recent
// completed execution other than excludeID. ok is false when there is none.
func (s *Store) LatestCompletedSummary(ctx context.Context, scoutID, excludeID string) (summary string, ok bool, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT summary FROM scout_executions
		WHERE scout_id = ? AND status = ? AND id != ?
		ORDER BY started_at DESC LIMIT 1`, scoutID, ExecutionCompleted, excludeID).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return summary, true, nil
}

func scanExecution(scan func(...any) error) (*Execution, error) {
	var e Execution
	var resultsJSON string
	err := scan(
		&e.ID, &e.ScoutID, &e.Status, &e.StartedAt, &e.CompletedAt,
		&e.ErrorMessage, &resultsJSON, &e.Summary,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	if resultsJSON != "" {
		var r ScoutResponse
		if err := json.Unmarshal([]byte(resultsJSON), &r); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
		e.Results = &r
	}
	return &e, nil
}
