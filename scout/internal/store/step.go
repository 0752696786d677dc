package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openscouts/scoutd/dbopen"
)

// InsertStep records a new step in running status. Step numbers are unique
// per execution; re-inserting the same (execution, number) pair returns
// ErrConflict, which keeps retried creates from duplicating rows.
func (s *Store) InsertStep(ctx context.Context, st *ExecutionStep) error {
	if st.StartedAt == 0 {
		st.StartedAt = time.Now().UnixMilli()
	}
	if st.Status == "" {
		st.Status = StepRunning
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO scout_execution_steps (id, execution_id, step_number, step_type,
		description, input_json, output_json, status, started_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.ExecutionID, st.StepNumber, st.StepType,
		st.Description, string(st.Input), string(st.Output), st.Status, st.StartedAt, st.ErrorMessage,
	)
	if isUnique(err) {
		return ErrConflict
	}
	return err
}

// StepUpdate carries the mutable completion fields of a step.
type StepUpdate struct {
	Status       string
	Output       []byte
	ErrorMessage string
}

// UpdateStep finalizes a step: status, output, error, completion stamp.
// Step number and input are immutable once created.
func (s *Store) UpdateStep(ctx context.Context, executionID string, stepNumber int, u StepUpdate) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE scout_execution_steps
		SET status=?, output_json=?, error_message=?, completed_at=?
		WHERE execution_id=? AND step_number=?`,
		u.Status, string(u.Output), u.ErrorMessage, time.Now().UnixMilli(),
		executionID, stepNumber,
	)
	return err
}

// ListSteps returns an execution's steps in step-number order.
func (s *Store) ListSteps(ctx context.Context, executionID string) ([]*ExecutionStep, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, execution_id, step_number, step_type, description,
		input_json, output_json, status, started_at, completed_at, error_message
		FROM scout_execution_steps
		WHERE execution_id = ? ORDER BY step_number ASC`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*ExecutionStep
	for rows.Next() {
		st, err := scanStep(rows.Scan)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// CountSteps returns the number of steps recorded for an execution.
func (s *Store) CountSteps(ctx context.Context, executionID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scout_execution_steps WHERE execution_id = ?`, executionID).Scan(&n)
	return n, err
}

func scanStep(scan func(...any) error) (*ExecutionStep, error) {
	var st ExecutionStep
	var input, output string
	err := scan(
		&st.ID, &st.ExecutionID, &st.StepNumber, &st.StepType, &st.Description,
		&input, &output, &st.Status, &st.StartedAt, &st.CompletedAt, &st.ErrorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan step: %w", err)
	}
	if input != "" {
		st.Input = []byte(input)
	}
	if output != "" {
		st.Output = []byte(output)
	}
	return &st, nil
}
