// Package steps records the per-execution step trace. All writes here are
// telemetry: they retry a few times and then give up without failing the
// run that produced them.
package steps

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openscouts/scoutd/idgen"
	"github.com/openscouts/scoutd/retry"
	"github.com/openscouts/scoutd/scout/internal/store"
)

// StuckAfter is how long a step may sit in running before readers display
// it as failed. The stored status is never rewritten.
const StuckAfter = 5 * time.Minute

// Recorder is the slice of the store the tracker writes through.
type Recorder interface {
	InsertStep(ctx context.Context, st *store.ExecutionStep) error
	UpdateStep(ctx context.Context, executionID string, stepNumber int, u store.StepUpdate) error
	ListSteps(ctx context.Context, executionID string) ([]*store.ExecutionStep, error)
}

// Tracker persists ordered execution steps.
type Tracker struct {
	rec    Recorder
	ids    idgen.Generator
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(rec Recorder, ids idgen.Generator, logger *slog.Logger) *Tracker {
	if ids == nil {
		ids = idgen.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{rec: rec, ids: ids, logger: logger, now: time.Now}
}

// Create inserts a step in running status. Soft write: after retries it
// logs and reports ok=false. A conflict on (execution, number) means an
// earlier attempt already landed and counts as success.
func (t *Tracker) Create(ctx context.Context, executionID string, number int, stepType, description string, input Payload) bool {
	raw, err := Encode(stepType, input)
	if err != nil {
		t.logger.Warn("steps: bad input payload", "execution_id", executionID, "step", number, "error", err)
		raw = nil
	}
	st := &store.ExecutionStep{
		ID:          t.ids(),
		ExecutionID: executionID,
		StepNumber:  number,
		StepType:    stepType,
		Description: description,
		Input:       raw,
	}
	_, ok := retry.Soft(ctx, t.logger, "steps.create", func(ctx context.Context) (struct{}, error) {
		err := t.rec.InsertStep(ctx, st)
		if errors.Is(err, store.ErrConflict) {
			err = nil
		}
		return struct{}{}, err
	})
	return ok
}

// Complete finalizes a step as completed with its output. Soft write.
func (t *Tracker) Complete(ctx context.Context, executionID string, number int, stepType string, output Payload) bool {
	raw, err := Encode(stepType, output)
	if err != nil {
		t.logger.Warn("steps: bad output payload", "execution_id", executionID, "step", number, "error", err)
		raw = nil
	}
	return t.update(ctx, executionID, number, store.StepUpdate{
		Status: store.StepCompleted,
		Output: raw,
	})
}

// Fail finalizes a step as failed with an error message. Soft write.
func (t *Tracker) Fail(ctx context.Context, executionID string, number int, errMsg string) bool {
	return t.update(ctx, executionID, number, store.StepUpdate{
		Status:       store.StepFailed,
		ErrorMessage: errMsg,
	})
}

func (t *Tracker) update(ctx context.Context, executionID string, number int, u store.StepUpdate) bool {
	_, ok := retry.Soft(ctx, t.logger, "steps.update", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.rec.UpdateStep(ctx, executionID, number, u)
	})
	return ok
}

// View is a step as readers see it: the stored record plus the derived
// effective status.
type View struct {
	*store.ExecutionStep
	EffectiveStatus string `json:"effective_status"`
	Stuck           bool   `json:"stuck,omitempty"`
}

// List returns an execution's steps with effective status evaluated at
// read time.
func (t *Tracker) List(ctx context.Context, executionID string) ([]View, error) {
	raw, err := t.rec.ListSteps(ctx, executionID)
	if err != nil {
		return nil, err
	}
	now := t.now()
	views := make([]View, 0, len(raw))
	for _, st := range raw {
		views = append(views, View{
			ExecutionStep:   st,
			EffectiveStatus: EffectiveStatus(st, now),
			Stuck:           IsStuck(st, now),
		})
	}
	return views, nil
}

// IsStuck reports whether a step has been running past the threshold.
// Pure function of stored data and the given clock reading.
func IsStuck(st *store.ExecutionStep, now time.Time) bool {
	return st.Status == store.StepRunning &&
		now.Sub(time.UnixMilli(st.StartedAt)) > StuckAfter
}

// EffectiveStatus is what readers display: failed for stuck steps, the
// stored status otherwise.
func EffectiveStatus(st *store.ExecutionStep, now time.Time) string {
	if IsStuck(st, now) {
		return store.StepFailed
	}
	return st.Status
}
