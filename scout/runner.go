package scout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openscouts/scoutd/analytics"
	"github.com/openscouts/scoutd/idgen"
	"github.com/openscouts/scoutd/notify"
	"github.com/openscouts/scoutd/retry"
	"github.com/openscouts/scoutd/scout/internal/credential"
	"github.com/openscouts/scoutd/scout/internal/steps"
	"github.com/openscouts/scoutd/scout/internal/store"
)

// Trigger sources recorded with each run.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Runner owns the execution lifecycle: it opens the execution record,
// resolves the credential, drives the agent while persisting its step
// events, and writes the terminal state. The terminal write is the only
// hard requirement; every other side effect (steps, usage log, email,
// analytics) is best-effort.
type Runner struct {
	store     *store.Store
	tracker   *steps.Tracker
	creds     *credential.Resolver
	agent     Agent
	users     UserDirectory
	mailer    *notify.Mailer
	analytics *analytics.Client
	ids       idgen.Generator
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner wires a Runner. mailer, analytics, and users may be nil;
// the corresponding side effects are skipped.
func NewRunner(st *store.Store, tracker *steps.Tracker, creds *credential.Resolver, agent Agent, users UserDirectory, mailer *notify.Mailer, ac *analytics.Client, ids idgen.Generator, logger *slog.Logger) *Runner {
	if ids == nil {
		ids = idgen.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:     st,
		tracker:   tracker,
		creds:     creds,
		agent:     agent,
		users:     users,
		mailer:    mailer,
		analytics: ac,
		ids:       ids,
		logger:    logger,
		now:       time.Now,
	}
}

// runTrace adapts the step tracker to the sink the agent writes to.
type runTrace struct {
	tracker     *steps.Tracker
	executionID string
}

func (t *runTrace) StepStarted(ctx context.Context, number int, stepType, description string, input steps.Payload) {
	t.tracker.Create(ctx, t.executionID, number, stepType, description, input)
}

func (t *runTrace) StepCompleted(ctx context.Context, number int, stepType string, output steps.Payload) {
	t.tracker.Complete(ctx, t.executionID, number, stepType, output)
}

func (t *runTrace) StepFailed(ctx context.Context, number int, errMsg string) {
	t.tracker.Fail(ctx, t.executionID, number, errMsg)
}

// Execute runs a scout once and blocks until the run reaches a terminal
// state. trigger is TriggerManual or TriggerScheduled. The returned
// error classifies rejections (ErrNotFound, ErrNotRunnable,
// ErrAlreadyRunning) and agent failures; when an execution record was
// opened it is returned even on failure.
func (r *Runner) Execute(ctx context.Context, scoutID, trigger string) (*Execution, error) {
	sc, err := r.store.GetScout(ctx, scoutID)
	if err != nil {
		return nil, fmt.Errorf("scout: load %s: %w", scoutID, err)
	}
	if sc == nil {
		return nil, ErrNotFound
	}
	if !sc.IsActive || !IsComplete(sc) {
		return nil, ErrNotRunnable
	}

	exec := &store.Execution{ID: r.ids(), ScoutID: sc.ID}
	if err := r.store.InsertExecution(ctx, exec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("scout: open execution: %w", err)
	}

	logger := r.logger.With("scout_id", sc.ID, "execution_id", exec.ID, "trigger", trigger)
	logger.Info("runner: execution started", "title", sc.Title)
	start := r.now()

	// last_run_at moves at start, not completion, so the scheduler does
	// not re-dispatch a scout mid-run.
	if err := r.store.TouchLastRun(ctx, sc.ID); err != nil {
		logger.Warn("runner: touch last run", "error", err)
	}

	r.analytics.ExecutionStarted(ctx, sc.UserID, sc.ID, exec.ID, sc.Title, trigger)

	cred, err := r.creds.Resolve(ctx, sc.UserID)
	if err != nil {
		// No key, no run. This is an execution-domain failure.
		r.fail(ctx, exec, sc, start, fmt.Errorf("resolve credential: %w", err))
		return exec, err
	}
	if cred.UsedFallback {
		logger.Info("runner: using fallback api key", "reason", cred.FallbackReason)
	}

	result, agentErr := r.agent.Execute(ctx, RunInput{
		Scout:  sc,
		APIKey: cred.APIKey,
		MaxAge: MaxAge(sc.Frequency),
	}, &runTrace{tracker: r.tracker, executionID: exec.ID})

	apiCalls := 0
	if result != nil {
		apiCalls = result.APICalls
	}
	r.logUsage(ctx, sc, exec.ID, cred, apiCalls)

	if agentErr != nil {
		if errors.Is(agentErr, ErrKeyRejected) && !cred.UsedFallback {
			if err := r.creds.MarkInvalid(ctx, sc.UserID, agentErr.Error()); err != nil {
				logger.Warn("runner: mark key invalid", "error", err)
			} else {
				logger.Info("runner: personal api key invalidated")
			}
		}
		r.fail(ctx, exec, sc, start, agentErr)
		return exec, agentErr
	}
	if result == nil {
		// An agent that reports success without a result is a failed
		// run, not a crash.
		err := errors.New("agent returned no result")
		r.fail(ctx, exec, sc, start, err)
		return exec, err
	}

	r.complete(ctx, exec, sc, start, result)
	return exec, nil
}

// fail writes the terminal failed state. It runs on a detached context
// so a cancelled trigger cannot leave the execution dangling in running.
func (r *Runner) fail(ctx context.Context, exec *Execution, sc *Scout, start time.Time, cause error) {
	detached := context.WithoutCancel(ctx)
	logger := r.logger.With("scout_id", sc.ID, "execution_id", exec.ID)

	err := retry.Do(detached, retry.DefaultAttempts, func(ctx context.Context) error {
		return r.store.FailExecution(ctx, exec.ID, cause.Error())
	})
	if err != nil {
		logger.Error("runner: failed to persist terminal state", "error", err)
	}
	if err := r.store.IncrementFailures(detached, sc.ID); err != nil {
		logger.Warn("runner: increment failures", "error", err)
	}

	duration := r.now().Sub(start)
	logger.Warn("runner: execution failed", "error", cause, "duration", duration)
	r.analytics.ExecutionFailed(detached, sc.UserID, sc.ID, exec.ID, sc.Title, cause.Error(), duration.Milliseconds())

	exec.Status = store.ExecutionFailed
	exec.ErrorMessage = cause.Error()
}

// complete writes the terminal completed state and fires the
// notification path. Only the state write is hard; duplicate detection,
// email, and analytics are best-effort.
func (r *Runner) complete(ctx context.Context, exec *Execution, sc *Scout, start time.Time, result *AgentResult) {
	detached := context.WithoutCancel(ctx)
	logger := r.logger.With("scout_id", sc.ID, "execution_id", exec.ID)
	resp := result.Response

	// Previous summary is read before the terminal write only to keep
	// the comparison independent of this run's own row.
	prev, hadPrev, err := r.store.LatestCompletedSummary(ctx, sc.ID, exec.ID)
	if err != nil {
		logger.Warn("runner: load previous summary", "error", err)
		hadPrev = false
	}

	err = retry.Do(detached, retry.DefaultAttempts, func(ctx context.Context) error {
		return r.store.CompleteExecution(ctx, exec.ID, &resp, resp.Response)
	})
	if err != nil {
		logger.Error("runner: failed to persist terminal state", "error", err)
	}
	if err := r.store.ResetFailures(detached, sc.ID); err != nil {
		logger.Warn("runner: reset failures", "error", err)
	}

	duplicate := false
	if hadPrev && isDuplicateResponse(prev, resp.Response) {
		duplicate = true
		score := responseSimilarity(prev, resp.Response)
		logger.Info("runner: duplicate result, suppressing notification", "similarity", score)
		r.analytics.DuplicateDetected(detached, sc.UserID, sc.ID, exec.ID, sc.Title, score)
	}

	if !duplicate && resp.TaskCompleted {
		r.notifyUser(detached, sc, exec.ID, resp)
	}

	stepCount, err := r.store.CountSteps(detached, exec.ID)
	if err != nil {
		logger.Warn("runner: count steps", "error", err)
	}
	duration := r.now().Sub(start)
	logger.Info("runner: execution completed",
		"task_status", resp.TaskStatus, "duration", duration, "steps", stepCount, "duplicate", duplicate)
	r.analytics.ExecutionCompleted(detached, sc.UserID, sc.ID, exec.ID, sc.Title, analytics.CompletionStats{
		DurationMS:   duration.Milliseconds(),
		StepsCount:   stepCount,
		ResultsFound: resp.TaskCompleted,
		IsDuplicate:  duplicate,
		APICalls:     result.APICalls,
	})

	exec.Status = store.ExecutionCompleted
	exec.Results = &resp
	exec.Summary = resp.Response
}

func (r *Runner) notifyUser(ctx context.Context, sc *Scout, executionID string, resp ScoutResponse) {
	logger := r.logger.With("scout_id", sc.ID, "execution_id", executionID)
	if r.mailer == nil || !r.mailer.Enabled() || r.users == nil {
		return
	}
	email, err := r.users.EmailFor(ctx, sc.UserID)
	if err != nil {
		logger.Warn("runner: lookup user email", "error", err)
		return
	}
	if email == "" {
		logger.Info("runner: user has no notification address, skipping email")
		return
	}
	city := ""
	if sc.Location != nil && !sc.Location.Anywhere() {
		city = sc.Location.City
	}
	sendErr := r.mailer.SendAlert(ctx, notify.Alert{
		To:         email,
		ScoutTitle: sc.Title,
		Goal:       sc.Goal,
		City:       city,
		Response:   resp.Response,
	})
	if sendErr != nil {
		logger.Warn("runner: send alert", "error", sendErr)
	}
	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
	}
	r.analytics.EmailSent(ctx, sc.UserID, sc.ID, executionID, sc.Title, sendErr == nil, errMsg)
}

// logUsage records the credential path the run took. Soft write.
func (r *Runner) logUsage(ctx context.Context, sc *Scout, executionID string, cred credential.Resolution, apiCalls int) {
	detached := context.WithoutCancel(ctx)
	retry.Soft(detached, r.logger, "runner.usage_log", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.InsertUsageLog(ctx, &store.UsageLogEntry{
			ID:             r.ids(),
			UserID:         sc.UserID,
			ScoutID:        sc.ID,
			ExecutionID:    executionID,
			UsedFallback:   cred.UsedFallback,
			FallbackReason: cred.FallbackReason,
			APICalls:       apiCalls,
		})
	})
}
