package scout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openscouts/scoutd/scout/internal/store"
)

// Scheduler polls for due scouts and runs them. Scheduled runs execute
// synchronously, one at a time; the durable store, not the scheduler,
// is what keeps concurrent instances from doubling a run.
type Scheduler struct {
	store  *store.Store
	runner *Runner
	config SchedulerConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewScheduler(st *store.Store, runner *Runner, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: st, runner: runner, config: cfg, logger: logger, now: time.Now}
}

// Run polls on a ticker. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler: started",
		"check_interval", s.config.CheckInterval,
		"max_consecutive_failures", s.config.MaxConsecutiveFailures)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	// Run once immediately on start.
	s.runDueScouts(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return
		case <-ticker.C:
			s.runDueScouts(ctx)
		}
	}
}

// runDueScouts executes every due scout in turn. A single scout's
// failure never stops the sweep.
func (s *Scheduler) runDueScouts(ctx context.Context) {
	due, err := s.store.DueScouts(ctx, s.config.MaxConsecutiveFailures)
	if err != nil {
		s.logger.Error("scheduler: due scouts", "error", err)
		return
	}

	ran := 0
	now := s.now()
	for _, sc := range due {
		if ctx.Err() != nil {
			return
		}
		// DueScouts filters on stored columns; ShouldRun re-checks
		// completeness and the exact interval.
		if !ShouldRun(sc, now) {
			continue
		}
		_, err := s.runner.Execute(ctx, sc.ID, TriggerScheduled)
		switch {
		case err == nil:
			ran++
		case errors.Is(err, ErrAlreadyRunning):
			s.logger.Debug("scheduler: scout already running", "scout_id", sc.ID)
		case errors.Is(err, ErrNotRunnable):
			s.logger.Debug("scheduler: scout not runnable", "scout_id", sc.ID)
		default:
			s.logger.Warn("scheduler: run failed", "scout_id", sc.ID, "error", err)
		}
	}

	if ran > 0 {
		s.logger.Info("scheduler: sweep done", "due", len(due), "ran", ran)
	}
}
