package scout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/openscouts/scoutd/analytics"
	"github.com/openscouts/scoutd/idgen"
	"github.com/openscouts/scoutd/notify"
	"github.com/openscouts/scoutd/scout/internal/credential"
	"github.com/openscouts/scoutd/scout/internal/queue"
	"github.com/openscouts/scoutd/scout/internal/ratelimit"
	"github.com/openscouts/scoutd/scout/internal/steps"
	"github.com/openscouts/scoutd/scout/internal/store"
)

// Service wires the control plane together: store, rate limiter, step
// tracker, credential resolver, run queue, runner, and scheduler.
type Service struct {
	store     *store.Store
	limiter   *ratelimit.Limiter
	tracker   *steps.Tracker
	creds     *credential.Resolver
	queue     *queue.Queue
	runner    *Runner
	sched     *Scheduler
	mailer    *notify.Mailer
	analytics *analytics.Client
	auth      Authenticator
	ids       idgen.Generator
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithIDGenerator overrides the ID generator. Tests use deterministic ones.
func WithIDGenerator(g idgen.Generator) ServiceOption {
	return func(svc *Service) { svc.ids = g }
}

// WithRateLimiter replaces the rate limiter, for tests that need a
// fixed clock.
func WithRateLimiter(l *ratelimit.Limiter) ServiceOption {
	return func(svc *Service) { svc.limiter = l }
}

// New creates a Service on an already-opened database (see dbopen). It
// applies the schema, validates the config once, and wires every
// component; it does not start background work — call Start.
//
// agent drives the actual task execution. users resolves notification
// addresses and may be nil (no email). auth authenticates manual
// triggers.
func New(db *sql.DB, agent Agent, users UserDirectory, auth Authenticator, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fmt.Errorf("scout: agent is required")
	}
	if auth == nil {
		// Deny by default. A service without an authenticator has no
		// manual trigger surface.
		auth = func(*http.Request) (string, error) { return "", ErrUnauthenticated }
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("scout: apply schema: %w", err)
	}
	st := store.NewStore(db)

	svc := &Service{
		store:  st,
		auth:   auth,
		ids:    idgen.Default,
		logger: logger,
	}
	svc.limiter = ratelimit.New(st,
		ratelimit.WithCooldown(cfg.RateLimit.Cooldown),
		ratelimit.WithDailyMax(cfg.RateLimit.DailyMax),
	)
	svc.mailer = notify.New(notify.Config{
		APIURL:       cfg.Email.APIURL,
		APIKey:       cfg.Email.APIKey,
		From:         cfg.Email.From,
		DashboardURL: cfg.Email.DashboardURL,
		Logger:       logger,
	})
	svc.analytics = analytics.New(analytics.Config{
		Host:   cfg.Analytics.Host,
		APIKey: cfg.Analytics.APIKey,
		Logger: logger,
	})
	svc.queue = queue.New(db, queue.Options{
		Visibility:   cfg.Queue.Visibility,
		PollInterval: cfg.Queue.PollInterval,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		Logger:       logger,
	})
	if err := svc.queue.EnsureTable(context.Background()); err != nil {
		return nil, fmt.Errorf("scout: init run queue: %w", err)
	}

	for _, opt := range opts {
		opt(svc)
	}

	svc.tracker = steps.NewTracker(st, svc.ids, logger)
	svc.creds = credential.NewResolver(st, cfg.FallbackAPIKey)
	svc.runner = NewRunner(st, svc.tracker, svc.creds, agent, users, svc.mailer, svc.analytics, svc.ids, logger)
	svc.sched = NewScheduler(st, svc.runner, cfg.Scheduler, logger)

	return svc, nil
}

// Start launches the scheduler and the queue worker. Non-blocking.
func (svc *Service) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	svc.cancel = cancel

	svc.wg.Add(2)
	go func() {
		defer svc.wg.Done()
		svc.sched.Run(runCtx)
	}()
	go func() {
		defer svc.wg.Done()
		svc.queue.Run(runCtx, svc.handleQueuedRun)
	}()
}

// handleQueuedRun processes one dequeued manual trigger. Rejections and
// runs that reached a terminal state ack; only failures before an
// execution record existed requeue.
func (svc *Service) handleQueuedRun(ctx context.Context, job *queue.Job) error {
	exec, err := svc.runner.Execute(ctx, job.Request.ScoutID, TriggerManual)
	if err == nil || exec != nil {
		// Terminal state reached; the outcome is in the record.
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotRunnable) || errors.Is(err, ErrAlreadyRunning) {
		svc.logger.Info("queue: run rejected", "scout_id", job.Request.ScoutID, "reason", err)
		return nil
	}
	return err
}

// Close stops background work and waits for in-flight runs.
func (svc *Service) Close() error {
	if svc.cancel != nil {
		svc.cancel()
	}
	svc.wg.Wait()
	return nil
}

// --- Scout management ---

// CreateScout validates and stores a new scout. Missing ID and
// timestamps are filled in.
func (svc *Service) CreateScout(ctx context.Context, s *Scout) error {
	if err := validateScoutInput(s); err != nil {
		return err
	}
	if s.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if s.ID == "" {
		s.ID = svc.ids()
	}
	return svc.store.InsertScout(ctx, s)
}

// GetScout loads a scout by ID.
func (svc *Service) GetScout(ctx context.Context, id string) (*Scout, error) {
	s, err := svc.store.GetScout(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// ListScouts returns a user's scouts.
func (svc *Service) ListScouts(ctx context.Context, userID string) ([]*Scout, error) {
	return svc.store.ListScoutsByUser(ctx, userID)
}

// UpdateScout validates and persists a scout's mutable fields.
func (svc *Service) UpdateScout(ctx context.Context, s *Scout) error {
	if err := validateScoutInput(s); err != nil {
		return err
	}
	return svc.store.UpdateScout(ctx, s)
}

// Executions returns a scout's most recent executions.
func (svc *Service) Executions(ctx context.Context, scoutID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	return svc.store.ListExecutions(ctx, scoutID, limit)
}

// Steps returns an execution's steps with read-time effective status.
func (svc *Service) Steps(ctx context.Context, executionID string) ([]StepView, error) {
	return svc.tracker.List(ctx, executionID)
}

// Run executes a scout synchronously, bypassing rate limits. This is
// the programmatic equivalent of the scheduled trigger.
func (svc *Service) Run(ctx context.Context, scoutID string) (*Execution, error) {
	return svc.runner.Execute(ctx, scoutID, TriggerScheduled)
}
