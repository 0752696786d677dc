// Package queue is the durable hand-off between the trigger dispatcher
// and the orchestrator. A manual trigger enqueues a run request and
// returns as soon as the row is committed; a worker claims the request
// and drives the run. Claimed rows stay invisible for a visibility
// window, so a worker crash makes the request reappear instead of
// losing it.
//
// The queue is pure SQLite, no external broker.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RunRequest is the payload of one queued run.
type RunRequest struct {
	ScoutID    string `json:"scout_id"`
	UserID     string `json:"user_id,omitempty"`
	Manual     bool   `json:"manual"`
	EnqueuedAt int64  `json:"enqueued_at"` // ms
}

// Job is a claimed run request.
type Job struct {
	ID       string
	Request  RunRequest
	Attempts int
}

// Options configures the queue.
type Options struct {
	// Visibility is how long a claimed request stays invisible. It must
	// exceed the longest plausible run. Default: 15m.
	Visibility time.Duration
	// PollInterval is the delay between claim attempts in Run. Default: 1s.
	PollInterval time.Duration
	// MaxAttempts caps redeliveries before a request is discarded.
	// Default: 2 (one retry after a crash).
	MaxAttempts int
	Logger      *slog.Logger
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 15 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 2
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Queue is the handle. Call EnsureTable once at startup.
type Queue struct {
	db   *sql.DB
	opts Options
}

func New(db *sql.DB, opts Options) *Queue {
	opts.defaults()
	return &Queue{db: db, opts: opts}
}

// EnsureTable creates the run-queue table if it does not exist.
func (q *Queue) EnsureTable(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scout_run_queue (
			id          TEXT PRIMARY KEY,
			payload     BLOB,
			visible_at  INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			attempts    INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_run_queue_visible ON scout_run_queue (visible_at);
	`)
	return err
}

// Enqueue inserts an immediately visible run request.
func (q *Queue) Enqueue(ctx context.Context, id string, req RunRequest) error {
	now := time.Now().UnixMilli()
	if req.EnqueuedAt == 0 {
		req.EnqueuedAt = now
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("queue: encode request: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO scout_run_queue (id, payload, visible_at, created_at) VALUES (?,?,?,?)`,
		id, payload, now, now,
	)
	return err
}

// Claim atomically takes the oldest visible request and hides it for the
// visibility window. Returns nil, nil when nothing is visible.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		UPDATE scout_run_queue
		SET visible_at = ?, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM scout_run_queue
			WHERE visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT 1
		)
		RETURNING id, payload, attempts`,
		hideUntil, now.UnixMilli(),
	)

	var j Job
	var payload []byte
	err := row.Scan(&j.ID, &payload, &j.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &j.Request); err != nil {
		return nil, fmt.Errorf("queue: decode request %s: %w", j.ID, err)
	}
	return &j, nil
}

// Ack deletes a processed request.
func (q *Queue) Ack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM scout_run_queue WHERE id = ?`, id)
	return err
}

// Nack makes a request immediately visible again.
func (q *Queue) Nack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE scout_run_queue SET visible_at = 0 WHERE id = ?`, id)
	return err
}

// Len counts queued requests, visible or not.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scout_run_queue`).Scan(&n)
	return n, err
}

// Handler processes a claimed request. Return nil to ack, non-nil to nack.
type Handler func(ctx context.Context, job *Job) error

// Run polls for visible requests and hands them to handler one at a
// time. Blocks until ctx is cancelled. Requests over the attempt cap are
// discarded with a warning.
func (q *Queue) Run(ctx context.Context, handler Handler) {
	log := q.opts.Logger
	log.Info("queue: worker started", "visibility", q.opts.Visibility, "poll", q.opts.PollInterval)

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("queue: worker stopped")
			return
		case <-ticker.C:
			q.poll(ctx, handler, log)
		}
	}
}

func (q *Queue) poll(ctx context.Context, handler Handler, log *slog.Logger) {
	for {
		job, err := q.Claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("queue: claim failed", "error", err)
			}
			return
		}
		if job == nil {
			return
		}

		if job.Attempts > q.opts.MaxAttempts {
			log.Warn("queue: request exceeded max attempts, discarding",
				"id", job.ID, "scout_id", job.Request.ScoutID, "attempts", job.Attempts)
			_ = q.Ack(ctx, job.ID)
			continue
		}

		if err := handler(ctx, job); err != nil {
			log.Warn("queue: run failed, requeueing", "id", job.ID, "scout_id", job.Request.ScoutID, "error", err)
			_ = q.Nack(context.Background(), job.ID)
		} else {
			_ = q.Ack(context.Background(), job.ID)
		}
	}
}
