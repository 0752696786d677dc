package queue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openscouts/scoutd/dbopen"
	"github.com/openscouts/scoutd/scout/internal/queue"
)

func newQueue(t *testing.T, opts queue.Options) *queue.Queue {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	q := queue.New(dbopen.OpenMemory(t), opts)
	if err := q.EnsureTable(context.Background()); err != nil {
		t.Fatal(err)
	}
	return q
}

func TestEnqueueAndClaim(t *testing.T) {
	q := newQueue(t, queue.Options{Visibility: time.Second})
	ctx := context.Background()

	err := q.Enqueue(ctx, "job-1", queue.RunRequest{ScoutID: "sct-1", UserID: "user-1", Manual: true})
	if err != nil {
		t.Fatal(err)
	}

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("expected a job")
	}
	if job.Request.ScoutID != "sct-1" || !job.Request.Manual {
		t.Fatalf("request round-trip: %+v", job.Request)
	}
	if job.Request.EnqueuedAt == 0 {
		t.Error("enqueued_at not stamped")
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts: got %d, want 1", job.Attempts)
	}

	// Claimed request is invisible to a second claim.
	job2, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job2 != nil {
		t.Fatal("claimed request should be invisible")
	}
}

func TestAckRemoves(t *testing.T) {
	q := newQueue(t, queue.Options{Visibility: time.Second})
	ctx := context.Background()

	q.Enqueue(ctx, "job-1", queue.RunRequest{ScoutID: "sct-1"})
	job, _ := q.Claim(ctx)
	if err := q.Ack(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	n, _ := q.Len(ctx)
	if n != 0 {
		t.Fatalf("queue should be empty after ack, got %d", n)
	}
}

func TestNackRedelivers(t *testing.T) {
	q := newQueue(t, queue.Options{Visibility: 10 * time.Second})
	ctx := context.Background()

	q.Enqueue(ctx, "job-1", queue.RunRequest{ScoutID: "sct-1"})
	job, _ := q.Claim(ctx)
	if err := q.Nack(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	job2, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job2 == nil {
		t.Fatal("expected redelivery after nack")
	}
	if job2.Attempts != 2 {
		t.Fatalf("attempts: got %d, want 2", job2.Attempts)
	}
}

func TestVisibilityTimeoutReappears(t *testing.T) {
	// WHAT: A claimed request whose holder never acks reappears after the
	// visibility window — crashed workers do not lose runs.
	q := newQueue(t, queue.Options{Visibility: 50 * time.Millisecond})
	ctx := context.Background()

	q.Enqueue(ctx, "job-1", queue.RunRequest{ScoutID: "sct-1"})
	q.Claim(ctx)

	if job, _ := q.Claim(ctx); job != nil {
		t.Fatal("request visible during the window")
	}

	time.Sleep(80 * time.Millisecond)
	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("request did not reappear after the window")
	}
	if job.Attempts != 2 {
		t.Fatalf("attempts: got %d, want 2", job.Attempts)
	}
}

func TestRunProcessesAndAcks(t *testing.T) {
	q := newQueue(t, queue.Options{Visibility: time.Second, PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Enqueue(ctx, "job-1", queue.RunRequest{ScoutID: "sct-1"})

	var handled atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, func(ctx context.Context, job *queue.Job) error {
			handled.Add(1)
			return nil
		})
	}()

	deadline := time.After(2 * time.Second)
	for handled.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if n, _ := q.Len(context.Background()); n != 0 {
		t.Errorf("queue not drained, %d left", n)
	}
}

func TestRunDiscardsOverAttemptCap(t *testing.T) {
	q := newQueue(t, queue.Options{
		Visibility:   time.Second,
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  2,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Enqueue(ctx, "job-1", queue.RunRequest{ScoutID: "sct-1"})

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, func(ctx context.Context, job *queue.Job) error {
			calls.Add(1)
			return errors.New("always fails")
		})
	}()

	// Wait until the poisoned request is discarded.
	deadline := time.After(2 * time.Second)
	for {
		n, _ := q.Len(context.Background())
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poisoned request never discarded")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls: got %d, want 2", got)
	}
}
