// Package ratelimit gates manual scout triggers. Unlike a windowed
// per-IP limiter, both limits here derive from persisted execution
// history, so they hold across process restarts.
package ratelimit

import (
	"context"
	"time"
)

// Rejection reasons, stable strings exposed on the API surface.
const (
	ReasonCooldown   = "cooldown_active"
	ReasonDailyLimit = "daily_limit_reached"
)

// Defaults for manual trigger limits.
const (
	DefaultCooldown = 20 * time.Minute
	DefaultDailyMax = 10
)

// History is the slice of the store the limiter reads. LatestStart returns
// the most recent execution start for a scout (ok=false when the scout has
// never run); CountStartedSince counts executions started at or after the
// given ms timestamp across all of a user's scouts.
type History interface {
	LatestStart(ctx context.Context, scoutID string) (int64, bool, error)
	CountStartedSince(ctx context.Context, userID string, since int64) (int, error)
}

// Decision is the outcome of a limit check. On rejection the fields for
// the triggered reason are populated so handlers can surface them verbatim.
type Decision struct {
	Allowed bool
	Reason  string

	// Populated when Reason is ReasonCooldown.
	CooldownRemaining int // whole seconds left
	CooldownMinutes   int // rounded up, for display

	// Populated when Reason is ReasonDailyLimit.
	DailyLimit   int
	CurrentCount int
}

// Limiter enforces the per-scout cooldown and the per-user daily cap on
// manual triggers. Scheduled runs bypass it entirely.
type Limiter struct {
	history  History
	cooldown time.Duration
	dailyMax int
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithCooldown overrides the per-scout cooldown window.
func WithCooldown(d time.Duration) Option {
	return func(l *Limiter) { l.cooldown = d }
}

// WithDailyMax overrides the per-user daily trigger cap.
func WithDailyMax(n int) Option {
	return func(l *Limiter) { l.dailyMax = n }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(h History, opts ...Option) *Limiter {
	l := &Limiter{
		history:  h,
		cooldown: DefaultCooldown,
		dailyMax: DefaultDailyMax,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check evaluates both limits for a manual trigger of scoutID by userID.
// The cooldown is checked first; a scout that has never run always passes
// it. The daily window opens at local midnight in the process timezone,
// not a rolling 24 hours.
func (l *Limiter) Check(ctx context.Context, userID, scoutID string) (Decision, error) {
	now := l.now()

	lastStart, ran, err := l.history.LatestStart(ctx, scoutID)
	if err != nil {
		return Decision{}, err
	}
	if ran {
		elapsed := now.Sub(time.UnixMilli(lastStart))
		if elapsed < l.cooldown {
			remaining := l.cooldown - elapsed
			// Both round up: 500ms left still blocks for "1 second".
			secs := int((remaining + time.Second - 1) / time.Second)
			mins := int((remaining + time.Minute - 1) / time.Minute)
			return Decision{
				Reason:            ReasonCooldown,
				CooldownRemaining: secs,
				CooldownMinutes:   mins,
			}, nil
		}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	count, err := l.history.CountStartedSince(ctx, userID, midnight.UnixMilli())
	if err != nil {
		return Decision{}, err
	}
	if count >= l.dailyMax {
		return Decision{
			Reason:       ReasonDailyLimit,
			DailyLimit:   l.dailyMax,
			CurrentCount: count,
		}, nil
	}

	return Decision{Allowed: true}, nil
}
