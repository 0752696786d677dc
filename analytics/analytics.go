// Package analytics posts product events to a PostHog-compatible capture
// endpoint. Every call is fire-and-forget: failures are logged via slog and
// never propagate, so a broken analytics backend is invisible to callers.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Config configures the capture client.
type Config struct {
	// Host is the capture endpoint base URL, e.g. "https://us.i.posthog.com".
	Host string
	// APIKey is the project write key. Empty disables capture entirely.
	APIKey string
	// Timeout bounds each capture call. Default: 5s.
	Timeout time.Duration
	// Source is attached to every event as the "source" property.
	Source string
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Source == "" {
		c.Source = "scoutd"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client captures events. The zero-value Client (or one with an empty API
// key) drops every event silently, which keeps call sites unconditional.
type Client struct {
	cfg    Config
	client *http.Client
}

// New creates a capture client.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Capture sends one event. It never returns an error; non-2xx responses and
// transport failures are logged and swallowed.
func (c *Client) Capture(ctx context.Context, event, distinctID string, properties map[string]any) {
	if c == nil || c.cfg.APIKey == "" {
		return
	}

	props := make(map[string]any, len(properties)+2)
	for k, v := range properties {
		props[k] = v
	}
	props["$lib"] = "scoutd"
	props["source"] = c.cfg.Source

	body, err := json.Marshal(map[string]any{
		"api_key":     c.cfg.APIKey,
		"event":       event,
		"distinct_id": distinctID,
		"properties":  props,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		c.cfg.Logger.Error("analytics: marshal event", "event", event, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/capture/", bytes.NewReader(body))
	if err != nil {
		c.cfg.Logger.Error("analytics: build request", "event", event, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.cfg.Logger.Warn("analytics: capture failed", "event", event, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.cfg.Logger.Warn("analytics: capture rejected",
			"event", event, "status", fmt.Sprintf("%d", resp.StatusCode))
	}
}

// Event names emitted by the execution control plane.
const (
	EventExecutionStarted   = "scout_execution_started"
	EventExecutionCompleted = "scout_execution_completed"
	EventExecutionFailed    = "scout_execution_failed"
	EventEmailSent          = "scout_email_notification_sent"
	EventDuplicateDetected  = "scout_duplicate_detected"
)

// ExecutionStarted records the start of a scout run.
func (c *Client) ExecutionStarted(ctx context.Context, userID, scoutID, executionID, title, triggerSource string) {
	c.Capture(ctx, EventExecutionStarted, userID, map[string]any{
		"scout_id":       scoutID,
		"execution_id":   executionID,
		"scout_title":    title,
		"trigger_source": triggerSource,
	})
}

// CompletionStats carries the completion-event properties.
type CompletionStats struct {
	DurationMS   int64
	StepsCount   int
	ResultsFound bool
	IsDuplicate  bool
	APICalls     int
}

// ExecutionCompleted records a successful run.
func (c *Client) ExecutionCompleted(ctx context.Context, userID, scoutID, executionID, title string, stats CompletionStats) {
	c.Capture(ctx, EventExecutionCompleted, userID, map[string]any{
		"scout_id":        scoutID,
		"execution_id":    executionID,
		"scout_title":     title,
		"duration_ms":     stats.DurationMS,
		"steps_count":     stats.StepsCount,
		"results_found":   stats.ResultsFound,
		"is_duplicate":    stats.IsDuplicate,
		"api_calls_count": stats.APICalls,
	})
}

// ExecutionFailed records a terminal failure.
func (c *Client) ExecutionFailed(ctx context.Context, userID, scoutID, executionID, title, errMsg string, durationMS int64) {
	c.Capture(ctx, EventExecutionFailed, userID, map[string]any{
		"scout_id":      scoutID,
		"execution_id":  executionID,
		"scout_title":   title,
		"error_message": errMsg,
		"duration_ms":   durationMS,
	})
}

// EmailSent records the outcome of a notification attempt.
func (c *Client) EmailSent(ctx context.Context, userID, scoutID, executionID, title string, success bool, errMsg string) {
	props := map[string]any{
		"scout_id":     scoutID,
		"execution_id": executionID,
		"scout_title":  title,
		"success":      success,
	}
	if errMsg != "" {
		props["error_message"] = errMsg
	}
	c.Capture(ctx, EventEmailSent, userID, props)
}

// DuplicateDetected records that a run reproduced the previous result.
func (c *Client) DuplicateDetected(ctx context.Context, userID, scoutID, executionID, title string, similarity float64) {
	c.Capture(ctx, EventDuplicateDetected, userID, map[string]any{
		"scout_id":         scoutID,
		"execution_id":     executionID,
		"scout_title":      title,
		"similarity_score": similarity,
	})
}
