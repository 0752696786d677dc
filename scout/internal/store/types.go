// Package store is the data access layer for the scout control plane.
// It receives an already-opened *sql.DB (see dbopen) and owns the schema
// for scouts, executions, execution steps, preferences, and usage logs.
package store

import "encoding/json"

// Frequency values a scout can carry. Empty means unset.
const (
	FrequencyDaily      = "daily"
	FrequencyEvery3Days = "every_3_days"
	FrequencyWeekly     = "weekly"
)

// Location is where a scout searches. Coordinates (0,0) encode the
// "any location" sentinel.
type Location struct {
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Anywhere reports whether the location is the "any location" sentinel.
func (l Location) Anywhere() bool {
	return l.Latitude == 0 && l.Longitude == 0
}

// Scout is a user-defined recurring monitoring task.
type Scout struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	Title               string    `json:"title"`
	Goal                string    `json:"goal"`
	Description         string    `json:"description"`
	SearchQueries       []string  `json:"search_queries"` // at most 5
	Location            *Location `json:"location,omitempty"`
	Frequency           string    `json:"frequency"`
	IsActive            bool      `json:"is_active"`
	LastRunAt           *int64    `json:"last_run_at,omitempty"` // ms
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CreatedAt           int64     `json:"created_at"`
	UpdatedAt           int64     `json:"updated_at"`
}

// Execution statuses. Running is the only non-terminal state.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// TaskStatus values the agent reports in its results summary.
const (
	TaskCompleted        = "completed"
	TaskPartial          = "partial"
	TaskNotFound         = "not_found"
	TaskInsufficientData = "insufficient_data"
)

// ScoutResponse is the structured results summary persisted on completion.
// Field names are part of the stored wire format.
type ScoutResponse struct {
	TaskCompleted bool   `json:"taskCompleted"`
	TaskStatus    string `json:"taskStatus"`
	Response      string `json:"response"`
}

// Execution is one run attempt of a scout.
type Execution struct {
	ID           string         `json:"id"`
	ScoutID      string         `json:"scout_id"`
	Status       string         `json:"status"`
	StartedAt    int64          `json:"started_at"` // ms
	CompletedAt  *int64         `json:"completed_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Results      *ScoutResponse `json:"results,omitempty"`
	Summary      string         `json:"summary,omitempty"`
}

// Step statuses mirror execution statuses.
const (
	StepRunning   = "running"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// ExecutionStep is one unit of agent work within an execution. Input and
// output are stored as opaque JSON here; the steps package gives them
// their typed, per-step-type shape.
type ExecutionStep struct {
	ID           string          `json:"id"`
	ExecutionID  string          `json:"execution_id"`
	StepNumber   int             `json:"step_number"`
	StepType     string          `json:"step_type"`
	Description  string          `json:"description"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	Status       string          `json:"status"`
	StartedAt    int64           `json:"started_at"` // ms
	CompletedAt  *int64          `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Key statuses for a user's personal scrape-API key.
const (
	KeyPending  = "pending"
	KeyActive   = "active"
	KeyFallback = "fallback"
	KeyFailed   = "failed"
	KeyInvalid  = "invalid"
)

// Preferences is the per-user credential record.
type Preferences struct {
	UserID       string `json:"user_id"`
	APIKey       string `json:"firecrawl_api_key"`
	CustomAPIKey string `json:"firecrawl_custom_api_key"`
	KeyStatus    string `json:"firecrawl_key_status"`
	KeyError     string `json:"firecrawl_key_error"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// UsageLogEntry records which credential path an execution used.
// Append-only telemetry, never mutated.
type UsageLogEntry struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	ScoutID        string `json:"scout_id"`
	ExecutionID    string `json:"execution_id"`
	UsedFallback   bool   `json:"used_fallback"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	APICalls       int    `json:"api_calls_count"`
	CreatedAt      int64  `json:"created_at"`
}
