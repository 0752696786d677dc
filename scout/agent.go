package scout

import (
	"context"
	"time"

	"github.com/openscouts/scoutd/scout/internal/steps"
)

// RunInput is what the agent receives for one run.
type RunInput struct {
	Scout  *Scout
	APIKey string
	// MaxAge is the content-freshness hint for the scrape provider,
	// derived from the scout's frequency.
	MaxAge time.Duration
}

// AgentResult is the agent's final verdict for a run.
type AgentResult struct {
	Response ScoutResponse
	// APICalls counts scrape-provider calls the run made, for usage logs.
	APICalls int
}

// StepSink receives the agent's ordered step events. Implementations
// persist them best-effort; the agent never blocks on a sink failure.
type StepSink interface {
	StepStarted(ctx context.Context, number int, stepType, description string, input steps.Payload)
	StepCompleted(ctx context.Context, number int, stepType string, output steps.Payload)
	StepFailed(ctx context.Context, number int, errMsg string)
}

// Agent executes a scout's task. It reports progress through the sink
// and either returns a result or an error; an error wrapping
// ErrKeyRejected additionally invalidates the user's personal key.
type Agent interface {
	Execute(ctx context.Context, in RunInput, trace StepSink) (*AgentResult, error)
}

// UserDirectory resolves a user's notification address. An empty email
// with nil error means the user has none and notification is skipped.
type UserDirectory interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}
