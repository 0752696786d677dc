// Package scout is the execution-orchestration control plane for
// recurring monitoring tasks. A scout is a natural-language task (goal,
// search queries, location, frequency) executed periodically by an
// external agent; this package decides when a scout may run, gates
// manual triggers, resolves the scrape-API credential, records the
// step-by-step execution trace, and notifies the user on findings.
//
// Agent reasoning itself is out of scope: the agent is injected as an
// interface and observed only through its step events and final result.
package scout

import (
	"github.com/openscouts/scoutd/scout/internal/queue"
	"github.com/openscouts/scoutd/scout/internal/ratelimit"
	"github.com/openscouts/scoutd/scout/internal/steps"
	"github.com/openscouts/scoutd/scout/internal/store"
)

// Re-export stored types for the public API.
type (
	Scout         = store.Scout
	Location      = store.Location
	Execution     = store.Execution
	ExecutionStep = store.ExecutionStep
	ScoutResponse = store.ScoutResponse
	Preferences   = store.Preferences
	UsageLogEntry = store.UsageLogEntry
	StepView      = steps.View
	RunRequest    = queue.RunRequest
	Decision      = ratelimit.Decision
)

// Frequency values.
const (
	FrequencyDaily      = store.FrequencyDaily
	FrequencyEvery3Days = store.FrequencyEvery3Days
	FrequencyWeekly     = store.FrequencyWeekly
)

// Step types and their typed payloads, re-exported so external agents
// can emit fully typed step events.
const (
	StepSearch    = steps.TypeSearch
	StepScrape    = steps.TypeScrape
	StepAnalyze   = steps.TypeAnalyze
	StepSummarize = steps.TypeSummarize
	StepToolCall  = steps.TypeToolCall
)

type (
	StepPayload     = steps.Payload
	SearchInput     = steps.SearchInput
	SearchOutput    = steps.SearchOutput
	ScrapeInput     = steps.ScrapeInput
	ScrapeOutput    = steps.ScrapeOutput
	AnalyzeInput    = steps.AnalyzeInput
	AnalyzeOutput   = steps.AnalyzeOutput
	SummarizeInput  = steps.SummarizeInput
	SummarizeOutput = steps.SummarizeOutput
	ToolCallInput   = steps.ToolCallInput
	ToolCallOutput  = steps.ToolCallOutput
)
