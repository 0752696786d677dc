package steps

import (
	"encoding/json"
	"fmt"
)

// Step types, part of the stored format.
const (
	TypeSearch    = "search"
	TypeScrape    = "scrape"
	TypeAnalyze   = "analyze"
	TypeSummarize = "summarize"
	TypeToolCall  = "tool_call"
)

// Payload is a step input or output. The concrete type carries the
// per-step-type schema; StepType ties it to the step it belongs to, so a
// payload written under the wrong type is rejected at encode time rather
// than discovered as a shape mismatch on read.
type Payload interface {
	StepType() string
}

// SearchInput starts a web search step.
type SearchInput struct {
	Query    string `json:"query"`
	Location string `json:"location,omitempty"`
}

// SearchOutput reports what a search found.
type SearchOutput struct {
	ResultCount int      `json:"result_count"`
	URLs        []string `json:"urls,omitempty"`
}

// ScrapeInput starts a page fetch step. MaxAgeMS is the freshness hint
// passed to the scrape provider; zero means no preference.
type ScrapeInput struct {
	URL      string `json:"url"`
	MaxAgeMS int64  `json:"max_age_ms,omitempty"`
}

// ScrapeOutput reports a fetched page.
type ScrapeOutput struct {
	ContentLength int  `json:"content_length"`
	Cached        bool `json:"cached,omitempty"`
}

// AnalyzeInput starts a content-analysis step over fetched sources.
type AnalyzeInput struct {
	Sources []string `json:"sources,omitempty"`
	Goal    string   `json:"goal,omitempty"`
}

// AnalyzeOutput reports whether the analyzed content matters for the goal.
type AnalyzeOutput struct {
	Relevant bool   `json:"relevant"`
	Findings string `json:"findings,omitempty"`
}

// SummarizeInput starts the final response-generation step.
type SummarizeInput struct {
	FindingsCount int `json:"findings_count,omitempty"`
}

// SummarizeOutput carries the agent's verdict for the run.
type SummarizeOutput struct {
	TaskCompleted bool   `json:"task_completed"`
	TaskStatus    string `json:"task_status"`
}

// ToolCallInput records an agent tool invocation not covered by the
// dedicated step types.
type ToolCallInput struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallOutput records a tool invocation's raw result.
type ToolCallOutput struct {
	Result json.RawMessage `json:"result,omitempty"`
}

func (SearchInput) StepType() string     { return TypeSearch }
func (SearchOutput) StepType() string    { return TypeSearch }
func (ScrapeInput) StepType() string     { return TypeScrape }
func (ScrapeOutput) StepType() string    { return TypeScrape }
func (AnalyzeInput) StepType() string    { return TypeAnalyze }
func (AnalyzeOutput) StepType() string   { return TypeAnalyze }
func (SummarizeInput) StepType() string  { return TypeSummarize }
func (SummarizeOutput) StepType() string { return TypeSummarize }
func (ToolCallInput) StepType() string   { return TypeToolCall }
func (ToolCallOutput) StepType() string  { return TypeToolCall }

// Encode serializes p for a step of the given type. A nil payload encodes
// to nil, which the store writes as an empty column.
func Encode(stepType string, p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	if p.StepType() != stepType {
		return nil, fmt.Errorf("steps: %T payload on %q step", p, stepType)
	}
	return json.Marshal(p)
}

// DecodeInput parses a stored input column back into its typed variant.
// Unknown step types come back as raw JSON so old rows stay readable.
func DecodeInput(stepType string, raw json.RawMessage) (any, error) {
	return decode(stepType, raw, true)
}

// DecodeOutput parses a stored output column back into its typed variant.
func DecodeOutput(stepType string, raw json.RawMessage) (any, error) {
	return decode(stepType, raw, false)
}

func decode(stepType string, raw json.RawMessage, input bool) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var dst any
	switch stepType {
	case TypeSearch:
		if input {
			dst = &SearchInput{}
		} else {
			dst = &SearchOutput{}
		}
	case TypeScrape:
		if input {
			dst = &ScrapeInput{}
		} else {
			dst = &ScrapeOutput{}
		}
	case TypeAnalyze:
		if input {
			dst = &AnalyzeInput{}
		} else {
			dst = &AnalyzeOutput{}
		}
	case TypeSummarize:
		if input {
			dst = &SummarizeInput{}
		} else {
			dst = &SummarizeOutput{}
		}
	case TypeToolCall:
		if input {
			dst = &ToolCallInput{}
		} else {
			dst = &ToolCallOutput{}
		}
	default:
		return raw, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, fmt.Errorf("steps: decode %s payload: %w", stepType, err)
	}
	return dst, nil
}
