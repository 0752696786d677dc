package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openscouts/scoutd/scout"
)

// remoteAgent delegates task execution to an external agent service over
// HTTP. The service receives the scout, the resolved API key, and the
// freshness hint, and answers with the final verdict. The invocation is
// traced as a single tool_call step; agents that stream richer traces
// write steps through their own channel.
type remoteAgent struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func newRemoteAgent(url string, logger *slog.Logger) *remoteAgent {
	return &remoteAgent{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Minute},
		logger: logger,
	}
}

type agentRequest struct {
	Scout              *scout.Scout `json:"scout"`
	APIKey             string       `json:"api_key"`
	MaxAgeMS           int64        `json:"max_age_ms"`
	UnsupportedDomains []string     `json:"unsupported_domains"`
}

type agentResponse struct {
	TaskCompleted bool   `json:"taskCompleted"`
	TaskStatus    string `json:"taskStatus"`
	Response      string `json:"response"`
	APICalls      int    `json:"api_calls"`
}

func (a *remoteAgent) Execute(ctx context.Context, in scout.RunInput, trace scout.StepSink) (*scout.AgentResult, error) {
	payload, err := json.Marshal(agentRequest{
		Scout:              in.Scout,
		APIKey:             in.APIKey,
		MaxAgeMS:           in.MaxAge.Milliseconds(),
		UnsupportedDomains: scout.UnsupportedDomains(),
	})
	if err != nil {
		return nil, fmt.Errorf("agent: encode request: %w", err)
	}

	trace.StepStarted(ctx, 1, scout.StepToolCall, "Running agent", scout.ToolCallInput{
		Tool: "remote_agent",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		trace.StepFailed(ctx, 1, err.Error())
		return nil, fmt.Errorf("agent: call: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		trace.StepFailed(ctx, 1, err.Error())
		return nil, fmt.Errorf("agent: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		trace.StepFailed(ctx, 1, fmt.Sprintf("agent returned %d", resp.StatusCode))
		return nil, fmt.Errorf("agent status %d: %w", resp.StatusCode, scout.ErrKeyRejected)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		trace.StepFailed(ctx, 1, fmt.Sprintf("agent returned %d", resp.StatusCode))
		return nil, fmt.Errorf("agent: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var out agentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		trace.StepFailed(ctx, 1, "invalid agent response")
		return nil, fmt.Errorf("agent: decode response: %w", err)
	}

	trace.StepCompleted(ctx, 1, scout.StepToolCall, scout.ToolCallOutput{Result: json.RawMessage(body)})
	return &scout.AgentResult{
		Response: scout.ScoutResponse{
			TaskCompleted: out.TaskCompleted,
			TaskStatus:    out.TaskStatus,
			Response:      out.Response,
		},
		APICalls: out.APICalls,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
