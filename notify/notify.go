// Package notify sends transactional email through a Resend-compatible
// HTTP API when a scout run completes with results.
//
// Provider failures are soft by contract: Send returns an error for the
// caller to log, but nothing in this package ever aborts an execution.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Config configures the mailer.
type Config struct {
	// APIURL is the email provider endpoint. Default: Resend's.
	APIURL string
	// APIKey authorizes provider calls. Empty disables sending.
	APIKey string
	// From is the sender, e.g. "Open Scouts <alerts@openscout.dev>".
	From string
	// DashboardURL is linked from the email footer.
	DashboardURL string
	// Timeout bounds each provider call. Default: 10s.
	Timeout time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.APIURL == "" {
		c.APIURL = "https://api.resend.com/emails"
	}
	if c.DashboardURL == "" {
		c.DashboardURL = "https://openscout.dev"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Message is the provider wire payload.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer sends email through the configured provider.
type Mailer struct {
	cfg    Config
	client *http.Client
	// policy strips everything but basic formatting and links from
	// agent-produced text before it is embedded in email HTML.
	policy *bluemonday.Policy
}

// New creates a Mailer.
func New(cfg Config) *Mailer {
	cfg.defaults()
	return &Mailer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		policy: bluemonday.UGCPolicy(),
	}
}

// Enabled reports whether the mailer has an API key configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.APIKey != ""
}

// Send posts one message to the provider. A non-2xx response is an error;
// callers treat any error from this package as soft.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.Enabled() {
		m.cfg.Logger.Info("notify: no API key configured, skipping email", "to", msg.To)
		return nil
	}
	if msg.From == "" {
		msg.From = m.cfg.From
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notify: provider returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// Alert is the content of a scout success notification.
type Alert struct {
	To         string
	ScoutTitle string
	Goal       string
	City       string // empty for "any location"
	Response   string // agent markdown-ish response text
}

// SendAlert formats and sends a scout success email.
func (m *Mailer) SendAlert(ctx context.Context, a Alert) error {
	if a.To == "" {
		m.cfg.Logger.Info("notify: recipient has no email address, skipping", "scout", a.ScoutTitle)
		return nil
	}
	html, err := m.renderAlert(a)
	if err != nil {
		return fmt.Errorf("notify: render alert: %w", err)
	}
	return m.Send(ctx, Message{
		To:      a.To,
		Subject: "Scout Alert: " + a.ScoutTitle,
		HTML:    html,
	})
}
