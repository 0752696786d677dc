package scout

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all scoutd configuration. Required fields are validated
// once at construction; a missing value fails fast instead of being
// rechecked per call.
type Config struct {
	DBPath string `yaml:"db_path"`

	// FallbackAPIKey is the shared scrape-API key used when a user has
	// no usable key of their own. Required.
	FallbackAPIKey string `yaml:"fallback_api_key"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Email     EmailConfig     `yaml:"email"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// SchedulerConfig controls the due-scout poller.
type SchedulerConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	// MaxConsecutiveFailures is how many failed runs in a row park a
	// scout until it succeeds again or the user edits it.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
}

// QueueConfig controls the manual-trigger run queue.
type QueueConfig struct {
	Visibility   time.Duration `yaml:"visibility"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// RateLimitConfig controls manual trigger limits.
type RateLimitConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
	DailyMax int           `yaml:"daily_max"`
}

// EmailConfig controls result notifications. An empty APIKey disables
// email entirely.
type EmailConfig struct {
	APIURL       string `yaml:"api_url"`
	APIKey       string `yaml:"api_key"`
	From         string `yaml:"from"`
	DashboardURL string `yaml:"dashboard_url"`
}

// AnalyticsConfig controls product analytics. An empty APIKey disables
// capture.
type AnalyticsConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "scoutd.db"
	}
	if c.Scheduler.CheckInterval <= 0 {
		c.Scheduler.CheckInterval = time.Minute
	}
	if c.Scheduler.MaxConsecutiveFailures <= 0 {
		c.Scheduler.MaxConsecutiveFailures = 5
	}
	if c.Queue.Visibility <= 0 {
		c.Queue.Visibility = 15 * time.Minute
	}
	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = time.Second
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 2
	}
	if c.RateLimit.Cooldown <= 0 {
		c.RateLimit.Cooldown = 20 * time.Minute
	}
	if c.RateLimit.DailyMax <= 0 {
		c.RateLimit.DailyMax = 10
	}
}

// Validate reports missing required values. Called once by New.
func (c *Config) Validate() error {
	if c.FallbackAPIKey == "" {
		return fmt.Errorf("scout: config: fallback_api_key is required")
	}
	return nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("scout: parse config %s: %w", path, err)
	}
	return cfg, nil
}
