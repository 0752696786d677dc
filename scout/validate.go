package scout

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	maxTitleLen       = 512
	maxGoalLen        = 4096
	maxDescriptionLen = 8192
	maxQueryLen       = 512

	// MaxSearchQueries caps the queries a single scout may carry.
	MaxSearchQueries = 5
)

// frequencyIntervals maps each frequency to the minimum gap between runs.
var frequencyIntervals = map[string]time.Duration{
	FrequencyDaily:      24 * time.Hour,
	FrequencyEvery3Days: 72 * time.Hour,
	FrequencyWeekly:     168 * time.Hour,
}

// FrequencyInterval returns the run interval for a frequency value.
func FrequencyInterval(frequency string) (time.Duration, bool) {
	d, ok := frequencyIntervals[frequency]
	return d, ok
}

// MaxAge returns the content-freshness hint passed to the scrape
// provider: a daily scout tolerates day-old cached pages, a weekly one
// week-old. Unknown frequencies get the daily value.
func MaxAge(frequency string) time.Duration {
	if d, ok := frequencyIntervals[frequency]; ok {
		return d
	}
	return 24 * time.Hour
}

// IsComplete reports whether a scout has every field a run requires.
func IsComplete(s *Scout) bool {
	if s.Title == "" || s.Goal == "" || s.Description == "" {
		return false
	}
	if len(s.SearchQueries) == 0 {
		return false
	}
	if s.Location == nil {
		return false
	}
	_, ok := frequencyIntervals[s.Frequency]
	return ok
}

// ShouldRun reports whether a scout is due at the given instant: active,
// complete, and either never run or past its frequency interval.
func ShouldRun(s *Scout, now time.Time) bool {
	if !s.IsActive || !IsComplete(s) {
		return false
	}
	if s.LastRunAt == nil {
		return true
	}
	interval := frequencyIntervals[s.Frequency]
	return now.Sub(time.UnixMilli(*s.LastRunAt)) >= interval
}

// validateScoutInput checks a scout's mutable fields before insert or
// update.
func validateScoutInput(s *Scout) error {
	if s.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(s.Title) > maxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, maxTitleLen)
	}
	if s.Goal == "" {
		return fmt.Errorf("%w: goal is required", ErrInvalidInput)
	}
	if len(s.Goal) > maxGoalLen {
		return fmt.Errorf("%w: goal exceeds %d characters", ErrInvalidInput, maxGoalLen)
	}
	if len(s.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, maxDescriptionLen)
	}
	if len(s.SearchQueries) == 0 {
		return fmt.Errorf("%w: at least one search query is required", ErrInvalidInput)
	}
	if len(s.SearchQueries) > MaxSearchQueries {
		return fmt.Errorf("%w: at most %d search queries", ErrInvalidInput, MaxSearchQueries)
	}
	for _, q := range s.SearchQueries {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("%w: empty search query", ErrInvalidInput)
		}
		if len(q) > maxQueryLen {
			return fmt.Errorf("%w: search query exceeds %d characters", ErrInvalidInput, maxQueryLen)
		}
	}
	if _, ok := frequencyIntervals[s.Frequency]; !ok {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, s.Frequency)
	}
	return nil
}

// unsupportedDomains are sites the scrape provider cannot usefully
// fetch (logins, bot walls). Agents consult this before scraping.
var unsupportedDomains = []string{
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"linkedin.com",
	"tiktok.com",
	"youtube.com",
	"reddit.com",
	"pinterest.com",
	"snapchat.com",
	"whatsapp.com",
	"telegram.org",
	"discord.com",
	"twitch.tv",
}

// UnsupportedDomains returns the blacklist for callers that forward it
// to an agent runtime.
func UnsupportedDomains() []string {
	out := make([]string, len(unsupportedDomains))
	copy(out, unsupportedDomains)
	return out
}

// IsUnsupportedURL reports whether a URL points at a domain the scrape
// provider cannot fetch. Unparseable URLs pass through; the fetch
// itself surfaces the real error.
func IsUnsupportedURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, domain := range unsupportedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
