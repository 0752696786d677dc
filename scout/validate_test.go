package scout

import (
	"strings"
	"testing"
	"time"

	"github.com/openscouts/scoutd/scout/internal/store"
)

func completeScout() *Scout {
	return &Scout{
		ID:            "sct-1",
		UserID:        "user-1",
		Title:         "Flat hunt",
		Goal:          "Find 2-room flats under 1400EUR",
		Description:   "Watches the usual portals",
		SearchQueries: []string{"2 room flat berlin"},
		Location:      &Location{City: "Berlin", Latitude: 52.52, Longitude: 13.405},
		Frequency:     FrequencyDaily,
		IsActive:      true,
	}
}

func TestFrequencyInterval(t *testing.T) {
	cases := []struct {
		frequency string
		want      time.Duration
		ok        bool
	}{
		{FrequencyDaily, 24 * time.Hour, true},
		{FrequencyEvery3Days, 72 * time.Hour, true},
		{FrequencyWeekly, 168 * time.Hour, true},
		{"hourly", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := FrequencyInterval(tc.frequency)
		if got != tc.want || ok != tc.ok {
			t.Errorf("FrequencyInterval(%q) = %v, %v; want %v, %v", tc.frequency, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMaxAgeDefaultsToDaily(t *testing.T) {
	if got := MaxAge("bogus"); got != 24*time.Hour {
		t.Errorf("MaxAge(bogus) = %v", got)
	}
	if got := MaxAge(FrequencyWeekly); got != 168*time.Hour {
		t.Errorf("MaxAge(weekly) = %v", got)
	}
}

func TestShouldRun(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *int64 {
		ms := now.Add(-d).UnixMilli()
		return &ms
	}

	cases := []struct {
		name   string
		mutate func(*Scout)
		want   bool
	}{
		{"never run", func(s *Scout) { s.LastRunAt = nil }, true},
		{"daily overdue", func(s *Scout) { s.LastRunAt = at(25 * time.Hour) }, true},
		{"daily not due", func(s *Scout) { s.LastRunAt = at(23 * time.Hour) }, false},
		{"daily exactly due", func(s *Scout) { s.LastRunAt = at(24 * time.Hour) }, true},
		{"weekly not due", func(s *Scout) {
			s.Frequency = FrequencyWeekly
			s.LastRunAt = at(100 * time.Hour)
		}, false},
		{"weekly overdue", func(s *Scout) {
			s.Frequency = FrequencyWeekly
			s.LastRunAt = at(169 * time.Hour)
		}, true},
		{"inactive", func(s *Scout) { s.IsActive = false }, false},
		{"missing goal", func(s *Scout) { s.Goal = "" }, false},
		{"no queries", func(s *Scout) { s.SearchQueries = nil }, false},
		{"no location", func(s *Scout) { s.Location = nil }, false},
		{"unknown frequency", func(s *Scout) { s.Frequency = "hourly" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := completeScout()
			tc.mutate(s)
			if got := ShouldRun(s, now); got != tc.want {
				t.Errorf("ShouldRun = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateScoutInput(t *testing.T) {
	if err := validateScoutInput(completeScout()); err != nil {
		t.Fatalf("complete scout rejected: %v", err)
	}

	tooMany := completeScout()
	tooMany.SearchQueries = []string{"a", "b", "c", "d", "e", "f"}
	if err := validateScoutInput(tooMany); err == nil {
		t.Error("6 queries accepted")
	}

	noTitle := completeScout()
	noTitle.Title = ""
	if err := validateScoutInput(noTitle); err == nil {
		t.Error("empty title accepted")
	}

	longGoal := completeScout()
	longGoal.Goal = strings.Repeat("x", maxGoalLen+1)
	if err := validateScoutInput(longGoal); err == nil {
		t.Error("oversized goal accepted")
	}

	blankQuery := completeScout()
	blankQuery.SearchQueries = []string{"  "}
	if err := validateScoutInput(blankQuery); err == nil {
		t.Error("blank query accepted")
	}

	badFreq := completeScout()
	badFreq.Frequency = "fortnightly"
	if err := validateScoutInput(badFreq); err == nil {
		t.Error("unknown frequency accepted")
	}
}

func TestIsUnsupportedURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://facebook.com/groups/berlin", true},
		{"https://www.facebook.com/groups/berlin", true},
		{"https://x.com/someone", true},
		{"https://example.com/listings", false},
		{"https://notfacebook.com/page", false},
		{"://not a url", false},
	}
	for _, tc := range cases {
		if got := IsUnsupportedURL(tc.url); got != tc.want {
			t.Errorf("IsUnsupportedURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestIsCompleteMatchesStoredFields(t *testing.T) {
	s := completeScout()
	if !IsComplete(s) {
		t.Fatal("complete scout reported incomplete")
	}
	s.Description = ""
	if IsComplete(s) {
		t.Error("missing description reported complete")
	}
	// Alias sanity: Scout is the stored type.
	var _ *store.Scout = s
}
