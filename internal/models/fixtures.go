package models

import (
	"fmt"
	"strings"
	"time"
)

// Fixture meta statuses recorded after every upstream attempt.
const (
	StatusSuccess        = "success"
	StatusSuccessPartial = "success_partial"
	StatusEmptySuccess   = "empty_success"
	StatusError          = "error"
)

// Payload provenance tags.
const (
	SourceLive        = "live"
	SourceLivePartial = "live_partial"
	SourceLiveError   = "live_error"
	SourceCache       = "cache"
	SourceCacheToday  = "cache_today"
	SourceNone        = "none"

	SourceWindowLive    = "window_live"
	SourceWindowCache   = "window_cache"
	SourceWindowPartial = "window_partial"
	SourceWindowNone    = "window_none"
)

// Match is one fixture row in the upstream provider's shape. The sub-objects
// are kept intact so cached entries round-trip through JSON unchanged.
type Match struct {
	Fixture Fixture `json:"fixture"`
	League  League  `json:"league"`
	Teams   Teams   `json:"teams"`
}

// Fixture carries the provider-assigned identifier (nullable upstream) and
// the kickoff timestamp in RFC3339.
type Fixture struct {
	ID   *int64 `json:"id"`
	Date string `json:"date"`
}

type League struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Logo   string `json:"logo,omitempty"`
	Season int    `json:"season"`
	Round  string `json:"round,omitempty"`
}

type Teams struct {
	Home Team `json:"home"`
	Away Team `json:"away"`
}

type Team struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

// DedupeKey identifies a match by provider id when present, otherwise by a
// composite of league, team names and kickoff.
func (m Match) DedupeKey() string {
	if m.Fixture.ID != nil {
		return fmt.Sprintf("%d", *m.Fixture.ID)
	}
	return fmt.Sprintf("%d:%s:%s:%s",
		m.League.ID,
		strings.ToLower(strings.TrimSpace(m.Teams.Home.Name)),
		strings.ToLower(strings.TrimSpace(m.Teams.Away.Name)),
		strings.TrimSpace(m.Fixture.Date),
	)
}

// KickoffUTC parses the fixture kickoff timestamp. Returns false when the
// timestamp is missing or unparseable.
func (m Match) KickoffUTC() (time.Time, bool) {
	return ParseISOTime(m.Fixture.Date)
}

// ParseISOTime parses an RFC3339-ish timestamp, tolerating a bare "Z" suffix
// and missing offsets the way upstream emits them.
func ParseISOTime(value string) (time.Time, bool) {
	text := strings.TrimSpace(value)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// FixtureMeta describes the freshness of one cached date key.
type FixtureMeta struct {
	Status        string `json:"status"`
	Source        string `json:"source"`
	MatchCount    int    `json:"match_count"`
	UpdatedAt     string `json:"updated_at"`
	LastAttemptAt string `json:"last_attempt_at"`
	LastError     string `json:"last_error,omitempty"`
}

// LastAttemptTime parses the last attempt timestamp.
func (m FixtureMeta) LastAttemptTime() (time.Time, bool) {
	if t, ok := ParseISOTime(m.LastAttemptAt); ok {
		return t, true
	}
	return ParseISOTime(m.UpdatedAt)
}

// SnapshotMeta governs whether the rolling today+tomorrow snapshot is fresh.
type SnapshotMeta struct {
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
	ExpiresAt string `json:"expires_at"`
	LastError string `json:"last_error,omitempty"`
}

// TeamStanding is one row of a per-(league, season) standings mapping, keyed
// by normalized team name.
type TeamStanding struct {
	Rank   int    `json:"rank"`
	Points int    `json:"points"`
	Form   string `json:"form"`
}

// BudgetStatus reports the daily upstream call ledger.
type BudgetStatus struct {
	Date      string `json:"date"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// FixturePayload is the unified result of a per-date fixture request.
type FixturePayload struct {
	Matches        []Match  `json:"matches"`
	Source         string   `json:"source"`
	Cached         bool     `json:"cached,omitempty"`
	CacheReason    string   `json:"cache_reason,omitempty"`
	Errors         string   `json:"errors,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	UpstreamIssues []string `json:"upstream_issues,omitempty"`
}

// WindowPayload is the unified result of a rolling-window request.
type WindowPayload struct {
	FixturePayload
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
	WindowHours int    `json:"window_hours"`
}

// WarmReport summarizes a daily cache warm pass.
type WarmReport struct {
	RequestedDates         []string          `json:"requested_dates"`
	FixturesLoaded         int               `json:"fixtures_loaded"`
	StandingsLeaguesWarmed int               `json:"standings_leagues_warmed"`
	SourceByDate           map[string]string `json:"source_by_date"`
	Warnings               []string          `json:"warnings"`
	Budget                 BudgetStatus      `json:"api_budget"`
}

// DedupeStrings drops empty and repeated entries, preserving order.
func DedupeStrings(items []string) []string {
	deduped := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		deduped = append(deduped, value)
	}
	return deduped
}
