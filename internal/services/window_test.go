package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchline/matchradar/internal/models"
)

// windowProvider returns a provider whose Premier League slate carries the
// given kickoffs; the other target leagues return nothing.
func windowProvider(kickoffs ...string) *fakeProvider {
	matches := make([]models.Match, 0, len(kickoffs))
	for i, kickoff := range kickoffs {
		matches = append(matches, leagueMatch(int64(100+i), 39, "Arsenal", "Chelsea", kickoff))
	}
	return &fakeProvider{
		configured:       true,
		fixturesByLeague: map[int][]models.Match{39: matches},
	}
}

func TestWindowBoundariesAreInclusive(t *testing.T) {
	cfg := testConfig()
	cfg.MinWindowMatches = 1

	// Window is [10:00 today, 06:00 tomorrow] at 20 hours.
	provider := windowProvider(
		"2026-08-23T10:00:00Z", // exactly at window start
		"2026-08-24T06:00:00Z", // exactly at window end
		"2026-08-23T09:59:59Z", // one second early
		"2026-08-24T06:00:01Z", // one second late
	)
	engine, _ := newTestEngine(t, cfg, provider, testNow)

	window := engine.GetFixturesInWindow(context.Background(), 20, true)

	require.Len(t, window.Matches, 2)
	assert.Equal(t, "2026-08-23T10:00:00Z", window.WindowStart)
	assert.Equal(t, "2026-08-24T06:00:00Z", window.WindowEnd)
	assert.Equal(t, 20, window.WindowHours)
}

func TestWindowAutoExtendsWhenTooFewMatches(t *testing.T) {
	provider := windowProvider(
		"2026-08-23T12:00:00Z",
		"2026-08-23T15:00:00Z",
		// Beyond the 20h window but inside the 4h extension.
		"2026-08-24T07:00:00Z",
		"2026-08-24T08:00:00Z",
		"2026-08-24T09:30:00Z",
	)
	engine, _ := newTestEngine(t, nil, provider, testNow)

	window := engine.GetFixturesInWindow(context.Background(), 20, true)

	assert.Len(t, window.Matches, 5)
	assert.Equal(t, 24, window.WindowHours)
	assert.Contains(t, window.Warnings, "Auto-extended window to 24 hours to include more matches")
}

func TestWindowExtensionNotAdoptedWithoutGain(t *testing.T) {
	provider := windowProvider(
		"2026-08-23T12:00:00Z",
		"2026-08-23T15:00:00Z",
	)
	engine, _ := newTestEngine(t, nil, provider, testNow)

	window := engine.GetFixturesInWindow(context.Background(), 20, true)

	assert.Len(t, window.Matches, 2)
	assert.Equal(t, 20, window.WindowHours)
	assert.NotContains(t, window.Warnings, "Auto-extended window to 24 hours to include more matches")
}

func TestWindowExtensionCappedAt48Hours(t *testing.T) {
	provider := windowProvider(
		"2026-08-23T12:00:00Z",
		// 50 hours out; no permissible extension can reach it.
		"2026-08-25T12:00:00Z",
	)
	engine, _ := newTestEngine(t, nil, provider, testNow)

	window := engine.GetFixturesInWindow(context.Background(), 48, true)

	assert.Len(t, window.Matches, 1)
	assert.Equal(t, 48, window.WindowHours)
	assert.Equal(t, "2026-08-25T10:00:00Z", window.WindowEnd)
	assert.NotContains(t, window.Warnings, "Auto-extended window to 52 hours to include more matches")
}

func TestWindowFallsBackToAllCachedWhenEmpty(t *testing.T) {
	// Everything kicks off beyond the window and its extension, but before
	// end of tomorrow.
	provider := windowProvider(
		"2026-08-24T19:00:00Z",
		"2026-08-24T20:00:00Z",
		"2026-08-24T21:00:00Z",
	)
	engine, _ := newTestEngine(t, nil, provider, testNow)

	window := engine.GetFixturesInWindow(context.Background(), 20, true)

	assert.Len(t, window.Matches, 3)
	assert.Contains(t, window.Warnings, "Too few matches in the requested window; showing all cached fixtures through end of tomorrow")
	assert.Equal(t, "2026-08-24T23:59:59Z", window.WindowEnd)
	assert.Equal(t, 20, window.WindowHours)
}

func TestWindowKeepsSparseResultWithoutFallback(t *testing.T) {
	provider := windowProvider(
		"2026-08-23T12:00:00Z",
		// Below the minimum, but the window is not empty; these stay out.
		"2026-08-24T19:00:00Z",
		"2026-08-24T20:00:00Z",
		"2026-08-24T21:00:00Z",
	)
	engine, _ := newTestEngine(t, nil, provider, testNow)

	window := engine.GetFixturesInWindow(context.Background(), 20, true)

	assert.Len(t, window.Matches, 1)
	assert.Equal(t, 20, window.WindowHours)
	assert.NotContains(t, window.Warnings, "Too few matches in the requested window; showing all cached fixtures through end of tomorrow")
}

func TestWindowProvenanceLive(t *testing.T) {
	provider := windowProvider("2026-08-23T12:00:00Z")
	engine, _ := newTestEngine(t, nil, provider, testNow)

	window := engine.GetFixturesInWindow(context.Background(), 20, true)
	assert.Equal(t, models.SourceWindowLive, window.Source)
}

func TestWindowProvenanceCacheWhenLiveDisabled(t *testing.T) {
	provider := windowProvider("2026-08-23T12:00:00Z")
	engine, _ := newTestEngine(t, nil, provider, testNow)

	// Seed the cache with one live pass, then serve with live disabled.
	engine.GetFixturesInWindow(context.Background(), 20, true)
	engine.snapshot = nil

	window := engine.GetFixturesInWindow(context.Background(), 20, false)

	assert.Equal(t, models.SourceWindowCache, window.Source)
	assert.NotEmpty(t, window.Matches)
}

func TestWindowProvenanceLiveEvenWhenEmpty(t *testing.T) {
	// Both dates refresh live and come back with empty slates; provenance
	// reflects the sources consumed, not the match count.
	provider := &fakeProvider{configured: true}
	engine, _ := newTestEngine(t, nil, provider, testNow)

	window := engine.GetFixturesInWindow(context.Background(), 20, true)

	assert.Empty(t, window.Matches)
	assert.Equal(t, models.SourceWindowLive, window.Source)
}

func TestWindowProvenanceNoneWithoutData(t *testing.T) {
	provider := &fakeProvider{configured: false}
	engine, _ := newTestEngine(t, nil, provider, testNow)

	window := engine.GetFixturesInWindow(context.Background(), 20, false)
	assert.Equal(t, models.SourceWindowNone, window.Source)
	assert.Empty(t, window.Matches)
}

func TestFreshSnapshotPreventsRefetch(t *testing.T) {
	provider := windowProvider("2026-08-23T12:00:00Z")
	engine, _ := newTestEngine(t, nil, provider, testNow)

	engine.GetFixturesInWindow(context.Background(), 20, true)
	calls := provider.fixtureCalls
	require.Greater(t, calls, 0)

	engine.GetFixturesInWindow(context.Background(), 20, true)
	assert.Equal(t, calls, provider.fixtureCalls, "fresh snapshot serves from cache")
}

func TestExpiredSnapshotTriggersRefresh(t *testing.T) {
	provider := windowProvider("2026-08-23T12:00:00Z")
	cfg := testConfig()
	cfg.SingleFetchPerDatePerDay = false
	cfg.FixtureCacheRefreshMinutes = 5
	engine, _ := newTestEngine(t, cfg, provider, testNow)

	engine.GetFixturesInWindow(context.Background(), 20, true)
	calls := provider.fixtureCalls

	// Jump past both the snapshot TTL and the per-date refresh interval.
	later := testNow.Add(3 * time.Hour)
	engine.setClock(func() time.Time { return later })

	engine.GetFixturesInWindow(context.Background(), 20, true)
	assert.Greater(t, provider.fixtureCalls, calls)
}

func TestSnapshotExpiryAlignsToUTCDay(t *testing.T) {
	provider := windowProvider("2026-08-23T12:00:00Z")
	nearMidnight := time.Date(2026, 8, 23, 23, 30, 0, 0, time.UTC)
	engine, _ := newTestEngine(t, nil, provider, nearMidnight)

	engine.GetFixturesInWindow(context.Background(), 20, true)

	require.NotNil(t, engine.snapshot)
	assert.Equal(t, "2026-08-24T00:00:00Z", engine.snapshot.ExpiresAt,
		"90 minute TTL is capped at the UTC day boundary")
}

func TestWindowWarmsStandingsOncePerDay(t *testing.T) {
	provider := windowProvider("2026-08-23T12:00:00Z")
	engine, _ := newTestEngine(t, nil, provider, testNow)

	engine.GetFixturesInWindow(context.Background(), 20, true)
	calls := provider.standingsCalls
	assert.Equal(t, len(TargetLeagues), calls)

	engine.GetFixturesInWindow(context.Background(), 20, true)
	assert.Equal(t, calls, provider.standingsCalls, "warm pass runs once per day")
}

func TestWarmDailyCacheReport(t *testing.T) {
	provider := windowProvider("2026-08-23T12:00:00Z", "2026-08-23T18:00:00Z")
	engine, _ := newTestEngine(t, nil, provider, testNow)

	report := engine.WarmDailyCache(context.Background(), true)

	assert.Equal(t, []string{testToday, testTomorrow}, report.RequestedDates)
	assert.Equal(t, models.SourceLive, report.SourceByDate[testToday])
	assert.Equal(t, models.SourceLive, report.SourceByDate[testTomorrow])
	assert.Equal(t, 4, report.FixturesLoaded)
	assert.Equal(t, len(TargetLeagues), report.StandingsLeaguesWarmed)
	assert.Equal(t, report.Budget.Used, 2*len(TargetLeagues)+len(TargetLeagues))
}

func TestWarmDailyCacheWithoutLiveUsesCacheOnly(t *testing.T) {
	provider := windowProvider("2026-08-23T12:00:00Z")
	engine, _ := newTestEngine(t, nil, provider, testNow)

	report := engine.WarmDailyCache(context.Background(), false)

	assert.Equal(t, 0, provider.fixtureCalls)
	assert.Equal(t, 0, report.Budget.Used)
	assert.NotEmpty(t, report.Warnings)
}
