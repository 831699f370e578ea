package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/touchline/matchradar/internal/models"
)

// maxWindowHours caps the window, extension included.
const maxWindowHours = 48

// GetFixturesInWindow returns the matches kicking off within the next
// windowHours, composed from the rolling today+tomorrow snapshot. The window
// auto-extends when too few matches land inside it, and when it stays empty
// falls back to every cached fixture through the end of tomorrow.
func (s *FixtureService) GetFixturesInWindow(ctx context.Context, windowHours int, allowLive bool) models.WindowPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureCurrentDayLocked()
	if windowHours <= 0 {
		windowHours = s.cfg.DefaultWindowHours
	}

	now := s.now()
	dates := []string{
		now.Format("2006-01-02"),
		now.AddDate(0, 0, 1).Format("2006-01-02"),
	}

	refreshed := s.ensureWindowSnapshotLocked(ctx, allowLive, dates)

	payloads := make(map[string]models.FixturePayload, len(dates))
	for _, date := range dates {
		if payload, ok := refreshed[date]; ok {
			payloads[date] = payload
			continue
		}
		payloads[date] = s.getFixturesByDateLocked(ctx, date, false)
	}

	s.warmTargetStandingsOnceLocked(ctx, allowLive)

	var (
		pool     []models.Match
		warnings []string
		issues   []string
	)
	for _, date := range dates {
		payload := payloads[date]
		pool = append(pool, payload.Matches...)
		warnings = append(warnings, payload.Warnings...)
		issues = append(issues, payload.UpstreamIssues...)
	}
	pool = s.filterTargetLeagues(pool)
	pool = dedupeMatches(pool)
	s.logos.Enrich(pool)

	windowStart := now.UTC()
	windowEnd := windowStart.Add(time.Duration(windowHours) * time.Hour)
	selected := matchesWithin(pool, windowStart, windowEnd)

	effectiveHours := windowHours
	if len(selected) < s.cfg.MinWindowMatches && s.cfg.WindowExtensionHours > 0 {
		extendedHours := windowHours + s.cfg.WindowExtensionHours
		if extendedHours > maxWindowHours {
			extendedHours = maxWindowHours
		}
		if extendedHours > windowHours {
			extendedEnd := windowStart.Add(time.Duration(extendedHours) * time.Hour)
			extended := matchesWithin(pool, windowStart, extendedEnd)
			if len(extended) > len(selected) {
				selected = extended
				windowEnd = extendedEnd
				effectiveHours = extendedHours
				warnings = append(warnings, fmt.Sprintf("Auto-extended window to %d hours to include more matches", extendedHours))
			}
		}
	}

	if len(selected) == 0 {
		fallbackEnd := endOfTomorrowUTC(now)
		fallback := matchesWithin(s.allCachedMatchesLocked(), windowStart, fallbackEnd)
		fallback = s.filterTargetLeagues(fallback)
		fallback = dedupeMatches(fallback)
		if len(fallback) > 0 {
			s.logos.Enrich(fallback)
			selected = fallback
			windowEnd = fallbackEnd
			warnings = append(warnings, "Too few matches in the requested window; showing all cached fixtures through end of tomorrow")
		}
	}

	source := windowSource(payloads)

	s.logger.WithFields(logrus.Fields{
		"window_hours": effectiveHours,
		"matches":      len(selected),
		"source":       source,
	}).Info("Window fixtures composed")

	return models.WindowPayload{
		FixturePayload: models.FixturePayload{
			Matches:        selected,
			Source:         source,
			Warnings:       models.DedupeStrings(warnings),
			UpstreamIssues: models.DedupeStrings(issues),
		},
		WindowStart: windowStart.Format(time.RFC3339),
		WindowEnd:   windowEnd.Format(time.RFC3339),
		WindowHours: effectiveHours,
	}
}

// ensureWindowSnapshotLocked refreshes the today+tomorrow snapshot when it is
// missing or expired and live refresh is allowed. It returns the per-date
// payloads of a refresh it performed, or nil when the cached snapshot stands.
func (s *FixtureService) ensureWindowSnapshotLocked(ctx context.Context, allowLive bool, dates []string) map[string]models.FixturePayload {
	if s.snapshotFreshLocked() || !allowLive {
		return nil
	}

	payloads := make(map[string]models.FixturePayload, len(dates))
	status := models.StatusSuccess
	var lastError string
	for _, date := range dates {
		payload := s.getFixturesByDateLocked(ctx, date, true)
		payloads[date] = payload

		switch {
		case payload.Source == models.SourceLiveError:
			status = models.StatusError
			if payload.Errors != "" {
				lastError = payload.Errors
			}
		case payload.Source == models.SourceLivePartial && status != models.StatusError:
			status = models.StatusSuccessPartial
		}
	}

	now := s.now().UTC()
	ttl := time.Duration(s.cfg.SnapshotTTLMinutes) * time.Minute
	if status == models.StatusError {
		ttl = time.Duration(s.cfg.SnapshotErrorTTLMinutes) * time.Minute
	}
	expires := now.Add(ttl)
	if status != models.StatusError && s.cfg.SnapshotAlignToUTCDay {
		// A successful snapshot never outlives the UTC day it covers.
		if dayEnd := startOfNextUTCDay(now); dayEnd.Before(expires) {
			expires = dayEnd
		}
	}

	s.snapshot = &models.SnapshotMeta{
		Status:    status,
		UpdatedAt: now.Format(time.RFC3339),
		ExpiresAt: expires.Format(time.RFC3339),
		LastError: lastError,
	}
	s.flushMetaLocked()

	s.logger.WithFields(logrus.Fields{
		"status":     status,
		"expires_at": s.snapshot.ExpiresAt,
	}).Info("Window snapshot refreshed")
	return payloads
}

func (s *FixtureService) snapshotFreshLocked() bool {
	if s.snapshot == nil {
		return false
	}
	expires, ok := models.ParseISOTime(s.snapshot.ExpiresAt)
	if !ok {
		return false
	}
	return s.now().UTC().Before(expires)
}

// warmTargetStandingsOnceLocked fetches every target league's table once per
// local day so scoring sees rankings without per-request upstream calls.
func (s *FixtureService) warmTargetStandingsOnceLocked(ctx context.Context, allowLive bool) int {
	if s.standingsWarmed {
		return 0
	}
	s.standingsWarmed = true
	if !allowLive || !s.provider.Configured() {
		return 0
	}

	season := seasonForDate(s.now())
	warmed := 0
	for _, leagueID := range TargetLeagueIDs() {
		key := standingsKey(leagueID, season)
		if s.standingsDate == s.currentDay {
			if _, ok := s.standings[key]; ok {
				continue
			}
		}
		table := s.getStandingsLocked(ctx, leagueID, season, true)
		if len(table) > 0 {
			warmed++
		}
	}
	return warmed
}

// WarmDailyCache force-refreshes today and tomorrow and warms the target
// league standings. Intended for the scheduled warm job and the one-shot CLI.
func (s *FixtureService) WarmDailyCache(ctx context.Context, allowLive bool) models.WarmReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureCurrentDayLocked()
	now := s.now()
	dates := []string{
		now.Format("2006-01-02"),
		now.AddDate(0, 0, 1).Format("2006-01-02"),
	}

	report := models.WarmReport{
		RequestedDates: dates,
		SourceByDate:   make(map[string]string, len(dates)),
		Warnings:       []string{},
	}

	for _, date := range dates {
		s.forceRefresh[date] = true
		payload := s.getFixturesByDateLocked(ctx, date, allowLive)
		report.SourceByDate[date] = payload.Source
		report.FixturesLoaded += len(payload.Matches)
		report.Warnings = append(report.Warnings, payload.Warnings...)
	}

	s.standingsWarmed = false
	report.StandingsLeaguesWarmed = s.warmTargetStandingsOnceLocked(ctx, allowLive)

	report.Warnings = models.DedupeStrings(report.Warnings)
	report.Budget = s.ledger.Status()

	s.logger.WithFields(logrus.Fields{
		"fixtures_loaded":  report.FixturesLoaded,
		"standings_warmed": report.StandingsLeaguesWarmed,
	}).Info("Daily cache warm completed")
	return report
}

func (s *FixtureService) allCachedMatchesLocked() []models.Match {
	var all []models.Match
	for _, matches := range s.fixturesCache {
		all = append(all, matches...)
	}
	return all
}

// matchesWithin keeps matches whose kickoff falls inside [start, end],
// boundaries inclusive. Rows without a parseable kickoff are dropped.
func matchesWithin(matches []models.Match, start, end time.Time) []models.Match {
	selected := make([]models.Match, 0, len(matches))
	for _, match := range matches {
		kickoff, ok := match.KickoffUTC()
		if !ok {
			continue
		}
		if kickoff.Before(start) || kickoff.After(end) {
			continue
		}
		selected = append(selected, match)
	}
	return selected
}

// windowSource derives the window provenance tag from the per-date payload
// sources alone. Dates that yielded no data at all count toward neither
// bucket, so an empty cache reports "window_none" even when the window itself
// is empty for other reasons.
func windowSource(payloads map[string]models.FixturePayload) string {
	live, cached := 0, 0
	for _, payload := range payloads {
		switch {
		case payload.Source == models.SourceNone || payload.Source == "":
		case strings.HasPrefix(payload.Source, "live") && payload.Source != models.SourceLiveError:
			live++
		default:
			cached++
		}
	}
	switch {
	case live > 0 && cached == 0:
		return models.SourceWindowLive
	case live > 0:
		return models.SourceWindowPartial
	case cached > 0:
		return models.SourceWindowCache
	default:
		return models.SourceWindowNone
	}
}

func endOfTomorrowUTC(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 2).Add(-time.Second)
}

func startOfNextUTCDay(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
