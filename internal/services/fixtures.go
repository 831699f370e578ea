package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/touchline/matchradar/internal/models"
	"github.com/touchline/matchradar/internal/providers"
	"github.com/touchline/matchradar/pkg/logger"
)

// Warning texts reused across payload builders.
const (
	warnBudgetExhausted = "Daily API call budget exhausted; remaining leagues were not fetched"
	warnQuotaExceeded   = "Upstream daily request limit reached; live fetching is locked for the rest of the day"
	warnNoCachedData    = "No cached fixtures available for this date"
)

// GetFixturesByDate returns the fixtures for one YYYY-MM-DD date, refreshing
// from the upstream only when the refresh policy allows it.
func (s *FixtureService) GetFixturesByDate(ctx context.Context, date string, allowLive bool) models.FixturePayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureCurrentDayLocked()
	return s.getFixturesByDateLocked(ctx, date, allowLive)
}

func (s *FixtureService) getFixturesByDateLocked(ctx context.Context, date string, allowLive bool) models.FixturePayload {
	cached, hasEntry := s.fixturesCache[date]
	meta := s.metaFor(date)

	decision := s.policy.Decide(RefreshInput{
		Date:             date,
		Now:              s.now(),
		HasCache:         hasEntry && len(cached) > 0,
		Meta:             meta,
		Forced:           s.forceRefresh[date],
		APIKeyConfigured: s.provider.Configured(),
		AllowLive:        allowLive,
		RemainingBudget:  s.ledger.Remaining(),
	})

	if !decision.Fetch {
		return s.buildCachedPayloadLocked(date, decision.Reason)
	}
	if decision.ByForce {
		delete(s.forceRefresh, date)
	}
	return s.fetchLiveFixturesLocked(ctx, date)
}

func (s *FixtureService) metaFor(date string) *models.FixtureMeta {
	if meta, ok := s.fixturesMeta[date]; ok {
		copied := meta
		return &copied
	}
	return nil
}

// fetchLiveFixturesLocked pulls every target league for one date, spending
// one budget unit per league call. A quota-exceeded signal locks the ledger
// and aborts the remaining leagues immediately.
func (s *FixtureService) fetchLiveFixturesLocked(ctx context.Context, date string) models.FixturePayload {
	var (
		fetched   = make(map[int][]models.Match)
		succeeded []int
		issues    []string
		warnings  []string
	)

	leagueIDs := TargetLeagueIDs()
	for _, leagueID := range leagueIDs {
		if !s.ledger.Consume() {
			warnings = append(warnings, warnBudgetExhausted)
			break
		}

		matches, err := s.provider.FetchFixtures(ctx, date, leagueID)
		if err != nil {
			issues = append(issues, fmt.Sprintf("league %d (%s): %v", leagueID, TargetLeagues[leagueID], err))
			logger.WithDate(s.logger, date).WithField("league", leagueID).
				WithError(err).Warn("Upstream fixtures fetch failed")

			var upstreamErr *providers.UpstreamError
			if errors.As(err, &upstreamErr) && upstreamErr.QuotaExceeded {
				s.ledger.LockToLimit()
				warnings = append(warnings, warnQuotaExceeded)
				break
			}
			continue
		}

		fetched[leagueID] = matches
		succeeded = append(succeeded, leagueID)
	}

	attempted := s.now().UTC().Format(time.RFC3339)

	switch {
	case len(succeeded) == len(leagueIDs):
		return s.applyLiveResultLocked(date, fetched, nil, attempted, warnings, issues, false)
	case len(succeeded) > 0:
		return s.applyLiveResultLocked(date, fetched, succeeded, attempted, warnings, issues, true)
	default:
		return s.applyLiveFailureLocked(date, attempted, warnings, issues)
	}
}

// applyLiveResultLocked merges a full or partial live fetch into the cache
// and records the outcome meta. On a partial result only the leagues that
// succeeded are replaced; cached rows for failed leagues survive.
func (s *FixtureService) applyLiveResultLocked(date string, fetched map[int][]models.Match, succeededLeagues []int, attempted string, warnings, issues []string, partial bool) models.FixturePayload {
	var merged []models.Match
	if partial {
		replaced := make(map[int]bool, len(succeededLeagues))
		for _, leagueID := range succeededLeagues {
			replaced[leagueID] = true
		}
		for _, match := range s.fixturesCache[date] {
			if !replaced[match.League.ID] {
				merged = append(merged, match)
			}
		}
	}
	for _, leagueID := range TargetLeagueIDs() {
		merged = append(merged, fetched[leagueID]...)
	}

	merged = s.filterTargetLeagues(merged)
	merged = dedupeMatches(merged)
	if s.logos.IndexFrom(merged) {
		s.flushLogosLocked()
	}
	s.logos.Enrich(merged)

	status := models.StatusSuccess
	source := models.SourceLive
	if partial {
		status = models.StatusSuccessPartial
		source = models.SourceLivePartial
		warnings = append(warnings, "Some leagues failed to refresh; cached rows were kept for them")
	} else if len(merged) == 0 {
		status = models.StatusEmptySuccess
	}

	s.fixturesCache[date] = merged
	s.fixturesMeta[date] = models.FixtureMeta{
		Status:        status,
		Source:        source,
		MatchCount:    len(merged),
		UpdatedAt:     attempted,
		LastAttemptAt: attempted,
		LastError:     joinIssues(issues),
	}
	s.flushFixturesLocked()
	s.flushMetaLocked()

	logger.WithDate(s.logger, date).WithFields(logrus.Fields{
		"status":  status,
		"matches": len(merged),
	}).Info("Fixtures refreshed from upstream")

	return models.FixturePayload{
		Matches:        copyMatches(merged),
		Source:         source,
		Warnings:       models.DedupeStrings(warnings),
		UpstreamIssues: models.DedupeStrings(issues),
	}
}

// applyLiveFailureLocked records a fully failed refresh and serves whatever
// the cache holds for the date.
func (s *FixtureService) applyLiveFailureLocked(date, attempted string, warnings, issues []string) models.FixturePayload {
	errorText := joinIssues(issues)
	if errorText == "" {
		errorText = warnBudgetExhausted
	}

	meta := models.FixtureMeta{
		Status:        models.StatusError,
		Source:        models.SourceLiveError,
		MatchCount:    len(s.fixturesCache[date]),
		UpdatedAt:     attempted,
		LastAttemptAt: attempted,
		LastError:     errorText,
	}
	if existing, ok := s.fixturesMeta[date]; ok && existing.UpdatedAt != "" {
		// A failed attempt must not make the cached rows look fresher.
		meta.UpdatedAt = existing.UpdatedAt
	}
	s.fixturesMeta[date] = meta
	s.flushMetaLocked()

	matches := copyMatches(s.fixturesCache[date])
	s.logos.Enrich(matches)
	warnings = append(warnings, "Live refresh failed; serving cached fixtures")

	return models.FixturePayload{
		Matches:        matches,
		Source:         models.SourceLiveError,
		Cached:         len(matches) > 0,
		Errors:         errorText,
		Warnings:       models.DedupeStrings(warnings),
		UpstreamIssues: models.DedupeStrings(issues),
	}
}

// buildCachedPayloadLocked serves a date from the cache with the policy
// reason attached, without touching the budget.
func (s *FixtureService) buildCachedPayloadLocked(date, reason string) models.FixturePayload {
	matches := copyMatches(s.fixturesCache[date])
	s.logos.Enrich(matches)

	meta, hasMeta := s.fixturesMeta[date]
	warnings := []string{}
	if reason != "" {
		warnings = append(warnings, reason)
	}
	if hasMeta && meta.LastError != "" {
		warnings = append(warnings, "Last refresh attempt failed: "+meta.LastError)
	}

	if len(matches) == 0 && !hasMeta {
		return models.FixturePayload{
			Matches:     []models.Match{},
			Source:      models.SourceNone,
			CacheReason: reason,
			Warnings:    models.DedupeStrings(append(warnings, warnNoCachedData)),
		}
	}

	source := models.SourceCache
	if date == s.now().Format("2006-01-02") {
		source = models.SourceCacheToday
	}
	return models.FixturePayload{
		Matches:     matches,
		Source:      source,
		Cached:      true,
		CacheReason: reason,
		Warnings:    models.DedupeStrings(warnings),
	}
}

// filterTargetLeagues drops rows outside the target competitions when
// filtering is enabled.
func (s *FixtureService) filterTargetLeagues(matches []models.Match) []models.Match {
	if !s.cfg.FilterTargetLeagues {
		return matches
	}
	filtered := matches[:0]
	for _, match := range matches {
		if _, ok := TargetLeagues[match.League.ID]; ok {
			filtered = append(filtered, match)
		}
	}
	return filtered
}

// dedupeMatches drops repeated fixtures, keeping the first occurrence.
func dedupeMatches(matches []models.Match) []models.Match {
	seen := make(map[string]struct{}, len(matches))
	deduped := make([]models.Match, 0, len(matches))
	for _, match := range matches {
		key := match.DedupeKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, match)
	}
	return deduped
}

func copyMatches(matches []models.Match) []models.Match {
	copied := make([]models.Match, len(matches))
	copy(copied, matches)
	return copied
}

func joinIssues(issues []string) string {
	deduped := models.DedupeStrings(issues)
	if len(deduped) == 0 {
		return ""
	}
	text := deduped[0]
	for _, issue := range deduped[1:] {
		text += "; " + issue
	}
	return text
}
