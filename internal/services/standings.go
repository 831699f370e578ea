package services

import (
	"context"
	"errors"

	"github.com/touchline/matchradar/internal/models"
	"github.com/touchline/matchradar/internal/providers"
	"github.com/touchline/matchradar/pkg/logger"
)

// fallbackStandings is a small static table of well-known sides, served when
// live standings cannot be fetched so scoring always has some ranking signal.
var fallbackStandings = map[string]models.TeamStanding{
	"real madrid":      {Rank: 1, Points: 36, Form: "WWWWD"},
	"barcelona":        {Rank: 2, Points: 34, Form: "WWDWW"},
	"man city":         {Rank: 1, Points: 35, Form: "WWWDW"},
	"liverpool":        {Rank: 2, Points: 34, Form: "WDWWW"},
	"arsenal":          {Rank: 3, Points: 33, Form: "WWLWW"},
	"inter":            {Rank: 1, Points: 35, Form: "WWWWW"},
	"juventus":         {Rank: 2, Points: 32, Form: "WDWDW"},
	"bayern munich":    {Rank: 1, Points: 36, Form: "WWWWW"},
	"bayer leverkusen": {Rank: 2, Points: 33, Form: "WWDWW"},
}

// GetStandings returns the ranked table for one league and season, keyed by
// normalized team name. Each (league, season) key is resolved at most once per
// local day; failed or unavailable lookups memoize the static fallback table
// under the key so no second upstream call is spent on it.
func (s *FixtureService) GetStandings(ctx context.Context, leagueID, season int, allowLive bool) map[string]models.TeamStanding {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureCurrentDayLocked()
	return s.getStandingsLocked(ctx, leagueID, season, allowLive)
}

func (s *FixtureService) getStandingsLocked(ctx context.Context, leagueID, season int, allowLive bool) map[string]models.TeamStanding {
	key := standingsKey(leagueID, season)
	if s.standingsDate == s.currentDay {
		if table, ok := s.standings[key]; ok {
			return copyStandings(table)
		}
	}

	_, isTarget := TargetLeagues[leagueID]
	if !isTarget || !s.provider.Configured() {
		return s.memoizeStandingsLocked(key, fallbackStandings)
	}
	if !allowLive {
		// A live-eligible request may still fetch this key later today, so
		// the fallback is served without being memoized.
		return copyStandings(fallbackStandings)
	}
	if !s.ledger.Consume() {
		return s.memoizeStandingsLocked(key, fallbackStandings)
	}

	rows, err := s.provider.FetchStandings(ctx, leagueID, season)
	if err != nil {
		logger.WithLeague(s.logger, leagueID, season).
			WithError(err).Warn("Upstream standings fetch failed; using fallback table")

		var upstreamErr *providers.UpstreamError
		if errors.As(err, &upstreamErr) && upstreamErr.QuotaExceeded {
			s.ledger.LockToLimit()
		}
		return s.memoizeStandingsLocked(key, fallbackStandings)
	}

	table := make(map[string]models.TeamStanding, len(rows))
	logosChanged := false
	for _, row := range rows {
		name := normalizeKey(row.Team.Name)
		if name == "" {
			continue
		}
		table[name] = models.TeamStanding{
			Rank:   row.Rank,
			Points: row.Points,
			Form:   row.Form,
		}
		logosChanged = s.logos.IndexTeam(row.Team.ID, row.Team.Name, row.Team.Logo) || logosChanged
	}
	if len(table) == 0 {
		return s.memoizeStandingsLocked(key, fallbackStandings)
	}

	result := s.memoizeStandingsLocked(key, table)
	s.flushStandingsLocked()
	if logosChanged {
		s.flushLogosLocked()
	}

	logger.WithLeague(s.logger, leagueID, season).
		WithField("teams", len(table)).Info("Standings refreshed from upstream")
	return result
}

// memoizeStandingsLocked stores a table under its key for the rest of the
// local day, resetting the mirror first when it belongs to an earlier day.
func (s *FixtureService) memoizeStandingsLocked(key string, table map[string]models.TeamStanding) map[string]models.TeamStanding {
	if s.standingsDate != s.currentDay {
		s.standings = make(map[string]map[string]models.TeamStanding)
		s.standingsDate = s.currentDay
	}
	s.standings[key] = copyStandings(table)
	return copyStandings(table)
}

func copyStandings(table map[string]models.TeamStanding) map[string]models.TeamStanding {
	copied := make(map[string]models.TeamStanding, len(table))
	for name, row := range table {
		copied[name] = row
	}
	return copied
}
