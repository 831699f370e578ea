package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/touchline/matchradar/internal/models"
	"github.com/touchline/matchradar/internal/providers"
	"github.com/touchline/matchradar/internal/store"
	"github.com/touchline/matchradar/pkg/config"
	"github.com/touchline/matchradar/pkg/logger"
)

// snapshotMetaKey is a reserved key inside the fixtures meta namespace that
// holds the rolling-window snapshot record. Date keys are YYYY-MM-DD, so the
// key can never collide.
const snapshotMetaKey = "__window_snapshot__"

// TargetLeagues are the competitions the engine fetches and serves, keyed by
// the provider's league id.
var TargetLeagues = map[int]string{
	2:   "UEFA Champions League",
	39:  "Premier League",
	140: "La Liga",
	78:  "Bundesliga",
	135: "Serie A",
}

// TargetLeagueIDs returns the target league ids in ascending order so fetch
// loops and budget consumption stay deterministic.
func TargetLeagueIDs() []int {
	ids := make([]int, 0, len(TargetLeagues))
	for id := range TargetLeagues {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// seasonForDate maps a calendar date to the European season label: the
// season starting in July of year Y is labeled Y.
func seasonForDate(t time.Time) int {
	if t.Month() >= time.July {
		return t.Year()
	}
	return t.Year() - 1
}

// Provider is the upstream fixture/standings source the engine consumes.
type Provider interface {
	Configured() bool
	FetchFixtures(ctx context.Context, date string, leagueID int) ([]models.Match, error)
	FetchStandings(ctx context.Context, leagueID, season int) ([]providers.StandingRow, error)
}

// FixtureService is the caching and quota-coordination engine. It owns the
// in-memory mirrors of every persisted namespace and the daily call ledger.
// One mutex guards all mirrors; provider calls happen while holding it, which
// serializes upstream traffic by design and keeps the per-date meta records
// consistent with the cache they describe.
type FixtureService struct {
	mu       sync.Mutex
	cfg      *config.Config
	store    store.Store
	provider Provider
	ledger   *BudgetLedger
	policy   RefreshPolicy
	logger   *logrus.Entry
	now      func() time.Time

	fixturesCache map[string][]models.Match
	fixturesMeta  map[string]models.FixtureMeta
	snapshot      *models.SnapshotMeta
	standings     map[string]map[string]models.TeamStanding
	standingsDate string
	logos         *LogoIndex

	// forceRefresh marks dates whose next live-eligible request bypasses the
	// single-fetch and interval rules once.
	forceRefresh map[string]bool
	// standingsWarmed gates the once-per-day standings warm pass.
	standingsWarmed bool
	currentDay      string
}

// NewFixtureService wires the engine from its collaborators.
func NewFixtureService(cfg *config.Config, st store.Store, provider Provider, ledger *BudgetLedger, log *logrus.Logger) *FixtureService {
	s := &FixtureService{
		cfg:      cfg,
		store:    st,
		provider: provider,
		ledger:   ledger,
		policy: RefreshPolicy{
			CacheRefreshMinutes:      cfg.FixtureCacheRefreshMinutes,
			ErrorRetryMinutes:        cfg.FixtureErrorRetryMinutes,
			SingleFetchPerDatePerDay: cfg.SingleFetchPerDatePerDay,
			CallsPerFetch:            len(TargetLeagues),
		},
		logger:        logger.WithComponent(log, "fixtures"),
		now:           time.Now,
		fixturesCache: make(map[string][]models.Match),
		fixturesMeta:  make(map[string]models.FixtureMeta),
		standings:     make(map[string]map[string]models.TeamStanding),
		logos:         NewLogoIndex(),
		forceRefresh:  make(map[string]bool),
	}
	s.currentDay = s.now().Format("2006-01-02")
	return s
}

// Load hydrates every mirror from the backend. Seed documents are merged
// beneath the live cache so a fresh deployment starts with bundled fixtures.
// Load never fails hard: a broken namespace starts empty and is logged.
func (s *FixtureService) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadFixturesLocked()
	s.loadMetaLocked()
	s.loadStandingsLocked()
	s.loadLogosLocked()
	s.markFreshDayTargetsLocked()

	s.logger.WithFields(logrus.Fields{
		"cached_dates":     len(s.fixturesCache),
		"meta_entries":     len(s.fixturesMeta),
		"standings_tables": len(s.standings),
	}).Info("Fixture caches loaded")
}

func (s *FixtureService) loadFixturesLocked() {
	doc, err := s.store.LoadMap(store.NamespaceFixtures, []string{s.cfg.FixturesSeedPath, s.cfg.FixturesCachePath})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load fixtures cache; starting empty")
		return
	}
	for date, raw := range doc {
		var matches []models.Match
		if err := json.Unmarshal(raw, &matches); err != nil {
			s.logger.WithField("date", date).WithError(err).Warn("Dropping malformed cached fixtures entry")
			continue
		}
		s.fixturesCache[date] = matches
	}
}

func (s *FixtureService) loadMetaLocked() {
	doc, err := s.store.LoadMap(store.NamespaceMeta, []string{s.cfg.FixturesMetaPath})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load fixtures meta; starting empty")
		return
	}
	for key, raw := range doc {
		if key == snapshotMetaKey {
			var snap models.SnapshotMeta
			if err := json.Unmarshal(raw, &snap); err == nil && snap.UpdatedAt != "" {
				s.snapshot = &snap
			}
			continue
		}
		var meta models.FixtureMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		s.fixturesMeta[key] = meta
	}
}

// standingsDocument is the persisted shape of the standings namespace.
type standingsDocument struct {
	CacheDate string                                      `json:"_cache_date"`
	Leagues   map[string]map[string]models.TeamStanding   `json:"leagues"`
}

func (s *FixtureService) loadStandingsLocked() {
	doc, err := s.store.LoadMap(store.NamespaceStandings, []string{s.cfg.StandingsCachePath})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load standings cache; starting empty")
		return
	}

	var parsed standingsDocument
	if raw, ok := doc["_cache_date"]; ok {
		_ = json.Unmarshal(raw, &parsed.CacheDate)
	}
	if raw, ok := doc["leagues"]; ok {
		_ = json.Unmarshal(raw, &parsed.Leagues)
	}

	// Standings are only trusted for the day they were fetched.
	if parsed.CacheDate != s.currentDay || parsed.Leagues == nil {
		return
	}
	s.standingsDate = parsed.CacheDate
	s.standings = parsed.Leagues
}

func (s *FixtureService) loadLogosLocked() {
	doc, err := s.store.LoadMap(store.NamespaceLogos, []string{s.cfg.LogoCachePath})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load logo index; starting empty")
		return
	}
	buckets := make(map[string]map[string]string, len(doc))
	for bucket, raw := range doc {
		var entries map[string]string
		if err := json.Unmarshal(raw, &entries); err != nil {
			continue
		}
		buckets[bucket] = entries
	}
	s.logos.Load(buckets)
}

// markFreshDayTargetsLocked force-refreshes today and tomorrow when no budget
// entry exists for the local day yet, so the first request after a day with
// zero traffic re-pulls the window dates.
func (s *FixtureService) markFreshDayTargetsLocked() {
	entry, err := s.store.LoadBudget(s.currentDay)
	if err != nil || entry != nil {
		return
	}
	now := s.now()
	s.forceRefresh[now.Format("2006-01-02")] = true
	s.forceRefresh[now.AddDate(0, 0, 1).Format("2006-01-02")] = true
}

// ensureCurrentDayLocked handles local-day rollover: standings go stale,
// today and tomorrow become force-refresh targets and the daily standings
// warm pass re-arms.
func (s *FixtureService) ensureCurrentDayLocked() {
	today := s.now().Format("2006-01-02")
	if s.currentDay == today {
		return
	}
	s.logger.WithFields(logrus.Fields{"from": s.currentDay, "to": today}).Info("Local day rolled over; resetting daily state")

	s.currentDay = today
	s.standings = make(map[string]map[string]models.TeamStanding)
	s.standingsDate = ""
	s.standingsWarmed = false
	s.forceRefresh[today] = true
	s.forceRefresh[s.now().AddDate(0, 0, 1).Format("2006-01-02")] = true
}

func (s *FixtureService) flushFixturesLocked() {
	if err := s.store.SaveMap(store.NamespaceFixtures, s.fixturesCache); err != nil {
		s.logger.WithError(err).Warn("Failed to persist fixtures cache")
	}
}

func (s *FixtureService) flushMetaLocked() {
	doc := make(map[string]any, len(s.fixturesMeta)+1)
	for key, meta := range s.fixturesMeta {
		doc[key] = meta
	}
	if s.snapshot != nil {
		doc[snapshotMetaKey] = *s.snapshot
	}
	if err := s.store.SaveMap(store.NamespaceMeta, doc); err != nil {
		s.logger.WithError(err).Warn("Failed to persist fixtures meta")
	}
}

func (s *FixtureService) flushStandingsLocked() {
	doc := standingsDocument{CacheDate: s.standingsDate, Leagues: s.standings}
	if err := s.store.SaveMap(store.NamespaceStandings, doc); err != nil {
		s.logger.WithError(err).Warn("Failed to persist standings cache")
	}
}

func (s *FixtureService) flushLogosLocked() {
	if err := s.store.SaveMap(store.NamespaceLogos, s.logos.Snapshot()); err != nil {
		s.logger.WithError(err).Warn("Failed to persist logo index")
	}
}

// Budget exposes the ledger's current status for the HTTP surface.
func (s *FixtureService) Budget() models.BudgetStatus {
	return s.ledger.Status()
}

// BackendShared reports whether the persistence backend coordinates budget
// consumption across processes.
func (s *FixtureService) BackendShared() bool {
	return s.store.Shared()
}

// standingsKey identifies one cached table.
func standingsKey(leagueID, season int) string {
	return fmt.Sprintf("%d:%d", leagueID, season)
}

// setClock overrides the wall clock for tests.
func (s *FixtureService) setClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.ensureCurrentDayLocked()
}
