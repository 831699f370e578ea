package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/touchline/matchradar/internal/models"
	"github.com/touchline/matchradar/internal/providers"
	"github.com/touchline/matchradar/internal/store"
	"github.com/touchline/matchradar/pkg/config"
)

// memStore is an in-memory store.Store used across the engine tests.
type memStore struct {
	mu          sync.Mutex
	namespaces  map[string]json.RawMessage
	budgets     map[string]*store.BudgetEntry
	failConsume bool
}

func newMemStore() *memStore {
	return &memStore{
		namespaces: make(map[string]json.RawMessage),
		budgets:    make(map[string]*store.BudgetEntry),
	}
}

func (m *memStore) Shared() bool { return false }

func (m *memStore) LoadMap(namespace string, fallbackPaths []string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.namespaces[namespace]
	if !ok {
		return map[string]json.RawMessage{}, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *memStore) SaveMap(namespace string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.namespaces[namespace] = data
	return nil
}

func (m *memStore) LoadBudget(date string) (*store.BudgetEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.budgets[date]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (m *memStore) SaveBudget(entry store.BudgetEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[entry.Date] = &entry
	return nil
}

func (m *memStore) ConsumeBudget(date string, limit int) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failConsume {
		return false, limit, errors.New("backend unavailable")
	}

	entry, ok := m.budgets[date]
	if !ok {
		entry = &store.BudgetEntry{Date: date, Limit: limit}
		m.budgets[date] = entry
	}
	if entry.Count >= limit {
		return false, entry.Count, nil
	}
	entry.Count++
	entry.Limit = limit
	return true, entry.Count, nil
}

func (m *memStore) LockBudget(date string, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[date] = &store.BudgetEntry{Date: date, Count: limit, Limit: limit}
	return limit, nil
}

// fakeProvider scripts upstream behavior per league.
type fakeProvider struct {
	configured     bool
	fixtureCalls   int
	standingsCalls int

	// fixturesByLeague returns the scripted result for one call.
	fixturesByLeague  map[int][]models.Match
	errorsByLeague    map[int]error
	standingsRows     []providers.StandingRow
	standingsErr      error
	standingsFetched  []int
	fixturesRequested []string
}

func (p *fakeProvider) Configured() bool { return p.configured }

func (p *fakeProvider) FetchFixtures(_ context.Context, date string, leagueID int) ([]models.Match, error) {
	p.fixtureCalls++
	p.fixturesRequested = append(p.fixturesRequested, fmt.Sprintf("%s:%d", date, leagueID))
	if err, ok := p.errorsByLeague[leagueID]; ok {
		return nil, err
	}
	return p.fixturesByLeague[leagueID], nil
}

func (p *fakeProvider) FetchStandings(_ context.Context, leagueID, _ int) ([]providers.StandingRow, error) {
	p.standingsCalls++
	p.standingsFetched = append(p.standingsFetched, leagueID)
	if p.standingsErr != nil {
		return nil, p.standingsErr
	}
	return p.standingsRows, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultWindowHours:         20,
		MinWindowMatches:           4,
		WindowExtensionHours:       4,
		SingleFetchPerDatePerDay:   true,
		MaxDailyAPICalls:           25,
		FixtureCacheRefreshMinutes: 90,
		FixtureErrorRetryMinutes:   30,
		FilterTargetLeagues:        true,
		LiveFetchOnRequest:         false,
		SnapshotTTLMinutes:         90,
		SnapshotErrorTTLMinutes:    20,
		SnapshotAlignToUTCDay:      true,
	}
}

// newTestEngine wires an engine against the in-memory store with a frozen
// clock.
func newTestEngine(t *testing.T, cfg *config.Config, provider *fakeProvider, at time.Time) (*FixtureService, *memStore) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	st := newMemStore()
	logger := quietLogger()
	ledger := NewBudgetLedger(st, cfg.MaxDailyAPICalls, logger)
	ledger.setClock(func() time.Time { return at })

	engine := NewFixtureService(cfg, st, provider, ledger, logger)
	engine.setClock(func() time.Time { return at })
	engine.Load()
	// Load marks today and tomorrow for a forced first refresh on a fresh
	// budget day; tests start from a neutral state unless they opt in.
	engine.forceRefresh = make(map[string]bool)
	return engine, st
}

func leagueMatch(id int64, leagueID int, home, away, kickoff string) models.Match {
	fixtureID := id
	return models.Match{
		Fixture: models.Fixture{ID: &fixtureID, Date: kickoff},
		League:  models.League{ID: leagueID, Name: TargetLeagues[leagueID], Season: 2026},
		Teams: models.Teams{
			Home: models.Team{Name: home},
			Away: models.Team{Name: away},
		},
	}
}

func requireSources(t *testing.T, payload models.FixturePayload, want string) {
	t.Helper()
	require.Equal(t, want, payload.Source)
}
