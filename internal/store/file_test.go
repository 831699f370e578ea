package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	paths := map[string]string{
		NamespaceFixtures:  filepath.Join(dir, "fixtures_cache.json"),
		NamespaceMeta:      filepath.Join(dir, "fixtures_meta.json"),
		NamespaceStandings: filepath.Join(dir, "standings_cache.json"),
		NamespaceLogos:     filepath.Join(dir, "logo_cache.json"),
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	return NewFileStore(paths, filepath.Join(dir, "api_budget.json"), logger), dir
}

func TestConsumeBudgetStaysWithinLimit(t *testing.T) {
	store, _ := newTestFileStore(t)

	allowed := 0
	for i := 0; i < 10; i++ {
		ok, count, err := store.ConsumeBudget("2026-08-23", 5)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, 5)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)

	entry, err := store.LoadBudget("2026-08-23")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 5, entry.Count)
}

func TestConsumeBudgetCountIsMonotonic(t *testing.T) {
	store, _ := newTestFileStore(t)

	previous := 0
	for i := 0; i < 7; i++ {
		_, count, err := store.ConsumeBudget("2026-08-23", 5)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, previous)
		previous = count
	}
}

func TestLockBudgetForcesCountToLimit(t *testing.T) {
	store, _ := newTestFileStore(t)

	_, _, err := store.ConsumeBudget("2026-08-23", 10)
	require.NoError(t, err)

	count, err := store.LockBudget("2026-08-23", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	ok, count, err := store.ConsumeBudget("2026-08-23", 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 10, count)
}

func TestLoadBudgetIgnoresOtherDays(t *testing.T) {
	store, _ := newTestFileStore(t)

	require.NoError(t, store.SaveBudget(BudgetEntry{Date: "2026-08-22", Count: 3, Limit: 25}))

	entry, err := store.LoadBudget("2026-08-23")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// A new day starts from zero even though yesterday's document exists.
	ok, count, err := store.ConsumeBudget("2026-08-23", 25)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, count)
}

func TestLoadMapMergesFallbacksInOrder(t *testing.T) {
	store, dir := newTestFileStore(t)

	seedPath := filepath.Join(dir, "seed.json")
	livePath := filepath.Join(dir, "live.json")
	require.NoError(t, os.WriteFile(seedPath, []byte(`{"a": 1, "b": 2}`), 0o644))
	require.NoError(t, os.WriteFile(livePath, []byte(`{"b": 3, "c": 4}`), 0o644))

	doc, err := store.LoadMap(NamespaceFixtures, []string{seedPath, livePath})
	require.NoError(t, err)

	assert.Len(t, doc, 3)
	assert.JSONEq(t, "1", string(doc["a"]))
	assert.JSONEq(t, "3", string(doc["b"]), "later documents win on collisions")
	assert.JSONEq(t, "4", string(doc["c"]))
}

func TestLoadMapSkipsBrokenFallback(t *testing.T) {
	store, dir := newTestFileStore(t)

	brokenPath := filepath.Join(dir, "broken.json")
	goodPath := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(brokenPath, []byte(`{not json`), 0o644))
	require.NoError(t, os.WriteFile(goodPath, []byte(`{"x": true}`), 0o644))

	doc, err := store.LoadMap(NamespaceFixtures, []string{brokenPath, goodPath})
	require.NoError(t, err)
	assert.Len(t, doc, 1)
}

func TestSaveMapRoundTrips(t *testing.T) {
	store, dir := newTestFileStore(t)

	payload := map[string]any{"2026-08-23": []string{"match"}}
	require.NoError(t, store.SaveMap(NamespaceFixtures, payload))

	doc, err := store.LoadMap(NamespaceFixtures, []string{filepath.Join(dir, "fixtures_cache.json")})
	require.NoError(t, err)

	var loaded []string
	require.NoError(t, json.Unmarshal(doc["2026-08-23"], &loaded))
	assert.Equal(t, []string{"match"}, loaded)
}

func TestSaveMapRejectsUnknownNamespace(t *testing.T) {
	store, _ := newTestFileStore(t)
	assert.Error(t, store.SaveMap("unknown_namespace", map[string]any{}))
}
