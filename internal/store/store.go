// Package store provides the persistence backend for cached maps and the
// daily upstream-call budget ledger. Two implementations share one contract:
// a local file-backed store and a shared Postgres store. Callers depend only
// on the Store interface and never see which backend is active beyond the
// Shared flag.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Namespaces of the cached map documents.
const (
	NamespaceFixtures  = "fixtures_cache"
	NamespaceMeta      = "fixtures_meta"
	NamespaceStandings = "standings_cache"
	NamespaceLogos     = "logo_cache"
)

// BudgetEntry is the persisted shape of one calendar day's call budget.
type BudgetEntry struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Limit int    `json:"max_daily_api_calls"`
}

// Store is the persistence contract shared by the file and database backends.
type Store interface {
	// LoadMap returns the document stored under namespace. Fallback paths
	// are merged in (in order) when the primary source is empty.
	LoadMap(namespace string, fallbackPaths []string) (map[string]json.RawMessage, error)

	// SaveMap replaces the document stored under namespace wholesale.
	SaveMap(namespace string, payload any) error

	// LoadBudget returns the entry for the given calendar day, or nil when
	// no entry exists for that day.
	LoadBudget(date string) (*BudgetEntry, error)

	// SaveBudget replaces the day's entry wholesale.
	SaveBudget(entry BudgetEntry) error

	// ConsumeBudget atomically increments the day's count when count < limit.
	// It reports whether the increment happened and the resulting count.
	ConsumeBudget(date string, limit int) (bool, int, error)

	// LockBudget force-sets the day's count to the limit and returns the
	// resulting count. Used when the upstream signals quota exhaustion.
	LockBudget(date string, limit int) (int, error)

	// Shared reports whether the backend is visible to other processes with
	// atomic budget consumption.
	Shared() bool
}

func readJSONDocument(path string) (map[string]json.RawMessage, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("malformed JSON document %s: %w", path, err)
	}
	return payload, nil
}

func writeJSONDocument(path string, payload any) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func mergeFallbackDocuments(paths []string) map[string]json.RawMessage {
	merged := make(map[string]json.RawMessage)
	for _, path := range paths {
		doc, err := readJSONDocument(path)
		if err != nil || doc == nil {
			// Fallback sources are best-effort seeds; a broken one is skipped.
			continue
		}
		for key, value := range doc {
			merged[key] = value
		}
	}
	return merged
}
