package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// FileStore persists each namespace as one JSON document on local disk.
//
// Budget consumption is read-modify-write with a prefer-larger-count
// reconciliation, serialized within this process by a mutex. Under true
// multi-process concurrency this is a best-effort approximation, not an
// atomicity guarantee; deployments that share a budget across processes
// should use the Postgres backend.
type FileStore struct {
	mu         sync.Mutex
	paths      map[string]string
	budgetPath string
	logger     *logrus.Logger
}

// NewFileStore creates a file-backed store. paths maps each namespace to its
// JSON document path.
func NewFileStore(paths map[string]string, budgetPath string, logger *logrus.Logger) *FileStore {
	return &FileStore{
		paths:      paths,
		budgetPath: budgetPath,
		logger:     logger,
	}
}

func (s *FileStore) Shared() bool { return false }

func (s *FileStore) LoadMap(namespace string, fallbackPaths []string) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Callers pass every source for the namespace, seeds first; later
	// documents win on key collisions.
	return mergeFallbackDocuments(fallbackPaths), nil
}

func (s *FileStore) SaveMap(namespace string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, ok := s.paths[namespace]
	if !ok || path == "" {
		return fmt.Errorf("no document path configured for namespace %q", namespace)
	}
	return writeJSONDocument(path, payload)
}

func (s *FileStore) LoadBudget(date string) (*BudgetEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readBudgetLocked(date)
}

func (s *FileStore) readBudgetLocked(date string) (*BudgetEntry, error) {
	doc, err := readJSONDocument(s.budgetPath)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load API budget document")
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	entry := decodeBudgetDocument(doc)
	if entry == nil || entry.Date != date {
		return nil, nil
	}
	return entry, nil
}

func (s *FileStore) SaveBudget(entry BudgetEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONDocument(s.budgetPath, entry)
}

func (s *FileStore) ConsumeBudget(date string, limit int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.readBudgetLocked(date)
	if err != nil {
		// Fail closed: an unreadable ledger counts as exhausted.
		return false, limit, err
	}
	if entry == nil {
		entry = &BudgetEntry{Date: date, Count: 0, Limit: limit}
	}

	count := entry.Count
	if count < 0 {
		count = 0
	}
	if count >= limit {
		entry.Count = limit
		entry.Limit = limit
		if err := writeJSONDocument(s.budgetPath, entry); err != nil {
			return false, limit, err
		}
		return false, limit, nil
	}

	count++
	entry.Count = count
	entry.Limit = limit
	if err := writeJSONDocument(s.budgetPath, entry); err != nil {
		return false, limit, err
	}
	return true, count, nil
}

func (s *FileStore) LockBudget(date string, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := BudgetEntry{Date: date, Count: limit, Limit: limit}
	if err := writeJSONDocument(s.budgetPath, entry); err != nil {
		return limit, err
	}
	return limit, nil
}

func decodeBudgetDocument(doc map[string]json.RawMessage) *BudgetEntry {
	var entry BudgetEntry
	if raw, ok := doc["date"]; ok {
		_ = json.Unmarshal(raw, &entry.Date)
	}
	if raw, ok := doc["count"]; ok {
		_ = json.Unmarshal(raw, &entry.Count)
	}
	if raw, ok := doc["max_daily_api_calls"]; ok {
		_ = json.Unmarshal(raw, &entry.Limit)
	}
	if entry.Date == "" {
		return nil
	}
	return &entry
}
