package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/touchline/matchradar/internal/models"
	"github.com/touchline/matchradar/internal/store"
)

// BudgetLedger is the single source of truth for how many upstream calls
// have been made today and how many remain. The in-memory copy is a mirror;
// the authoritative count lives in the backend and is re-read before every
// quota-sensitive decision. Backend failures fail closed: no budget remains.
type BudgetLedger struct {
	mu     sync.Mutex
	store  store.Store
	limit  int
	logger *logrus.Entry
	now    func() time.Time

	date  string
	count int
}

// NewBudgetLedger creates a ledger for the configured daily call limit.
func NewBudgetLedger(st store.Store, limit int, logger *logrus.Logger) *BudgetLedger {
	l := &BudgetLedger{
		store:  st,
		limit:  limit,
		logger: logger.WithField("component", "budget"),
		now:    time.Now,
	}
	l.date = l.localToday()
	return l
}

func (l *BudgetLedger) localToday() string {
	return l.now().Format("2006-01-02")
}

// syncLocked refreshes the mirror from the backend, handling local-day
// rollover. The backend count wins when larger, so a stale process cannot
// under-report calls made elsewhere.
func (l *BudgetLedger) syncLocked() {
	today := l.localToday()
	if l.date != today {
		l.date = today
		l.count = 0
	}

	entry, err := l.store.LoadBudget(today)
	if err != nil {
		l.logger.WithError(err).Warn("Failed to sync API budget from backend")
		return
	}
	if entry != nil && entry.Count > l.count {
		l.count = entry.Count
	}
	l.count = l.sanitize(l.count)
}

func (l *BudgetLedger) sanitize(count int) int {
	if count < 0 {
		return 0
	}
	if count > l.limit {
		return l.limit
	}
	return count
}

// Status reports the day's usage after re-syncing from the backend.
func (l *BudgetLedger) Status() models.BudgetStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.syncLocked()
	remaining := l.limit - l.count
	if remaining < 0 {
		remaining = 0
	}
	return models.BudgetStatus{
		Date:      l.date,
		Used:      l.count,
		Limit:     l.limit,
		Remaining: remaining,
	}
}

// Remaining returns the calls left today.
func (l *BudgetLedger) Remaining() int {
	return l.Status().Remaining
}

// Consume atomically spends one call from today's budget. It returns false
// when the budget is exhausted or the backend is unreachable.
func (l *BudgetLedger) Consume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.syncLocked()
	if l.count >= l.limit {
		return false
	}

	allowed, newCount, err := l.store.ConsumeBudget(l.date, l.limit)
	if err != nil {
		// Fail closed rather than risk exceeding the real upstream quota.
		l.logger.WithError(err).Warn("Budget consumption failed; treating as exhausted")
		l.count = l.limit
		return false
	}
	l.count = l.sanitize(newCount)
	return allowed
}

// LockToLimit force-sets today's count to the limit. Called when the
// upstream reports quota exhaustion so no further attempts happen today,
// even if the local mirror was stale.
func (l *BudgetLedger) LockToLimit() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.date = l.localToday()
	count, err := l.store.LockBudget(l.date, l.limit)
	if err != nil {
		l.logger.WithError(err).Warn("Failed to lock API budget in backend")
		l.count = l.limit
		return
	}
	l.count = l.sanitize(count)
	l.logger.WithField("date", l.date).Info("API budget locked to daily limit")
}

// setClock overrides the wall clock for tests.
func (l *BudgetLedger) setClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.syncLocked()
}
