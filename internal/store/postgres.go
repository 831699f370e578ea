package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/touchline/matchradar/pkg/database"
)

const budgetRetentionDays = 30

// CacheSnapshot holds one namespace's map document as jsonb.
type CacheSnapshot struct {
	Namespace string         `gorm:"primaryKey;column:namespace"`
	Payload   datatypes.JSON `gorm:"column:payload;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
}

func (CacheSnapshot) TableName() string { return "app_cache_snapshots" }

// BudgetRow holds one calendar day's upstream call count.
type BudgetRow struct {
	BudgetDate string    `gorm:"primaryKey;column:budget_date"`
	Count      int       `gorm:"column:count;not null"`
	LimitValue int       `gorm:"column:limit_value;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (BudgetRow) TableName() string { return "app_api_budget" }

// PostgresStore persists namespaces and the budget ledger in a shared
// database. Budget consumption takes a row lock so concurrent processes
// cannot both spend the last remaining call.
type PostgresStore struct {
	db     *database.DB
	logger *logrus.Logger
}

// NewPostgresStore creates the shared-database store and ensures its schema.
func NewPostgresStore(db *database.DB, logger *logrus.Logger) (*PostgresStore, error) {
	if err := db.AutoMigrate(&CacheSnapshot{}, &BudgetRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache schema: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) Shared() bool { return true }

func (s *PostgresStore) LoadMap(namespace string, fallbackPaths []string) (map[string]json.RawMessage, error) {
	var snapshot CacheSnapshot
	err := s.db.Where("namespace = ?", namespace).Take(&snapshot).Error
	switch {
	case err == nil:
		var payload map[string]json.RawMessage
		if uerr := json.Unmarshal(snapshot.Payload, &payload); uerr == nil && payload != nil {
			return payload, nil
		}
		s.logger.WithField("namespace", namespace).Warn("Discarding malformed cache snapshot payload")
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First run against this database; fall through to file seeds.
	default:
		return nil, fmt.Errorf("failed reading snapshot namespace=%s: %w", namespace, err)
	}

	merged := mergeFallbackDocuments(fallbackPaths)
	if len(merged) > 0 {
		// Migrate file-seeded state into the shared backend.
		if serr := s.SaveMap(namespace, merged); serr != nil {
			s.logger.WithError(serr).WithField("namespace", namespace).
				Warn("Failed migrating file seed into database snapshot")
		}
	}
	return merged, nil
}

func (s *PostgresStore) SaveMap(namespace string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot namespace=%s: %w", namespace, err)
	}

	snapshot := CacheSnapshot{
		Namespace: namespace,
		Payload:   datatypes.JSON(data),
		UpdatedAt: time.Now().UTC(),
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&snapshot).Error
	if err != nil {
		return fmt.Errorf("failed writing snapshot namespace=%s: %w", namespace, err)
	}
	return nil
}

func (s *PostgresStore) LoadBudget(date string) (*BudgetEntry, error) {
	var row BudgetRow
	err := s.db.Where("budget_date = ?", date).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed reading budget for %s: %w", date, err)
	}
	return &BudgetEntry{Date: row.BudgetDate, Count: row.Count, Limit: row.LimitValue}, nil
}

func (s *PostgresStore) SaveBudget(entry BudgetEntry) error {
	row := BudgetRow{
		BudgetDate: entry.Date,
		Count:      entry.Count,
		LimitValue: entry.Limit,
		UpdatedAt:  time.Now().UTC(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "budget_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"count", "limit_value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed writing budget for %s: %w", entry.Date, err)
	}
	return nil
}

// ConsumeBudget reads-or-creates the day's row under a row lock, increments
// only while count < limit, and reports whether the increment happened.
func (s *PostgresStore) ConsumeBudget(date string, limit int) (bool, int, error) {
	allowed := false
	count := limit

	err := s.db.Transaction(func(tx *gorm.DB) error {
		pruneBefore := time.Now().AddDate(0, 0, -budgetRetentionDays).Format("2006-01-02")
		if err := tx.Where("budget_date < ?", pruneBefore).Delete(&BudgetRow{}).Error; err != nil {
			return err
		}

		var row BudgetRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("budget_date = ?", date).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = BudgetRow{BudgetDate: date, Count: 1, LimitValue: limit, UpdatedAt: time.Now().UTC()}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			allowed = true
			count = 1
			return nil
		}
		if err != nil {
			return err
		}

		current := row.Count
		if current < 0 {
			current = 0
		}
		if current > limit {
			current = limit
		}

		if current >= limit {
			allowed = false
			count = current
		} else {
			allowed = true
			count = current + 1
		}
		return tx.Model(&BudgetRow{}).
			Where("budget_date = ?", date).
			Updates(map[string]any{
				"count":       count,
				"limit_value": limit,
				"updated_at":  time.Now().UTC(),
			}).Error
	})
	if err != nil {
		// Fail closed: an unreachable ledger counts as exhausted.
		return false, limit, fmt.Errorf("failed consuming API budget: %w", err)
	}
	return allowed, count, nil
}

// LockBudget raises the day's count to the limit, never lowering it.
func (s *PostgresStore) LockBudget(date string, limit int) (int, error) {
	count := limit

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row BudgetRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("budget_date = ?", date).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = BudgetRow{BudgetDate: date, Count: limit, LimitValue: limit, UpdatedAt: time.Now().UTC()}
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}

		if row.Count > limit {
			count = row.Count
		}
		return tx.Model(&BudgetRow{}).
			Where("budget_date = ?", date).
			Updates(map[string]any{
				"count":       count,
				"limit_value": limit,
				"updated_at":  time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return limit, fmt.Errorf("failed locking API budget: %w", err)
	}
	return count, nil
}
