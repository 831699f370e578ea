// Package preferences persists per-user personalization profiles in a local
// SQLite database.
package preferences

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// UserPreference is one user's personalization profile.
type UserPreference struct {
	UserID           string    `gorm:"primaryKey;column:user_id" json:"user_id"`
	FavoriteTeam     string    `gorm:"column:favorite_team;not null;default:''" json:"favorite_team"`
	PrefersGoals     bool      `gorm:"column:prefers_goals;not null;default:false" json:"prefers_goals"`
	PrefersTactical  bool      `gorm:"column:prefers_tactical;not null;default:false" json:"prefers_tactical"`
	InteractionCount int       `gorm:"column:interaction_count;not null;default:0" json:"interaction_count"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (UserPreference) TableName() string {
	return "user_preferences"
}

// ProfileUpdate carries the optional fields of an upsert. Nil fields keep
// their current value.
type ProfileUpdate struct {
	FavoriteTeam    *string
	PrefersGoals    *bool
	PrefersTactical *bool
}

// Store wraps the preferences database.
type Store struct {
	db *gorm.DB
}

// NewStore opens (and migrates) the SQLite database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create preferences directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences database: %w", err)
	}
	if err := db.AutoMigrate(&UserPreference{}); err != nil {
		return nil, fmt.Errorf("failed to migrate preferences schema: %w", err)
	}
	return &Store{db: db}, nil
}

// GetProfile returns the stored profile, or a zero-value profile for unknown
// users.
func (s *Store) GetProfile(userID string) (UserPreference, error) {
	var profile UserPreference
	err := s.db.First(&profile, "user_id = ?", userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return UserPreference{UserID: userID}, nil
		}
		return UserPreference{}, fmt.Errorf("failed to load profile: %w", err)
	}
	return profile, nil
}

// UpsertProfile merges the update into the stored profile and bumps the
// interaction counter.
func (s *Store) UpsertProfile(userID string, update ProfileUpdate) (UserPreference, error) {
	profile, err := s.GetProfile(userID)
	if err != nil {
		return UserPreference{}, err
	}

	if update.FavoriteTeam != nil {
		profile.FavoriteTeam = strings.TrimSpace(*update.FavoriteTeam)
	}
	if update.PrefersGoals != nil {
		profile.PrefersGoals = *update.PrefersGoals
	}
	if update.PrefersTactical != nil {
		profile.PrefersTactical = *update.PrefersTactical
	}
	profile.InteractionCount++
	profile.UpdatedAt = time.Now().UTC()

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"favorite_team", "prefers_goals", "prefers_tactical", "interaction_count", "updated_at"}),
	}).Create(&profile).Error
	if err != nil {
		return UserPreference{}, fmt.Errorf("failed to save profile: %w", err)
	}
	return profile, nil
}
