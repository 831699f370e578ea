package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// CORS
	CorsOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Upstream provider
	APISportsKey              string        `mapstructure:"API_SPORTS_KEY"`
	RequestTimeout            time.Duration `mapstructure:"-"`
	MinRequestIntervalSeconds float64       `mapstructure:"MIN_REQUEST_INTERVAL_SECONDS"`

	// Fixture window
	DefaultWindowHours   int `mapstructure:"UPCOMING_WINDOW_HOURS"`
	MinWindowMatches     int `mapstructure:"MIN_WINDOW_MATCHES"`
	WindowExtensionHours int `mapstructure:"WINDOW_EXTENSION_HOURS"`

	// Refresh policy
	SingleFetchPerDatePerDay   bool `mapstructure:"SINGLE_FETCH_PER_DATE_PER_DAY"`
	MaxDailyAPICalls           int  `mapstructure:"MAX_DAILY_API_CALLS"`
	FixtureCacheRefreshMinutes int  `mapstructure:"FIXTURE_CACHE_REFRESH_MINUTES"`
	FixtureErrorRetryMinutes   int  `mapstructure:"FIXTURE_ERROR_RETRY_MINUTES"`
	FilterTargetLeagues        bool `mapstructure:"FILTER_TARGET_LEAGUES"`
	LiveFetchOnRequest         bool `mapstructure:"LIVE_FETCH_ON_REQUEST"`

	// Window snapshot freshness
	SnapshotTTLMinutes      int  `mapstructure:"SNAPSHOT_TTL_MINUTES"`
	SnapshotErrorTTLMinutes int  `mapstructure:"SNAPSHOT_ERROR_TTL_MINUTES"`
	SnapshotAlignToUTCDay   bool `mapstructure:"SNAPSHOT_ALIGN_TO_UTC_DAY"`

	// Persistence
	CacheDatabaseURL   string `mapstructure:"CACHE_DATABASE_URL"`
	FixturesCachePath  string `mapstructure:"FIXTURES_CACHE_PATH"`
	FixturesSeedPath   string `mapstructure:"FIXTURES_SEED_PATH"`
	FixturesMetaPath   string `mapstructure:"FIXTURES_META_PATH"`
	StandingsCachePath string `mapstructure:"STANDINGS_CACHE_PATH"`
	LogoCachePath      string `mapstructure:"LOGO_CACHE_PATH"`
	APIBudgetPath      string `mapstructure:"API_BUDGET_PATH"`
	PreferencesDBPath  string `mapstructure:"PREFERENCES_DB_PATH"`

	// Background jobs
	EnableBackgroundJobs bool   `mapstructure:"ENABLE_BACKGROUND_JOBS"`
	WarmCacheCron        string `mapstructure:"WARM_CACHE_CRON"`

	// Logging
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	// Set defaults
	viper.SetDefault("PORT", "8000")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	viper.SetDefault("API_SPORTS_KEY", "")
	viper.SetDefault("REQUEST_TIMEOUT_SECONDS", 10)
	viper.SetDefault("MIN_REQUEST_INTERVAL_SECONDS", 1.0)
	viper.SetDefault("UPCOMING_WINDOW_HOURS", 20)
	viper.SetDefault("MIN_WINDOW_MATCHES", 4)
	viper.SetDefault("WINDOW_EXTENSION_HOURS", 4)
	viper.SetDefault("SINGLE_FETCH_PER_DATE_PER_DAY", true)
	viper.SetDefault("MAX_DAILY_API_CALLS", 25)
	viper.SetDefault("FIXTURE_CACHE_REFRESH_MINUTES", 90)
	viper.SetDefault("FIXTURE_ERROR_RETRY_MINUTES", 30)
	viper.SetDefault("FILTER_TARGET_LEAGUES", true)
	viper.SetDefault("LIVE_FETCH_ON_REQUEST", false)
	viper.SetDefault("SNAPSHOT_TTL_MINUTES", 90)
	viper.SetDefault("SNAPSHOT_ERROR_TTL_MINUTES", 20)
	viper.SetDefault("SNAPSHOT_ALIGN_TO_UTC_DAY", true)
	viper.SetDefault("CACHE_DATABASE_URL", "")
	viper.SetDefault("FIXTURES_CACHE_PATH", "data/fixtures_cache.json")
	viper.SetDefault("FIXTURES_SEED_PATH", "data/fixtures_seed.json")
	viper.SetDefault("FIXTURES_META_PATH", "data/fixtures_cache_meta.json")
	viper.SetDefault("STANDINGS_CACHE_PATH", "data/standings_cache.json")
	viper.SetDefault("LOGO_CACHE_PATH", "data/logo_cache.json")
	viper.SetDefault("API_BUDGET_PATH", "data/api_budget.json")
	viper.SetDefault("PREFERENCES_DB_PATH", "data/preferences.db")
	viper.SetDefault("ENABLE_BACKGROUND_JOBS", false)
	viper.SetDefault("WARM_CACHE_CRON", "15 0 * * *")
	viper.SetDefault("LOG_LEVEL", "")

	// Read from environment
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse CORS origins from comma-separated string
	if corsStr := viper.GetString("CORS_ORIGINS"); corsStr != "" {
		config.CorsOrigins = strings.Split(corsStr, ",")
	}

	config.APISportsKey = strings.TrimSpace(config.APISportsKey)
	config.RequestTimeout = time.Duration(viper.GetFloat64("REQUEST_TIMEOUT_SECONDS") * float64(time.Second))

	// Clamp knobs that feed the refresh policy and window math; an
	// out-of-range value silently snaps back into its documented range.
	config.DefaultWindowHours = clampInt(config.DefaultWindowHours, 1, 48)
	config.MinWindowMatches = clampInt(config.MinWindowMatches, 1, 20)
	config.WindowExtensionHours = clampInt(config.WindowExtensionHours, 0, 24)
	config.MaxDailyAPICalls = clampInt(config.MaxDailyAPICalls, 1, 500)
	config.FixtureCacheRefreshMinutes = clampInt(config.FixtureCacheRefreshMinutes, 5, 720)
	config.FixtureErrorRetryMinutes = clampInt(config.FixtureErrorRetryMinutes, 5, 240)
	config.SnapshotTTLMinutes = clampInt(config.SnapshotTTLMinutes, 5, 1440)
	config.SnapshotErrorTTLMinutes = clampInt(config.SnapshotErrorTTLMinutes, 5, 240)

	return &config, nil
}

func clampInt(value, minimum, maximum int) int {
	if value < minimum {
		return minimum
	}
	if value > maximum {
		return maximum
	}
	return value
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
