// Command warmcache runs one daily cache warm pass and prints the report as
// JSON. Intended for cron or manual pre-warming before peak hours.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/touchline/matchradar/internal/providers"
	"github.com/touchline/matchradar/internal/services"
	"github.com/touchline/matchradar/internal/store"
	"github.com/touchline/matchradar/pkg/config"
	"github.com/touchline/matchradar/pkg/database"
	"github.com/touchline/matchradar/pkg/logger"
)

func main() {
	allowLive := flag.Bool("live", true, "allow live upstream fetches during the warm pass")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall warm pass timeout")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())

	var cacheStore store.Store
	if cfg.CacheDatabaseURL != "" {
		db, err := database.NewConnection(cfg.CacheDatabaseURL, cfg.IsDevelopment())
		if err != nil {
			log.Fatalf("Failed to connect to cache database: %v", err)
		}
		defer db.Close()

		cacheStore, err = store.NewPostgresStore(db, log)
		if err != nil {
			log.Fatalf("Failed to initialize cache store: %v", err)
		}
	} else {
		cacheStore = store.NewFileStore(map[string]string{
			store.NamespaceFixtures:  cfg.FixturesCachePath,
			store.NamespaceMeta:      cfg.FixturesMetaPath,
			store.NamespaceStandings: cfg.StandingsCachePath,
			store.NamespaceLogos:     cfg.LogoCachePath,
		}, cfg.APIBudgetPath, log)
	}

	provider := providers.NewAPIFootballClient(
		cfg.APISportsKey,
		cfg.RequestTimeout,
		time.Duration(cfg.MinRequestIntervalSeconds*float64(time.Second)),
		log,
	)
	ledger := services.NewBudgetLedger(cacheStore, cfg.MaxDailyAPICalls, log)
	engine := services.NewFixtureService(cfg, cacheStore, provider, ledger, log)
	engine.Load()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report := engine.WarmDailyCache(ctx, *allowLive)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		log.Fatalf("Failed to encode warm report: %v", err)
	}
}
