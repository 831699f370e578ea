package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/touchline/matchradar/internal/api"
	"github.com/touchline/matchradar/internal/preferences"
	"github.com/touchline/matchradar/internal/providers"
	"github.com/touchline/matchradar/internal/scoring"
	"github.com/touchline/matchradar/internal/services"
	"github.com/touchline/matchradar/internal/store"
	"github.com/touchline/matchradar/pkg/config"
	"github.com/touchline/matchradar/pkg/database"
	"github.com/touchline/matchradar/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Setup logging
	log := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Select the cache backend: shared Postgres when configured, local files
	// otherwise.
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
		log.Info("Using shared Postgres cache backend")
	} else {
		cacheStore = store.NewFileStore(map[string]string{
			store.NamespaceFixtures:  cfg.FixturesCachePath,
			store.NamespaceMeta:      cfg.FixturesMetaPath,
			store.NamespaceStandings: cfg.StandingsCachePath,
			store.NamespaceLogos:     cfg.LogoCachePath,
		}, cfg.APIBudgetPath, log)
		log.Info("Using local file cache backend")
	}

	// Initialize services
	provider := providers.NewAPIFootballClient(
		cfg.APISportsKey,
		cfg.RequestTimeout,
		time.Duration(cfg.MinRequestIntervalSeconds*float64(time.Second)),
		log,
	)
	ledger := services.NewBudgetLedger(cacheStore, cfg.MaxDailyAPICalls, log)
	engine := services.NewFixtureService(cfg, cacheStore, provider, ledger, log)
	engine.Load()

	scorer := scoring.NewMatchScorer(log)

	prefsStore, err := preferences.NewStore(cfg.PreferencesDBPath)
	if err != nil {
		log.Fatalf("Failed to open preferences store: %v", err)
	}

	// Scheduled daily cache warm
	var scheduler *cron.Cron
	if cfg.EnableBackgroundJobs {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.WarmCacheCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			report := engine.WarmDailyCache(ctx, true)
			log.WithFields(logrus.Fields{
				"fixtures_loaded":  report.FixturesLoaded,
				"standings_warmed": report.StandingsLeaguesWarmed,
				"budget_remaining": report.Budget.Remaining,
			}).Info("Scheduled cache warm finished")
		})
		if err != nil {
			log.Fatalf("Invalid WARM_CACHE_CRON expression: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.WithField("schedule", cfg.WarmCacheCron).Info("Background cache warm scheduled")
	}

	router := api.NewRouter(engine, scorer, prefsStore, cfg, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
