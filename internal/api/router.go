package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/touchline/matchradar/internal/api/handlers"
	"github.com/touchline/matchradar/internal/api/middleware"
	"github.com/touchline/matchradar/internal/preferences"
	"github.com/touchline/matchradar/internal/scoring"
	"github.com/touchline/matchradar/internal/services"
	"github.com/touchline/matchradar/pkg/config"
)

// NewRouter builds the HTTP surface: health probes, the budget report and
// the ranked fixtures endpoint.
func NewRouter(engine *services.FixtureService, scorer *scoring.MatchScorer, prefs *preferences.Store, cfg *config.Config, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.CorsOrigins))

	healthHandler := handlers.NewHealthHandler(engine, cfg)
	matchesHandler := handlers.NewMatchesHandler(engine, scorer, prefs, cfg)

	router.GET("/healthz", healthHandler.GetHealth)
	router.GET("/readyz", healthHandler.GetReady)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/matches/today", matchesHandler.GetTodaysMatches)
		apiGroup.GET("/budget", healthHandler.GetBudget)
	}

	return router
}
