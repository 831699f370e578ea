package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/touchline/matchradar/internal/services"
	"github.com/touchline/matchradar/pkg/config"
)

// HealthHandler serves the liveness, readiness and budget endpoints.
type HealthHandler struct {
	engine           *services.FixtureService
	cfg              *config.Config
	apiKeyConfigured bool
}

func NewHealthHandler(engine *services.FixtureService, cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		engine:           engine,
		cfg:              cfg,
		apiKeyConfigured: cfg.APISportsKey != "",
	}
}

// GetHealth returns basic liveness - always 200 while the server runs.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "matchradar",
	})
}

// GetReady reports readiness plus the operational facts a deploy check needs:
// budget state, backend kind and the live-fetch policy.
func (h *HealthHandler) GetReady(c *gin.Context) {
	budget := h.engine.Budget()

	backend := "file"
	if h.engine.BackendShared() {
		backend = "postgres"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                    "ready",
		"api_key_configured":        h.apiKeyConfigured,
		"default_window_hours":      h.cfg.DefaultWindowHours,
		"api_daily_limit":           budget.Limit,
		"api_daily_used":            budget.Used,
		"api_daily_remaining":       budget.Remaining,
		"api_budget_date":           budget.Date,
		"live_fetch_on_request":     h.cfg.LiveFetchOnRequest,
		"snapshot_ttl_minutes":      h.cfg.SnapshotTTLMinutes,
		"snapshot_align_to_utc_day": h.cfg.SnapshotAlignToUTCDay,
		"cache_backend":             backend,
		"cache_database_configured": h.cfg.CacheDatabaseURL != "",
	})
}

// GetBudget exposes the daily upstream-call ledger.
func (h *HealthHandler) GetBudget(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Budget())
}
