package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/touchline/matchradar/internal/models"
	"github.com/touchline/matchradar/internal/preferences"
	"github.com/touchline/matchradar/internal/scoring"
	"github.com/touchline/matchradar/internal/services"
	"github.com/touchline/matchradar/pkg/config"
	"github.com/touchline/matchradar/pkg/utils"
)

// UserProfileResponse is the profile echo on the matches payload.
type UserProfileResponse struct {
	FavoriteTeam     string `json:"favorite_team"`
	PrefersGoals     bool   `json:"prefers_goals"`
	PrefersTactical  bool   `json:"prefers_tactical"`
	InteractionCount int    `json:"interaction_count"`
}

// MatchesResponse is the ranked fixtures payload.
type MatchesResponse struct {
	Status              string                `json:"status"`
	TotalMatchesChecked int                   `json:"total_matches_checked"`
	UserProfile         UserProfileResponse   `json:"user_profile"`
	Matches             []scoring.ScoredMatch `json:"matches"`
	Warnings            []string              `json:"warnings"`
	Source              string                `json:"source"`
	WindowStart         string                `json:"window_start,omitempty"`
	WindowEnd           string                `json:"window_end,omitempty"`
}

// MatchesHandler serves the ranked fixtures endpoint.
type MatchesHandler struct {
	engine *services.FixtureService
	scorer *scoring.MatchScorer
	prefs  *preferences.Store
	cfg    *config.Config
}

func NewMatchesHandler(engine *services.FixtureService, scorer *scoring.MatchScorer, prefs *preferences.Store, cfg *config.Config) *MatchesHandler {
	return &MatchesHandler{engine: engine, scorer: scorer, prefs: prefs, cfg: cfg}
}

// GetTodaysMatches returns the scored fixtures for an explicit date, or for
// the rolling upcoming window when date is omitted.
func (h *MatchesHandler) GetTodaysMatches(c *gin.Context) {
	userID := c.DefaultQuery("user_id", "default_user")
	if len(userID) > 128 {
		utils.SendBadRequest(c, "user_id must be at most 128 characters")
		return
	}

	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			utils.SendBadRequest(c, "date must be in YYYY-MM-DD format")
			return
		}
	}

	windowHours := h.cfg.DefaultWindowHours
	if raw := c.Query("window_hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 48 {
			utils.SendBadRequest(c, "window_hours must be an integer between 1 and 48")
			return
		}
		windowHours = parsed
	}

	update := preferences.ProfileUpdate{}
	if raw, ok := c.GetQuery("favorite_team"); ok {
		if len(raw) > 100 {
			utils.SendBadRequest(c, "favorite_team must be at most 100 characters")
			return
		}
		update.FavoriteTeam = &raw
	}
	// The UI is team-search only; absent toggles clear stale persisted values.
	prefersGoals := c.Query("prefers_goals") == "true"
	prefersTactical := c.Query("prefers_tactical") == "true"
	update.PrefersGoals = &prefersGoals
	update.PrefersTactical = &prefersTactical

	allowLive := h.cfg.LiveFetchOnRequest
	ctx := c.Request.Context()

	var payload models.FixturePayload
	windowStart, windowEnd := "", ""
	if date != "" {
		payload = h.engine.GetFixturesByDate(ctx, date, allowLive)
	} else {
		window := h.engine.GetFixturesInWindow(ctx, windowHours, allowLive)
		payload = window.FixturePayload
		windowStart = window.WindowStart
		windowEnd = window.WindowEnd
	}

	warnings := summarizeWarnings(payload)

	profile, err := h.prefs.UpsertProfile(userID, update)
	if err != nil {
		utils.SendInternalError(c, "failed to update user profile")
		return
	}

	scored := h.scorer.ScoreMatches(payload.Matches, scoring.Preferences{
		FavoriteTeam:   profile.FavoriteTeam,
		PrefersGoals:   profile.PrefersGoals,
		PrefersTactics: profile.PrefersTactical,
	}, func(leagueID, season int) map[string]models.TeamStanding {
		return h.engine.GetStandings(ctx, leagueID, season, allowLive)
	})
	if scored == nil {
		scored = []scoring.ScoredMatch{}
	}

	status := "success"
	if len(payload.Matches) == 0 && len(warnings) > 0 {
		status = "degraded"
	}

	c.JSON(http.StatusOK, MatchesResponse{
		Status:              status,
		TotalMatchesChecked: len(payload.Matches),
		UserProfile: UserProfileResponse{
			FavoriteTeam:     profile.FavoriteTeam,
			PrefersGoals:     profile.PrefersGoals,
			PrefersTactical:  profile.PrefersTactical,
			InteractionCount: profile.InteractionCount,
		},
		Matches:     scored,
		Warnings:    warnings,
		Source:      payload.Source,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
}

// summarizeWarnings folds the payload's errors and upstream issues into the
// user-facing warning list.
func summarizeWarnings(payload models.FixturePayload) []string {
	warnings := append([]string{}, payload.Warnings...)

	if payload.Errors != "" && len(payload.Matches) == 0 {
		warnings = append(warnings, "Live fixture provider failed and no cached matches were available.")
	} else if payload.Errors != "" {
		warnings = append(warnings, "Live fixture provider failed for part of the data; fallback was used.")
	}
	if count := len(payload.UpstreamIssues); count > 0 {
		warnings = append(warnings, fmt.Sprintf("%d league request(s) failed upstream.", count))
	}
	return models.DedupeStrings(warnings)
}
