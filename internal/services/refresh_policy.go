package services

import (
	"time"

	"github.com/touchline/matchradar/internal/models"
)

// Policy reasons surfaced as warnings on cache-preferring responses.
const (
	ReasonLiveRefreshDisabled = "Live refresh is disabled for this request"
	ReasonHistoricalDisabled  = "Historical API fetch is disabled by policy"
	ReasonFutureDisabled      = "Future API fetch beyond tomorrow is disabled by policy"
	ReasonNoAPIKey            = "API_SPORTS_KEY is not configured"
	ReasonAlreadyAttempted    = "Live fetch already attempted today for this date"
	ReasonBudgetTooLow        = "Remaining daily API budget is too low for a full refresh"
	ReasonWithinInterval      = "Using cached result within refresh interval"
)

// RefreshPolicy decides whether a live refresh should be attempted for one
// date. The rules form a strict priority chain: the first matching rule
// decides and later rules are never evaluated.
type RefreshPolicy struct {
	CacheRefreshMinutes      int
	ErrorRetryMinutes        int
	SingleFetchPerDatePerDay bool
	// CallsPerFetch is how many upstream calls one full per-league fetch
	// consumes, used for the low-budget-with-cache rule.
	CallsPerFetch int
}

// RefreshInput carries every fact the chain needs, so Decide stays a pure
// function.
type RefreshInput struct {
	Date             string
	Now              time.Time
	HasCache         bool
	Meta             *models.FixtureMeta
	Forced           bool
	APIKeyConfigured bool
	AllowLive        bool
	RemainingBudget  int
}

// RefreshDecision is the outcome of the chain. ByForce marks that the
// force-refresh rule fired, so the caller can clear the flag.
type RefreshDecision struct {
	Fetch   bool
	Reason  string
	ByForce bool
}

// Decide runs the priority chain for one date.
func (p RefreshPolicy) Decide(in RefreshInput) RefreshDecision {
	if !in.AllowLive {
		return RefreshDecision{Fetch: false, Reason: ReasonLiveRefreshDisabled}
	}

	today := in.Now.Format("2006-01-02")
	tomorrow := in.Now.AddDate(0, 0, 1).Format("2006-01-02")
	if in.Date < today {
		return RefreshDecision{Fetch: false, Reason: ReasonHistoricalDisabled}
	}
	if in.Date > tomorrow {
		return RefreshDecision{Fetch: false, Reason: ReasonFutureDisabled}
	}

	if !in.APIKeyConfigured {
		return RefreshDecision{Fetch: false, Reason: ReasonNoAPIKey}
	}

	if in.Forced {
		return RefreshDecision{Fetch: true, ByForce: true}
	}

	if p.SingleFetchPerDatePerDay && attemptedToday(in.Meta, in.Now) {
		return RefreshDecision{Fetch: false, Reason: ReasonAlreadyAttempted}
	}

	if in.HasCache && in.RemainingBudget < p.CallsPerFetch {
		return RefreshDecision{Fetch: false, Reason: ReasonBudgetTooLow}
	}

	if in.Meta == nil {
		return RefreshDecision{Fetch: true}
	}

	lastAttempt, ok := in.Meta.LastAttemptTime()
	if !ok {
		return RefreshDecision{Fetch: true}
	}
	ageMinutes := in.Now.UTC().Sub(lastAttempt).Minutes()
	if ageMinutes < 0 {
		ageMinutes = 0
	}

	if in.Meta.Status == models.StatusError {
		if ageMinutes >= float64(p.ErrorRetryMinutes) {
			return RefreshDecision{Fetch: true}
		}
		return RefreshDecision{Fetch: false, Reason: ReasonWithinInterval}
	}

	if in.HasCache {
		if ageMinutes >= float64(p.CacheRefreshMinutes) {
			return RefreshDecision{Fetch: true}
		}
		return RefreshDecision{Fetch: false, Reason: ReasonWithinInterval}
	}

	// Empty-but-successful date with no cached rows: always eligible.
	return RefreshDecision{Fetch: true}
}

func attemptedToday(meta *models.FixtureMeta, now time.Time) bool {
	if meta == nil {
		return false
	}
	lastAttempt, ok := meta.LastAttemptTime()
	if !ok {
		return false
	}
	return lastAttempt.UTC().Format("2006-01-02") == now.UTC().Format("2006-01-02")
}
