package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/touchline/matchradar/internal/models"
)

const apiFootballHost = "v3.football.api-sports.io"

// ErrNoAPIKey is returned when no upstream credential is configured.
var ErrNoAPIKey = errors.New("API_SPORTS_KEY is not configured")

// UpstreamError is a failed upstream call. QuotaExceeded marks the provider's
// daily request limit, which must stop further calls for the day.
type UpstreamError struct {
	Reason        string
	QuotaExceeded bool
}

func (e *UpstreamError) Error() string { return e.Reason }

// isQuotaExceeded matches the provider's quota-exhaustion message. The
// upstream emits no structured code for this, so detection is substring
// based; keep every caller behind this one helper.
func isQuotaExceeded(text string) bool {
	lowered := strings.ToLower(text)
	return strings.Contains(lowered, "request limit") ||
		strings.Contains(lowered, "reached the request limit")
}

// APIFootballClient fetches fixtures and standings from the API-Football v3
// endpoints. A process-global rate limiter enforces the minimum interval
// between outbound requests even when internal callers race, and a circuit
// breaker sheds calls while the upstream is failing.
type APIFootballClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewAPIFootballClient creates an upstream client. minInterval throttles
// outbound calls; timeout bounds each request.
func NewAPIFootballClient(apiKey string, timeout time.Duration, minInterval time.Duration, logger *logrus.Logger) *APIFootballClient {
	settings := gobreaker.Settings{
		Name:    "api-football",
		Timeout: timeout * 6,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"service":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Info("Circuit breaker state changed")
		},
	}

	var limiter *rate.Limiter
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}

	return &APIFootballClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://" + apiFootballHost,
		apiKey:     strings.TrimSpace(apiKey),
		limiter:    limiter,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// Configured reports whether an upstream credential is present.
func (c *APIFootballClient) Configured() bool { return c.apiKey != "" }

// FetchFixtures returns the fixtures for one date and league.
func (c *APIFootballClient) FetchFixtures(ctx context.Context, date string, leagueID int) ([]models.Match, error) {
	params := url.Values{}
	params.Set("date", date)
	params.Set("league", strconv.Itoa(leagueID))

	body, err := c.requestJSON(ctx, "fixtures", params)
	if err != nil {
		return nil, err
	}

	var envelope fixturesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &UpstreamError{Reason: fmt.Sprintf("malformed fixtures response payload: %v", err)}
	}
	if envelope.Errors.HasErrors() {
		text := envelope.Errors.Text()
		return nil, &UpstreamError{Reason: text, QuotaExceeded: isQuotaExceeded(text)}
	}
	return envelope.Response, nil
}

// FetchStandings returns the ranked table for one league and season.
func (c *APIFootballClient) FetchStandings(ctx context.Context, leagueID, season int) ([]StandingRow, error) {
	params := url.Values{}
	params.Set("league", strconv.Itoa(leagueID))
	params.Set("season", strconv.Itoa(season))

	body, err := c.requestJSON(ctx, "standings", params)
	if err != nil {
		return nil, err
	}

	var envelope standingsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &UpstreamError{Reason: fmt.Sprintf("malformed standings response payload: %v", err)}
	}
	if envelope.Errors.HasErrors() {
		text := envelope.Errors.Text()
		return nil, &UpstreamError{Reason: text, QuotaExceeded: isQuotaExceeded(text)}
	}
	if len(envelope.Response) == 0 || len(envelope.Response[0].League.Standings) == 0 {
		return nil, &UpstreamError{Reason: "standings payload has no table"}
	}
	return envelope.Response[0].League.Standings[0], nil
}

func (c *APIFootballClient) requestJSON(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &UpstreamError{Reason: fmt.Sprintf("request throttled: %v", err)}
		}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, path, params)
	})
	if err != nil {
		var upstreamErr *UpstreamError
		if errors.As(err, &upstreamErr) {
			return nil, upstreamErr
		}
		return nil, &UpstreamError{Reason: err.Error()}
	}
	return result.([]byte), nil
}

func (c *APIFootballClient) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &UpstreamError{Reason: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("x-rapidapi-host", apiFootballHost)
	req.Header.Set("x-apisports-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &UpstreamError{Reason: fmt.Sprintf("failed reading response body: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := fmt.Sprintf("upstream returned status %d", resp.StatusCode)
		return nil, &UpstreamError{
			Reason:        reason,
			QuotaExceeded: resp.StatusCode == http.StatusTooManyRequests || isQuotaExceeded(string(body)),
		}
	}
	return body, nil
}
