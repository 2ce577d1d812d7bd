// ABOUTME: HTTP client for the Oura v2 usercollection API
// ABOUTME: Provides typed daily sleep/readiness/resilience reads and credential probing

package oura

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the production Oura v2 usercollection API root.
const DefaultBaseURL = "https://api.oura.com/v2/usercollection"

// validationWindow is how far back the credential probe looks for sleep data.
const validationWindow = 7 * 24 * time.Hour

// ErrInvalidToken indicates the Oura API rejected the access token.
var ErrInvalidToken = errors.New("invalid oura access token")

// APIError represents a non-success response from the Oura API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oura api request failed: %d - %s", e.StatusCode, e.Message)
}

// DateRange carries the optional query parameters accepted by the daily
// document endpoints. Empty fields are omitted from the request.
type DateRange struct {
	StartDate string
	EndDate   string
	NextToken string
}

// SleepContributors are the component scores of a daily sleep document.
type SleepContributors struct {
	DeepSleep   int `json:"deep_sleep"`
	Efficiency  int `json:"efficiency"`
	Latency     int `json:"latency"`
	RemSleep    int `json:"rem_sleep"`
	Restfulness int `json:"restfulness"`
	Timing      int `json:"timing"`
	TotalSleep  int `json:"total_sleep"`
}

// SleepEntry is one daily sleep document.
type SleepEntry struct {
	ID           string            `json:"id"`
	Contributors SleepContributors `json:"contributors"`
	Day          string            `json:"day"`
	Score        int               `json:"score"`
	Timestamp    string            `json:"timestamp"`
}

// SleepData is the response for the daily_sleep endpoint.
type SleepData struct {
	Sleep     []SleepEntry `json:"sleep"`
	NextToken string       `json:"next_token,omitempty"`
}

// RecoveryContributors are the component scores shared by the readiness and
// resilience documents.
type RecoveryContributors struct {
	ActivityBalance     int `json:"activity_balance"`
	BodyTemperature     int `json:"body_temperature"`
	HRVBalance          int `json:"hrv_balance"`
	PreviousDayActivity int `json:"previous_day_activity"`
	PreviousNight       int `json:"previous_night"`
	RecoveryIndex       int `json:"recovery_index"`
	RestingHeartRate    int `json:"resting_heart_rate"`
	SleepBalance        int `json:"sleep_balance"`
}

// RecoveryEntry is one daily readiness or resilience document.
type RecoveryEntry struct {
	ID                   string               `json:"id"`
	Contributors         RecoveryContributors `json:"contributors"`
	Day                  string               `json:"day"`
	Score                int                  `json:"score"`
	TemperatureDeviation float64              `json:"temperature_deviation"`
	Timestamp            string               `json:"timestamp"`
}

// ReadinessData is the response for the daily_readiness endpoint.
type ReadinessData struct {
	Readiness []RecoveryEntry `json:"readiness"`
	NextToken string          `json:"next_token,omitempty"`
}

// ResilienceData is the response for the daily_resilience endpoint.
type ResilienceData struct {
	Resilience []RecoveryEntry `json:"resilience"`
	NextToken  string          `json:"next_token,omitempty"`
}

// Config holds configuration for the Oura client.
type Config struct {
	// Token is the bearer credential sent on every request. Required.
	Token string

	// BaseURL overrides DefaultBaseURL (used in tests).
	BaseURL string

	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is not supplied.
	Timeout time.Duration

	Logger *slog.Logger
}

// Client performs time-ranged reads against the Oura v2 API.
// It is stateless apart from the credential and safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an Oura client for the given configuration.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     logger.With("component", "oura"),
	}
}

// get performs an authenticated GET against the given endpoint and decodes
// the JSON body into out. Non-2xx responses become *APIError.
func (c *Client) get(ctx context.Context, endpoint string, rng DateRange, out any) error {
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return fmt.Errorf("building request url: %w", err)
	}

	q := u.Query()
	if rng.StartDate != "" {
		q.Set("start_date", rng.StartDate)
	}
	if rng.EndDate != "" {
		q.Set("end_date", rng.EndDate)
	}
	if rng.NextToken != "" {
		q.Set("next_token", rng.NextToken)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oura api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding oura response: %w", err)
	}
	return nil
}

// GetSleep returns daily sleep documents for the given range.
func (c *Client) GetSleep(ctx context.Context, rng DateRange) (*SleepData, error) {
	var data SleepData
	if err := c.get(ctx, "/daily_sleep", rng, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetReadiness returns daily readiness documents for the given range.
func (c *Client) GetReadiness(ctx context.Context, rng DateRange) (*ReadinessData, error) {
	var data ReadinessData
	if err := c.get(ctx, "/daily_readiness", rng, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetResilience returns daily resilience documents for the given range.
func (c *Client) GetResilience(ctx context.Context, rng DateRange) (*ResilienceData, error) {
	var data ResilienceData
	if err := c.get(ctx, "/daily_resilience", rng, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Today returns the current UTC date in YYYY-MM-DD form, the format used by
// every Oura date parameter.
func Today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// GetTodaySleep returns sleep documents with both bounds fixed to today.
func (c *Client) GetTodaySleep(ctx context.Context) (*SleepData, error) {
	today := Today()
	return c.GetSleep(ctx, DateRange{StartDate: today, EndDate: today})
}

// GetTodayReadiness returns readiness documents with both bounds fixed to today.
func (c *Client) GetTodayReadiness(ctx context.Context) (*ReadinessData, error) {
	today := Today()
	return c.GetReadiness(ctx, DateRange{StartDate: today, EndDate: today})
}

// GetTodayResilience returns resilience documents with both bounds fixed to today.
func (c *Client) GetTodayResilience(ctx context.Context) (*ResilienceData, error) {
	today := Today()
	return c.GetResilience(ctx, DateRange{StartDate: today, EndDate: today})
}

// Validate probes the API to decide whether the credential is usable.
// Only an upstream 401 marks the token invalid; any other failure (missing
// data, server errors, transport faults) is treated as "assume valid" so a
// flaky upstream does not lock out callers. Returns ErrInvalidToken on 401.
func (c *Client) Validate(ctx context.Context) error {
	end := time.Now().UTC()
	start := end.Add(-validationWindow)
	rng := DateRange{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	}

	_, err := c.GetSleep(ctx, rng)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		c.logger.Debug("token probe hit non-api error, assuming valid", "error", err)
		return nil
	}
	if apiErr.StatusCode == http.StatusUnauthorized {
		return ErrInvalidToken
	}

	// Sleep probe failed for a non-auth reason; try a second endpoint before
	// giving the credential the benefit of the doubt.
	today := Today()
	if _, err := c.GetReadiness(ctx, DateRange{StartDate: today, EndDate: today}); err != nil {
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return ErrInvalidToken
		}
	}

	c.logger.Debug("token probe inconclusive, assuming valid")
	return nil
}
