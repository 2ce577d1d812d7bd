// ABOUTME: Tests for the Oura API client against a local httptest server
// ABOUTME: Covers query parameter passing, error classification, and token probing

package oura

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-oura-token"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{Token: testToken, BaseURL: srv.URL})
}

func TestGetSleep_PassesParams(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sleep":[{"id":"s1","day":"2026-08-30","score":82}],"next_token":"abc"}`))
	})

	data, err := client.GetSleep(context.Background(), DateRange{
		StartDate: "2026-08-01",
		EndDate:   "2026-08-30",
		NextToken: "page2",
	})
	require.NoError(t, err)

	assert.Equal(t, "/daily_sleep", gotPath)
	assert.Equal(t, "Bearer "+testToken, gotAuth)
	assert.Equal(t, []string{"2026-08-01"}, gotQuery["start_date"])
	assert.Equal(t, []string{"2026-08-30"}, gotQuery["end_date"])
	assert.Equal(t, []string{"page2"}, gotQuery["next_token"])

	require.Len(t, data.Sleep, 1)
	assert.Equal(t, "s1", data.Sleep[0].ID)
	assert.Equal(t, 82, data.Sleep[0].Score)
	assert.Equal(t, "abc", data.NextToken)
}

func TestGetSleep_OmitsEmptyParams(t *testing.T) {
	var gotRawQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotRawQuery = r.URL.RawQuery
		w.Write([]byte(`{"sleep":[]}`))
	})

	_, err := client.GetSleep(context.Background(), DateRange{})
	require.NoError(t, err)
	assert.Empty(t, gotRawQuery)
}

func TestGetReadinessAndResilience_Endpoints(t *testing.T) {
	paths := make([]string, 0, 2)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{"readiness":[],"resilience":[]}`))
	})

	_, err := client.GetReadiness(context.Background(), DateRange{})
	require.NoError(t, err)
	_, err = client.GetResilience(context.Background(), DateRange{})
	require.NoError(t, err)

	assert.Equal(t, []string{"/daily_readiness", "/daily_resilience"}, paths)
}

func TestGet_NonSuccessBecomesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	})

	_, err := client.GetSleep(context.Background(), DateRange{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "too many requests")
}

func TestTodayHelpers_PinBothBoundsToToday(t *testing.T) {
	today := time.Now().UTC().Format("2006-01-02")

	var gotStart, gotEnd string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start_date")
		gotEnd = r.URL.Query().Get("end_date")
		w.Write([]byte(`{"sleep":[]}`))
	})

	_, err := client.GetTodaySleep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, today, gotStart)
	assert.Equal(t, today, gotEnd)

	// A second invocation within the same day must produce identical bounds.
	_, err = client.GetTodaySleep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, today, gotStart)
	assert.Equal(t, today, gotEnd)
}

func TestValidate_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sleep":[]}`))
	})

	assert.NoError(t, client.Validate(context.Background()))
}

func TestValidate_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	err := client.Validate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestValidate_NonAuthFailureAssumesValid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	// 404s on both probe endpoints mean "no data", not "bad credential".
	assert.NoError(t, client.Validate(context.Background()))
}

func TestValidate_FallbackProbeCatches401(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/daily_sleep" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	err := client.Validate(context.Background())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_TransportErrorAssumesValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := New(Config{Token: testToken, BaseURL: srv.URL})
	assert.NoError(t, client.Validate(context.Background()))
}
