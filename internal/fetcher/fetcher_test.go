package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmetrics/districtsync/internal/resilience"
)

const statsPayload = `{
	"as_of_date": "2025-06-30",
	"districts": {
		"42": {"membership_total": 1000, "club_count": 50, "distinguished_clubs": {"distinguished": 5, "select": 3, "presidents": 2}},
		"07": {"membership_total": 800, "club_count": 40, "distinguished_clubs": {"distinguished": 4, "select": 2, "presidents": 1}}
	},
	"errors": ["district 99: rollup failed"]
}`

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func testFetcher(baseURL string) *HTTP {
	return NewHTTP(Options{
		BaseURL:   baseURL,
		RateLimit: 1000,
		Burst:     100,
		Retry:     fastRetry(2),
	})
}

func asOf(t *testing.T) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", "2025-06-30")
	require.NoError(t, err)
	return d
}

func TestFetchParsesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/districts/statistics", r.URL.Path)
		assert.Equal(t, "2025-06-30", r.URL.Query().Get("date"))
		assert.Equal(t, "districtsync/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(statsPayload))
	}))
	defer srv.Close()

	res, err := testFetcher(srv.URL).Fetch(context.Background(), asOf(t))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "2025-06-30", res.DataAsOfDate)
	assert.Len(t, res.Districts, 2)
	assert.Equal(t, 1000, res.Districts["42"].MembershipTotal)
	assert.Equal(t, 10, res.Districts["42"].DistinguishedClubs.Total())
	assert.Equal(t, []string{"district 99: rollup failed"}, res.Errors)
	assert.Equal(t, srv.URL, res.Source)
}

func TestFetchNotFoundReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res, err := testFetcher(srv.URL).Fetch(context.Background(), asOf(t))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(statsPayload))
	}))
	defer srv.Close()

	res, err := testFetcher(srv.URL).Fetch(context.Background(), asOf(t))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testFetcher(srv.URL).Fetch(context.Background(), asOf(t))
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testFetcher(srv.URL).Fetch(context.Background(), asOf(t))
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{oops"))
	}))
	defer srv.Close()

	_, err := testFetcher(srv.URL).Fetch(context.Background(), asOf(t))
	assert.Error(t, err)
}

func TestFetchStatsAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(statsPayload))
	}))
	defer srv.Close()

	stats, sourceDate, err := testFetcher(srv.URL).FetchStats(context.Background(), asOf(t))
	require.NoError(t, err)
	assert.Equal(t, "2025-06-30", sourceDate)
	assert.Len(t, stats, 2)
}

func TestFetchStatsAdapterNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := testFetcher(srv.URL).FetchStats(context.Background(), asOf(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}
