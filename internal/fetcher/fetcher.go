// Package fetcher retrieves district statistics from the upstream
// dashboard API. The roll-up formulas behind the figures are upstream's
// concern; this package only moves them.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clubmetrics/districtsync/internal/model"
	"github.com/clubmetrics/districtsync/internal/resilience"
)

// Result is one upstream fetch: every district's statistics plus
// provenance for snapshot metadata.
type Result struct {
	Districts    map[string]model.DistrictStatistics
	Source       string
	FetchedAt    time.Time
	DataAsOfDate string
	// Errors lists districts the upstream reported but could not compute.
	Errors []string
}

// StatsFetcher retrieves district statistics for a reporting date.
type StatsFetcher interface {
	Fetch(ctx context.Context, asOf time.Time) (*Result, error)
}

// Options configures the HTTP fetcher.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RateLimit is requests per second against the upstream host.
	RateLimit float64
	Burst     int
	Retry     resilience.RetryConfig
}

// HTTP implements StatsFetcher against the upstream JSON endpoint with
// rate limiting and retry-with-backoff.
type HTTP struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewHTTP creates an HTTP stats fetcher.
func NewHTTP(opts Options) *HTTP {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "districtsync/1.0"
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}
	return &HTTP{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
	}
}

// upstreamPayload mirrors the upstream response document.
type upstreamPayload struct {
	AsOfDate  string                              `json:"as_of_date"`
	Districts map[string]model.DistrictStatistics `json:"districts"`
	Errors    []string                            `json:"errors,omitempty"`
}

// Fetch returns all districts' statistics for the reporting date. Returns
// nil when the upstream has no data for the date (404).
func (f *HTTP) Fetch(ctx context.Context, asOf time.Time) (*Result, error) {
	url := fmt.Sprintf("%s/districts/statistics?date=%s", f.opts.BaseURL, asOf.Format("2006-01-02"))

	payload, err := resilience.DoVal(ctx, f.opts.Retry, "fetch district statistics",
		func(ctx context.Context) (*upstreamPayload, error) {
			return f.fetchOnce(ctx, url)
		})
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}

	zap.L().Info("district statistics fetched",
		zap.String("component", "fetcher"),
		zap.String("as_of", payload.AsOfDate),
		zap.Int("districts", len(payload.Districts)),
		zap.Int("errors", len(payload.Errors)),
	)

	return &Result{
		Districts:    payload.Districts,
		Source:       f.opts.BaseURL,
		FetchedAt:    time.Now().UTC(),
		DataAsOfDate: payload.AsOfDate,
		Errors:       payload.Errors,
	}, nil
}

func (f *HTTP) fetchOnce(ctx context.Context, url string) (*upstreamPayload, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, resilience.NewTransientError(
			eris.Errorf("fetcher: http %d from %s", resp.StatusCode, url), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: read body"), 0)
	}

	var payload upstreamPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "fetcher: parse response")
	}
	return &payload, nil
}

// FetchStats adapts Fetch to the reconciliation runner's StatsSource
// contract.
func (f *HTTP) FetchStats(ctx context.Context, asOf time.Time) (map[string]model.DistrictStatistics, string, error) {
	res, err := f.Fetch(ctx, asOf)
	if err != nil {
		return nil, "", err
	}
	if res == nil {
		return nil, "", eris.Errorf("fetcher: upstream has no data for %s", asOf.Format("2006-01-02"))
	}
	return res.Districts, res.DataAsOfDate, nil
}
