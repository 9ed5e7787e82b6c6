// Package upstream reads the analytics views from an external HTTP API.
//
// The API serves three endpoints under its base URL:
//
//	GET /timeseries?start=RFC3339&end=RFC3339
//	    [{"timestamp": "2024-03-15T10:00:00Z", "visitors": 3, "views": 5}, ...]
//	GET /heatmap?timezone=Area/City&week_start=2024-03-10
//	    [[24 numbers] x 7], Sunday first, or [{"day": 0, "hour": 5, "visitors": 2}, ...]
//	GET /locations?start=RFC3339&end=RFC3339
//	    [{"countryCode": "DE", "visitorCount": 12}, ...]
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/eringen/visitgrid/analytics"
	"github.com/eringen/visitgrid/heatmap"
	"github.com/eringen/visitgrid/intensity"
	"github.com/eringen/visitgrid/internal/logging"
	"github.com/eringen/visitgrid/timegrid"
	"github.com/eringen/visitgrid/window"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = analytics.ErrSourceUnavailable

// maxBody caps a response body.
const maxBody = 8 << 20

// Config configures a Client.
type Config struct {
	BaseURL          string
	Token            string
	Timeout          time.Duration
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// Client implements analytics.Source over HTTP.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

var _ analytics.Source = (*Client)(nil)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Body)
}

// New creates a client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream base url %q: invalid", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	log := logging.WithComponent("upstream")
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "analytics-upstream",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Client errors say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &Client{
		base:    base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}, nil
}

// State reports the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := *c.base
	u.Path += path
	u.RawQuery = params.Encode()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b[:min(len(b), 200)]))}
		}
		return b, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("GET %s: %w", path, ErrUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return body, nil
}

func span(from, to time.Time) url.Values {
	return url.Values{
		"start": {from.UTC().Format(time.RFC3339)},
		"end":   {to.UTC().Format(time.RFC3339)},
	}
}

type wirePoint struct {
	Timestamp string `json:"timestamp"`
	Visitors  int    `json:"visitors"`
	Views     int    `json:"views"`
}

// TimeSeries fetches points in [from, to). Points with unparseable
// timestamps are skipped and logged.
func (c *Client) TimeSeries(ctx context.Context, from, to time.Time) ([]timegrid.TimePoint, error) {
	body, err := c.get(ctx, "/timeseries", span(from, to))
	if err != nil {
		return nil, err
	}
	var wire []wirePoint
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode timeseries: %w", err)
	}

	points := make([]timegrid.TimePoint, 0, len(wire))
	for _, w := range wire {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			logging.Ctx(ctx).Warn().Str("timestamp", w.Timestamp).Msg("upstream: skipping point with bad timestamp")
			continue
		}
		points = append(points, timegrid.TimePoint{Timestamp: ts, Visitors: w.Visitors, Views: w.Views})
	}
	return points, nil
}

// Weekly fetches the matrix for the week containing now, asking the API to
// bucket in now's location. Both the dense and the sparse shapes are accepted.
func (c *Client) Weekly(ctx context.Context, now time.Time) (heatmap.WeeklyMatrix, error) {
	body, err := c.get(ctx, "/heatmap", url.Values{
		"timezone":   {now.Location().String()},
		"week_start": {window.StartOfWeek(now).Format(time.DateOnly)},
	})
	if err != nil {
		return nil, err
	}
	return decodeMatrix(ctx, body)
}

func decodeMatrix(ctx context.Context, body []byte) (heatmap.WeeklyMatrix, error) {
	trimmed := bytes.TrimSpace(body)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		return nil, nil
	}

	var dense heatmap.WeeklyMatrix
	denseErr := json.Unmarshal(trimmed, &dense)
	if denseErr == nil {
		return dense, nil
	}
	var sparse []heatmap.CellCount
	if err := json.Unmarshal(trimmed, &sparse); err != nil {
		return nil, fmt.Errorf("decode heatmap: %w", denseErr)
	}
	m, rejected := heatmap.FromCells(sparse)
	if rejected > 0 {
		logging.Ctx(ctx).Warn().Int("rejected", rejected).Msg("upstream: heatmap cells out of range")
	}
	return m, nil
}

// Countries fetches per-country visitor counts in [from, to).
func (c *Client) Countries(ctx context.Context, from, to time.Time) ([]intensity.CountryCount, error) {
	body, err := c.get(ctx, "/locations", span(from, to))
	if err != nil {
		return nil, err
	}
	var counts []intensity.CountryCount
	if err := json.Unmarshal(body, &counts); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	return counts, nil
}
