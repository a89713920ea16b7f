// Package tmdb fetches release records from The Movie Database API.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/okian/boxoffice/pkg/metrics"
)

// Default client configuration constants.
const (
	DefaultBaseURL       = "https://api.themoviedb.org/3"
	defaultLanguage      = "en-US"
	defaultRegion        = "US"
	defaultRatePerSecond = 4
	defaultHTTPTimeout   = 15 * time.Second
	breakerName          = "tmdb"
	maxErrorBody         = 512
)

// Sentinel kinds for TMDB errors.
var (
	ErrNotFound     = errors.New("tmdb: not found")
	ErrUnauthorized = errors.New("tmdb: unauthorized")
	ErrUpstream     = errors.New("tmdb: upstream error")
	ErrUnavailable  = errors.New("tmdb: circuit open")
)

// StatusError is an unexpected HTTP status from TMDB.
type StatusError struct {
	Code int
	Path string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb %s: status %d: %s", e.Path, e.Code, e.Body)
}

// Is maps statuses onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrUpstream:
		return true
	}
	return false
}

// Client is a rate-limited TMDB client. Calls go through a circuit breaker
// that opens after repeated upstream failures.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	language string
	region   string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(cl *Client) {
		if u != "" {
			cl.baseURL = u
		}
	}
}

// WithLanguage sets the response language.
func WithLanguage(lang string) Option {
	return func(cl *Client) {
		if lang != "" {
			cl.language = lang
		}
	}
}

// WithRegion sets the release region used by discover.
func WithRegion(region string) Option {
	return func(cl *Client) {
		if region != "" {
			cl.region = region
		}
	}
}

// WithRate limits requests per second.
func WithRate(perSecond float64) Option {
	return func(cl *Client) {
		if perSecond > 0 {
			cl.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
		}
	}
}

// NewClient creates a client for apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:  DefaultBaseURL,
		apiKey:   apiKey,
		language: defaultLanguage,
		region:   defaultRegion,
		limiter:  rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultRatePerSecond),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a missing movie is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
		},
	})
	return c
}

// get issues a GET for path and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, path, params, out)
	})
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "breaker_open"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	metrics.RecordFetch(breakerName, outcome, float64(time.Since(start).Milliseconds()))
	if err != nil && outcome == "breaker_open" {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, path string, params url.Values, out any) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("api_key", c.apiKey)
	q.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Path: path, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// DiscoverPage is one page of discover results.
type DiscoverPage struct {
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	IDs        []int64 `json:"-"`
}

// Discover lists theatrical releases of year by popularity.
func (c *Client) Discover(ctx context.Context, year, page int) (DiscoverPage, error) {
	var body struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
		Results    []struct {
			ID int64 `json:"id"`
		} `json:"results"`
	}
	params := url.Values{
		"sort_by":              {"popularity.desc"},
		"primary_release_year": {strconv.Itoa(year)},
		"page":                 {strconv.Itoa(page)},
		"with_release_type":    {"3|2"},
		"region":               {c.region},
	}
	if err := c.get(ctx, "/discover/movie", params, &body); err != nil {
		return DiscoverPage{}, err
	}
	out := DiscoverPage{Page: body.Page, TotalPages: body.TotalPages, IDs: make([]int64, 0, len(body.Results))}
	for _, r := range body.Results {
		out.IDs = append(out.IDs, r.ID)
	}
	return out, nil
}
