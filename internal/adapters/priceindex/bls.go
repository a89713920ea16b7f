package priceindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/pkg/metrics"
)

// BLS defaults. CPI-U, all items, US city average, not seasonally adjusted.
const (
	DefaultBLSBaseURL = "https://api.bls.gov/publicAPI/v2"
	DefaultSeriesID   = "CUUR0000SA0"

	annualPeriod     = "M13"
	blsSucceeded     = "REQUEST_SUCCEEDED"
	blsBreakerName   = "bls"
	yearsPerRequest  = 20
	yearsWithoutKey  = 10
	blsRatePerSecond = 1
)

// ErrBLS reports a request the BLS API refused.
var ErrBLS = errors.New("bls request failed")

// BLSSource fetches annual averages of one series from the BLS public API.
type BLSSource struct {
	http      *http.Client
	baseURL   string
	seriesID  string
	apiKey    string
	startYear int
	endYear   int
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
}

// BLSOption applies a configuration option to the BLSSource.
type BLSOption func(*BLSSource)

// WithBLSHTTPClient sets the HTTP client.
func WithBLSHTTPClient(c *http.Client) BLSOption {
	return func(s *BLSSource) {
		if c != nil {
			s.http = c
		}
	}
}

// WithBLSBaseURL points the source at another API root.
func WithBLSBaseURL(u string) BLSOption {
	return func(s *BLSSource) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithSeries selects the series to read.
func WithSeries(id string) BLSOption {
	return func(s *BLSSource) {
		if id != "" {
			s.seriesID = id
		}
	}
}

// WithAPIKey sets the registration key, which widens the per-request year span.
func WithAPIKey(key string) BLSOption {
	return func(s *BLSSource) {
		s.apiKey = key
	}
}

// NewBLSSource returns a source covering startYear..endYear.
func NewBLSSource(startYear, endYear int, opts ...BLSOption) *BLSSource {
	s := &BLSSource{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   DefaultBLSBaseURL,
		seriesID:  DefaultSeriesID,
		startYear: startYear,
		endYear:   endYear,
		limiter:   rate.NewLimiter(rate.Limit(blsRatePerSecond), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    blsBreakerName,
		Timeout: time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
		},
	})
	return s
}

type blsRequest struct {
	SeriesID        []string `json:"seriesid"`
	StartYear       string   `json:"startyear"`
	EndYear         string   `json:"endyear"`
	AnnualAverage   bool     `json:"annualaverage"`
	RegistrationKey string   `json:"registrationkey,omitempty"`
}

type blsResponse struct {
	Status  string   `json:"status"`
	Message []string `json:"message"`
	Results struct {
		Series []struct {
			SeriesID string `json:"seriesID"`
			Data     []struct {
				Year   string `json:"year"`
				Period string `json:"period"`
				Value  string `json:"value"`
			} `json:"data"`
		} `json:"series"`
	} `json:"Results"`
}

// Load implements Source. Years are requested in chunks the API accepts.
func (s *BLSSource) Load(ctx context.Context) ([]currency.Point, error) {
	if s.startYear > s.endYear {
		return nil, fmt.Errorf("%w: years %d..%d", ErrBLS, s.startYear, s.endYear)
	}
	span := yearsWithoutKey
	if s.apiKey != "" {
		span = yearsPerRequest
	}

	byYear := map[int]float64{}
	for from := s.startYear; from <= s.endYear; from += span {
		to := min(from+span-1, s.endYear)
		if err := s.fetch(ctx, from, to, byYear); err != nil {
			return nil, err
		}
	}
	if len(byYear) == 0 {
		return nil, ErrEmpty
	}
	out := make([]currency.Point, 0, len(byYear))
	for y, v := range byYear {
		out = append(out, currency.Point{Year: y, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

func (s *BLSSource) fetch(ctx context.Context, from, to int, into map[int]float64) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	res, err := s.breaker.Execute(func() (any, error) {
		return s.post(ctx, from, to)
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordFetch(blsBreakerName, outcome, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return err
	}

	body := res.(*blsResponse)
	for _, series := range body.Results.Series {
		for _, d := range series.Data {
			if d.Period != annualPeriod {
				continue
			}
			y, yerr := strconv.Atoi(d.Year)
			v, verr := strconv.ParseFloat(d.Value, 64)
			if yerr != nil || verr != nil {
				return fmt.Errorf("%w: %s %s=%q", ErrMalformed, series.SeriesID, d.Year, d.Value)
			}
			into[y] = v
		}
	}
	return nil
}

func (s *BLSSource) post(ctx context.Context, from, to int) (*blsResponse, error) {
	payload, err := json.Marshal(blsRequest{
		SeriesID:        []string{s.seriesID},
		StartYear:       strconv.Itoa(from),
		EndYear:         strconv.Itoa(to),
		AnnualAverage:   true,
		RegistrationKey: s.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode bls request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/timeseries/data/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build bls request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bls request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBLS, resp.StatusCode, msg)
	}
	var body blsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode bls response: %w", err)
	}
	if body.Status != blsSucceeded {
		return nil, fmt.Errorf("%w: %s: %s", ErrBLS, body.Status, strings.Join(body.Message, "; "))
	}
	return &body, nil
}
