package tmdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/boxoffice/internal/domain/dedupe"
	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/pkg/logger"
	"github.com/okian/boxoffice/pkg/metrics"
)

const defaultPagesPerYear = 5

// Runner executes independent tasks and returns the first error.
type Runner interface {
	RunAll(ctx context.Context, tasks []func(ctx context.Context) error) error
}

type sequential struct{}

func (sequential) RunAll(ctx context.Context, tasks []func(ctx context.Context) error) error {
	for _, t := range tasks {
		if err := t(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Source is what the fetcher needs from a client.
type Source interface {
	Discover(ctx context.Context, year, page int) (DiscoverPage, error)
	Movie(ctx context.Context, id int64) (model.Release, error)
}

// Fetcher walks discover pages year by year and loads each movie's details.
type Fetcher struct {
	source Source
	runner Runner
	seen   dedupe.Deduper
	pages  int
	logger logger.Logger
}

// FetcherOption applies a configuration option to the Fetcher.
type FetcherOption func(*Fetcher)

// WithRunner runs detail fetches on r, typically the worker pool.
func WithRunner(r Runner) FetcherOption {
	return func(f *Fetcher) {
		if r != nil {
			f.runner = r
		}
	}
}

// WithPagesPerYear sets how many discover pages are read per year.
func WithPagesPerYear(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.pages = n
		}
	}
}

// WithDeduper shares a deduper across fetches, for example to skip IDs
// already in the dataset.
func WithDeduper(d dedupe.Deduper) FetcherOption {
	return func(f *Fetcher) {
		if d != nil {
			f.seen = d
		}
	}
}

// NewFetcher creates a fetcher over source.
func NewFetcher(source Source, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source: source,
		runner: sequential{},
		seen:   dedupe.NewInMemoryDeduper(),
		pages:  defaultPagesPerYear,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logger.Get().Named("tmdb-fetcher")
	return f
}

// FetchYears returns the releases of years from..to inclusive in discover
// order. A movie whose details cannot be loaded is skipped and logged; a
// failing discover page, a rejected key or an open breaker aborts the fetch.
func (f *Fetcher) FetchYears(ctx context.Context, from, to int) ([]model.Release, error) {
	if from > to {
		return nil, fmt.Errorf("invalid year range %d..%d", from, to)
	}

	var ids []int64
	for year := from; year <= to; year++ {
		for page := 1; page <= f.pages; page++ {
			p, err := f.source.Discover(ctx, year, page)
			if err != nil {
				return nil, fmt.Errorf("discover %d page %d: %w", year, page, err)
			}
			for _, id := range p.IDs {
				if f.seen.SeenAndRecord(ctx, fmt.Sprint(id)) {
					metrics.RecordRecordDuplicate()
					continue
				}
				ids = append(ids, id)
			}
			if page >= p.TotalPages {
				break
			}
		}
		f.logger.Debug(ctx, "discovered year", logger.Int("year", year), logger.Int("ids", len(ids)))
	}

	slots := make([]*model.Release, len(ids))
	tasks := make([]func(context.Context) error, len(ids))
	for i, id := range ids {
		tasks[i] = func(ctx context.Context) error {
			r, err := f.source.Movie(ctx, id)
			if err != nil {
				if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrUnauthorized) ||
					errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				f.seen.Unrecord(ctx, fmt.Sprint(id))
				f.logger.Warn(ctx, "skipping movie", logger.Int64("id", id), logger.Error(err))
				return nil
			}
			slots[i] = &r
			return nil
		}
	}
	if err := f.runner.RunAll(ctx, tasks); err != nil {
		return nil, err
	}

	out := make([]model.Release, 0, len(ids))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	metrics.RecordRecordsIngested("tmdb", len(out))
	f.logger.Info(ctx, "fetched releases",
		logger.Int("from", from), logger.Int("to", to),
		logger.Int("discovered", len(ids)), logger.Int("fetched", len(out)))
	return out, nil
}
