// Package repository persists the raw release dataset and price index.
package repository

import (
	"context"

	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/model"
)

// UpsertResult counts what a batch write did.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// Store provides read/write access to the raw dataset.
type Store interface {
	// UpsertReleases writes releases keyed by ID, replacing their credits.
	UpsertReleases(ctx context.Context, releases []model.Release) (UpsertResult, error)

	// Release returns one release. Returns ErrNotFound if the ID is unknown.
	Release(ctx context.Context, id string) (model.Release, error)

	// Releases returns every release ordered by release date, then ID.
	Releases(ctx context.Context) ([]model.Release, error)

	// Count returns the number of stored releases.
	Count(ctx context.Context) (int, error)

	// SavePriceIndex replaces the stored price index.
	SavePriceIndex(ctx context.Context, points []currency.Point) error

	// PriceIndex returns the stored index sorted by year.
	// Returns ErrNoPriceIndex when none was saved.
	PriceIndex(ctx context.Context) ([]currency.Point, error)

	Close() error
}
