// Package priceindex loads annual price index values from files, the BLS API
// or the dataset store.
package priceindex

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/okian/boxoffice/internal/domain/currency"
)

// Sentinel kinds for price index loading.
var (
	ErrEmpty     = errors.New("price index source returned no points")
	ErrMalformed = errors.New("malformed price index")
)

// Source yields annual index points.
type Source interface {
	Load(ctx context.Context) ([]currency.Point, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]currency.Point, error)

// Load implements Source.
func (f SourceFunc) Load(ctx context.Context) ([]currency.Point, error) { return f(ctx) }

// FileSource reads "year,value" rows from a CSV file. A header row is allowed.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load(_ context.Context) ([]currency.Point, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open price index: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV reads "year,value" rows. Lines starting with # are comments.
func ParseCSV(r io.Reader) ([]currency.Point, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []currency.Point
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrMalformed, line, len(rec))
		}
		year, yerr := strconv.Atoi(strings.TrimSpace(rec[0]))
		value, verr := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if yerr != nil || verr != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformed, line, strings.Join(rec, ","))
		}
		out = append(out, currency.Point{Year: year, Value: value})
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

// Cached loads from its source once and serves the same points afterwards.
// A failed load is not cached.
type Cached struct {
	src    Source
	mu     sync.Mutex
	points []currency.Point
}

// NewCached wraps src.
func NewCached(src Source) *Cached {
	return &Cached{src: src}
}

// Load implements Source.
func (c *Cached) Load(ctx context.Context) ([]currency.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.points != nil {
		return clonePoints(c.points), nil
	}
	pts, err := c.src.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, ErrEmpty
	}
	c.points = clonePoints(pts)
	return clonePoints(pts), nil
}

func clonePoints(p []currency.Point) []currency.Point {
	return append([]currency.Point(nil), p...)
}

// Store is the part of the dataset store that holds a saved index.
type Store interface {
	PriceIndex(ctx context.Context) ([]currency.Point, error)
}

// StoreSource reads the index previously saved to the dataset store.
type StoreSource struct {
	Store Store
}

// Load implements Source.
func (s StoreSource) Load(ctx context.Context) ([]currency.Point, error) {
	pts, err := s.Store.PriceIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored price index: %w", err)
	}
	return pts, nil
}
