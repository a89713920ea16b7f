// Package currency converts nominal amounts to a reference year's purchasing power.
package currency

import (
	"fmt"
	"math"
	"sort"
)

// Point is one annual index value.
type Point struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// Index is an immutable annual price index (e.g. CPI-U annual averages).
type Index struct {
	values map[int]float64
	first  int
	last   int
}

// NewIndex validates points and builds an Index. Duplicate years and
// non-positive or non-finite values are rejected.
func NewIndex(points []Point) (*Index, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrInvalidIndex)
	}
	idx := &Index{values: make(map[int]float64, len(points)), first: math.MaxInt, last: math.MinInt}
	for _, p := range points {
		if p.Value <= 0 || math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, fmt.Errorf("%w: year %d has value %v", ErrInvalidIndex, p.Year, p.Value)
		}
		if _, dup := idx.values[p.Year]; dup {
			return nil, fmt.Errorf("%w: duplicate year %d", ErrInvalidIndex, p.Year)
		}
		idx.values[p.Year] = p.Value
		idx.first = min(idx.first, p.Year)
		idx.last = max(idx.last, p.Year)
	}
	return idx, nil
}

// Span returns the first and last indexed years.
func (i *Index) Span() (first, last int) { return i.first, i.last }

// Value returns the index value for year. Years after the last indexed year
// use the last value.
func (i *Index) Value(year int) (float64, error) {
	if year < i.first {
		return 0, &OutOfRangeError{Year: year, First: i.first, Last: i.last, Reason: "before_first"}
	}
	if year > i.last {
		return i.values[i.last], nil
	}
	v, ok := i.values[year]
	if !ok {
		return 0, &OutOfRangeError{Year: year, First: i.first, Last: i.last, Reason: "gap"}
	}
	return v, nil
}

// Points returns the index sorted by year.
func (i *Index) Points() []Point {
	out := make([]Point, 0, len(i.values))
	for y, v := range i.values {
		out = append(out, Point{Year: y, Value: v})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Year < out[b].Year })
	return out
}

// Len is the number of indexed years.
func (i *Index) Len() int { return len(i.values) }
