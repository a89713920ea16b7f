// Package synth generates reproducible synthetic release catalogs with a
// matching price index, for demos and tests that must not touch the network.
package synth

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/model"
)

// genreEffect is the log-revenue shift of each synthetic genre.
var genreEffect = map[string]float64{
	"Action":          0.25,
	"Adventure":       0.30,
	"Animation":       0.35,
	"Comedy":          0.00,
	"Drama":           -0.30,
	"Family":          0.20,
	"Horror":          0.10,
	"Romance":         -0.20,
	"Science Fiction": 0.20,
	"Thriller":        -0.05,
}

// Config shapes a generated catalog.
type Config struct {
	Releases      int
	StartYear     int
	EndYear       int
	Directors     int
	Actors        int
	ReferenceYear int
	// UnknownRevenue is the share of releases whose revenue is left unknown.
	UnknownRevenue float64
	Seed           int64
}

// DefaultConfig returns a catalog of 1200 releases over 2000-2024.
func DefaultConfig() Config {
	return Config{
		Releases:      1200,
		StartYear:     2000,
		EndYear:       2024,
		Directors:     150,
		Actors:        400,
		ReferenceYear: 2024,
		Seed:          7,
	}
}

// Validate rejects configs that cannot produce a catalog.
func (c Config) Validate() error {
	switch {
	case c.Releases < 1:
		return fmt.Errorf("%w: releases %d", ErrInvalidConfig, c.Releases)
	case c.StartYear > c.EndYear:
		return fmt.Errorf("%w: years %d..%d", ErrInvalidConfig, c.StartYear, c.EndYear)
	case c.Directors < 1 || c.Actors < 3:
		return fmt.Errorf("%w: %d directors, %d actors", ErrInvalidConfig, c.Directors, c.Actors)
	case c.UnknownRevenue < 0 || c.UnknownRevenue >= 1:
		return fmt.Errorf("%w: unknown revenue share %v", ErrInvalidConfig, c.UnknownRevenue)
	}
	return nil
}

// PriceIndex returns annual values growing 2.5% a year from 172.2 in 2000,
// covering from..to.
func PriceIndex(from, to int) []currency.Point {
	out := make([]currency.Point, 0, to-from+1)
	for y := from; y <= to; y++ {
		v := 172.2 * math.Pow(1.025, float64(y-2000))
		out = append(out, currency.Point{Year: y, Value: math.Round(v*1000) / 1000})
	}
	return out
}

// Catalog generates cfg.Releases releases. Revenue follows budget, genre,
// season, franchise membership and latent director and lead-actor effects,
// so a model has real signal to find. The same config always yields the
// same catalog.
func Catalog(cfg Config) ([]model.Release, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible data, not security
	points := PriceIndex(min(cfg.StartYear, cfg.ReferenceYear), max(cfg.EndYear, cfg.ReferenceYear))
	index := make(map[int]float64, len(points))
	for _, p := range points {
		index[p.Year] = p.Value
	}

	directorSkill := make([]float64, cfg.Directors)
	for i := range directorSkill {
		directorSkill[i] = rng.NormFloat64() * 0.5
	}
	actorPower := make([]float64, cfg.Actors)
	for i := range actorPower {
		actorPower[i] = rng.NormFloat64() * 0.4
	}
	genres := make([]string, 0, len(genreEffect))
	for g := range genreEffect {
		genres = append(genres, g)
	}
	sort.Strings(genres)

	start := time.Date(cfg.StartYear, 1, 1, 0, 0, 0, 0, time.UTC)
	days := int(time.Date(cfg.EndYear, 12, 31, 0, 0, 0, 0, time.UTC).Sub(start).Hours()/24) + 1
	collections := 0

	out := make([]model.Release, 0, cfg.Releases)
	for i := 0; i < cfg.Releases; i++ {
		date := start.AddDate(0, 0, rng.Intn(days))
		realBudget := math.Exp(16.5 + rng.NormFloat64()*1.0) // ~15M median
		director := rng.Intn(cfg.Directors)

		castSize := 3 + rng.Intn(4)
		cast := pickDistinct(rng, cfg.Actors, castSize)

		nGenres := 1 + rng.Intn(3)
		picked := pickDistinct(rng, len(genres), nGenres)
		rel := model.Release{
			ID:          fmt.Sprintf("syn-%05d", i+1),
			Title:       fmt.Sprintf("Synthetic Feature %d", i+1),
			ReleaseDate: date,
			Runtime:     float64(85 + rng.Intn(70)),
			Directors:   []model.Person{person("dir", director)},
		}
		effect := directorSkill[director] + actorPower[cast[0]]
		for _, g := range picked {
			rel.Genres = append(rel.Genres, genres[g])
			effect += genreEffect[genres[g]]
		}
		for _, a := range cast {
			rel.Cast = append(rel.Cast, person("act", a))
		}
		if rng.Float64() < 0.2 {
			collections++
			rel.Collection = fmt.Sprintf("Synthetic Saga %d", collections)
			effect += 0.5
		}
		switch date.Month() {
		case time.May, time.June, time.July:
			effect += 0.3
		case time.November, time.December:
			effect += 0.2
		case time.January, time.February, time.September:
			effect -= 0.2
		}

		deflate := index[date.Year()] / index[cfg.ReferenceYear]
		rel.Budget = model.Money{Amount: math.Round(realBudget * deflate)}
		if rng.Float64() >= cfg.UnknownRevenue {
			realRevenue := realBudget * math.Exp(0.8+effect+rng.NormFloat64()*0.45)
			rel.Revenue = &model.Money{Amount: math.Round(realRevenue * deflate)}
		}
		rel.Post = model.PostRelease{
			Popularity:  math.Round(math.Exp(2+effect+rng.NormFloat64()*0.3)*10) / 10,
			VoteAverage: math.Round((6.2+effect+rng.NormFloat64()*0.6)*10) / 10,
			VoteCount:   50 + rng.Intn(20000),
		}
		out = append(out, rel)
	}
	return out, nil
}

func person(prefix string, i int) model.Person {
	return model.Person{ID: fmt.Sprintf("%s-%04d", prefix, i+1), Name: fmt.Sprintf("Synthetic %s %d", prefix, i+1)}
}

// pickDistinct returns k distinct indexes in [0, n), in pick order.
func pickDistinct(rng *rand.Rand, n, k int) []int {
	k = min(k, n)
	seen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for len(out) < k {
		i := rng.Intn(n)
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}
