// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Money is a nominal amount in the currency of a given year.
type Money struct {
	Amount float64
	Year   int // zero means "the release year"
}

// Person is a credited individual. ID is opaque (TMDB person ids are used as strings).
type Person struct {
	ID   string
	Name string
}

// PostRelease holds figures only known after release. It is stored with the
// release for reporting and never reaches a feature vector.
type PostRelease struct {
	Popularity  float64
	VoteAverage float64
	VoteCount   int
}

// Release is one film as read from a raw record source.
type Release struct {
	ID          string
	Title       string
	ReleaseDate time.Time
	Budget      Money
	Revenue     *Money // nil for inference records and unsettled titles
	Genres      []string
	Runtime     float64  // minutes
	Cast        []Person // ordered by billing
	Directors   []Person
	Collection  string // franchise name; empty when standalone
	Post        PostRelease
}

// Year is the calendar year of release; zero when the date is unknown.
func (r Release) Year() int {
	if r.ReleaseDate.IsZero() {
		return 0
	}
	return r.ReleaseDate.Year()
}

// BudgetYear is the year the budget is denominated in.
func (r Release) BudgetYear() int {
	if r.Budget.Year != 0 {
		return r.Budget.Year
	}
	return r.Year()
}

// RevenueYear is the year the revenue is denominated in; zero without revenue.
func (r Release) RevenueYear() int {
	if r.Revenue == nil {
		return 0
	}
	if r.Revenue.Year != 0 {
		return r.Revenue.Year
	}
	return r.Year()
}

// IsFranchise reports membership in a collection.
func (r Release) IsFranchise() bool {
	return strings.TrimSpace(r.Collection) != ""
}

// NormalizedRelease is a release with amounts in reference-year money.
type NormalizedRelease struct {
	Release
	BudgetAdj  float64
	RevenueAdj *float64 // nil when revenue is unknown
}
