package talent

import (
	"slices"
	"time"
)

// Credit is one release credited to a person in a role.
type Credit struct {
	ReleaseID string
	Date      time.Time
	Revenue   *float64 // adjusted revenue; nil when not yet known
}

// Scored pairs a release with the score emitted for it.
type Scored struct {
	ReleaseID string
	Score     Score
}

// creditLess orders credits by date, then release ID.
func creditLess(aDate time.Time, aID string, bDate time.Time, bID string) bool {
	if !aDate.Equal(bDate) {
		return aDate.Before(bDate)
	}
	return aID < bID
}

// SortCredits orders credits by (date, release ID) ascending.
func SortCredits(cs []Credit) {
	slices.SortFunc(cs, func(a, b Credit) int {
		switch {
		case creditLess(a.Date, a.ReleaseID, b.Date, b.ReleaseID):
			return -1
		case creditLess(b.Date, b.ReleaseID, a.Date, a.ReleaseID):
			return 1
		}
		return 0
	})
}

type pendingOutcome struct {
	releaseID string
	date      time.Time
	revenue   float64
}

// Accumulator is the per-person running state. It is a value: Step never
// mutates the receiver and returns the successor state.
type Accumulator struct {
	personID string
	window   int
	settle   time.Duration

	// all-history statistic (window == 0)
	count int
	sum   float64
	// last-K statistic (window > 0), oldest first
	recent []float64

	// outcomes not yet settled relative to the last emitted release, in order
	pending []pendingOutcome

	started  bool
	lastDate time.Time
	lastID   string
}

// NewAccumulator starts an empty accumulator for personID under policy p.
func NewAccumulator(personID string, p Policy) Accumulator {
	return Accumulator{personID: personID, window: p.Window, settle: p.settle()}
}

// Step emits the score for c from the current state, then folds c's outcome
// into the successor state. Credits must arrive ordered by (date, release ID).
func (a Accumulator) Step(c Credit) (Score, Accumulator, error) {
	if a.started && !creditLess(a.lastDate, a.lastID, c.Date, c.ReleaseID) {
		return NoHistory, a, &LeakageViolationError{
			PersonID: a.personID, ReleaseID: c.ReleaseID, PriorID: a.lastID, Reason: "unordered",
		}
	}

	next := a
	settled := 0
	for settled < len(a.pending) && a.pending[settled].date.Add(a.settle).Before(c.Date) {
		p := a.pending[settled]
		if !p.date.Before(c.Date) {
			return NoHistory, a, &LeakageViolationError{
				PersonID: a.personID, ReleaseID: c.ReleaseID, PriorID: p.releaseID, Reason: "settled_not_prior",
			}
		}
		next = next.absorb(p.revenue)
		settled++
	}

	score := next.emit()

	next.pending = slices.Clone(a.pending[settled:])
	if c.Revenue != nil {
		next.pending = append(next.pending, pendingOutcome{releaseID: c.ReleaseID, date: c.Date, revenue: *c.Revenue})
	}
	next.started = true
	next.lastDate = c.Date
	next.lastID = c.ReleaseID
	return score, next, nil
}

func (a Accumulator) absorb(v float64) Accumulator {
	if a.window == 0 {
		a.count++
		a.sum += v
		return a
	}
	recent := make([]float64, 0, a.window)
	if len(a.recent) >= a.window {
		recent = append(recent, a.recent[len(a.recent)-a.window+1:]...)
	} else {
		recent = append(recent, a.recent...)
	}
	a.recent = append(recent, v)
	return a
}

func (a Accumulator) emit() Score {
	if a.window == 0 {
		if a.count == 0 {
			return NoHistory
		}
		return Known(a.sum/float64(a.count), a.count)
	}
	if len(a.recent) == 0 {
		return NoHistory
	}
	var sum float64
	for _, v := range a.recent {
		sum += v
	}
	return Known(sum/float64(len(a.recent)), len(a.recent))
}

// Aggregator turns a person's ordered credits into per-release scores.
type Aggregator struct {
	Policy Policy
}

// Scores emits one score per credit, each from strictly-prior settled
// outcomes only. Unordered input yields a LeakageViolationError.
func (g Aggregator) Scores(personID string, releases []Credit) ([]Scored, error) {
	acc := NewAccumulator(personID, g.Policy)
	out := make([]Scored, 0, len(releases))
	for _, c := range releases {
		score, next, err := acc.Step(c)
		if err != nil {
			return nil, err
		}
		out = append(out, Scored{ReleaseID: c.ReleaseID, Score: score})
		acc = next
	}
	return out, nil
}
