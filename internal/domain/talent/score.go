// Package talent computes leakage-free track-record scores for directors and cast.
package talent

import (
	"encoding/json"
	"math"
)

// Score is a talent statistic over strictly-prior settled releases, or
// NoHistory. The zero value is NoHistory.
type Score struct {
	value float64
	count int
	known bool
}

// NoHistory marks a person with no qualifying prior release. It is distinct
// from a score of zero.
var NoHistory = Score{}

// Known builds a score from a value observed over count releases.
func Known(value float64, count int) Score {
	return Score{value: value, count: count, known: true}
}

// Value returns the statistic and whether history exists.
func (s Score) Value() (float64, bool) { return s.value, s.known }

// HasHistory reports whether s is not NoHistory.
func (s Score) HasHistory() bool { return s.known }

// Count is the number of releases behind the statistic.
func (s Score) Count() int { return s.count }

// Mean averages the scores that have history. All missing gives NoHistory.
func Mean(scores ...Score) Score {
	var sum float64
	var n, count int
	for _, s := range scores {
		if !s.known {
			continue
		}
		sum += s.value
		count += s.count
		n++
	}
	if n == 0 {
		return NoHistory
	}
	return Known(sum/float64(n), count)
}

// MarshalJSON encodes NoHistory as null.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.known {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON decodes null as NoHistory. The count is not carried.
func (s *Score) UnmarshalJSON(b []byte) error {
	var v *float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v == nil || math.IsNaN(*v) {
		*s = NoHistory
		return nil
	}
	*s = Known(*v, 0)
	return nil
}
