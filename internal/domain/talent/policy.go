package talent

import (
	"fmt"
	"time"
)

// CastPolicy chooses how billed cast members combine into one cast score.
type CastPolicy string

// Cast aggregation policies.
const (
	// CastLead uses only the top-billed member.
	CastLead CastPolicy = "lead"
	// CastMeanTopN averages the top-N billed members that have history.
	CastMeanTopN CastPolicy = "mean_top_n"
)

// Policy is the frozen scoring policy. It is part of the feature schema and
// is applied identically at training and inference.
type Policy struct {
	// Window is the number of most recent settled releases averaged; 0 means all.
	Window int `json:"window"`
	// SettleDays delays a release's outcome: a prior counts only when
	// prior date + SettleDays is strictly before the scored release date.
	SettleDays int        `json:"settle_days"`
	Cast       CastPolicy `json:"cast"`
	CastTopN   int        `json:"cast_top_n"`
}

// DefaultPolicy averages all history, settles outcomes immediately and
// scores the cast by its lead.
func DefaultPolicy() Policy {
	return Policy{Window: 0, SettleDays: 0, Cast: CastLead, CastTopN: 3}
}

// Validate rejects policies that cannot be applied.
func (p Policy) Validate() error {
	switch {
	case p.Window < 0:
		return fmt.Errorf("%w: window %d", ErrInvalidPolicy, p.Window)
	case p.SettleDays < 0:
		return fmt.Errorf("%w: settle days %d", ErrInvalidPolicy, p.SettleDays)
	case p.Cast != CastLead && p.Cast != CastMeanTopN:
		return fmt.Errorf("%w: cast policy %q", ErrInvalidPolicy, p.Cast)
	case p.Cast == CastMeanTopN && p.CastTopN < 1:
		return fmt.Errorf("%w: cast top n %d", ErrInvalidPolicy, p.CastTopN)
	}
	return nil
}

// CastDepth is how many billed members build a cast history.
func (p Policy) CastDepth() int {
	if p.Cast == CastLead {
		return 1
	}
	return p.CastTopN
}

func (p Policy) settle() time.Duration {
	return time.Duration(p.SettleDays) * 24 * time.Hour
}
