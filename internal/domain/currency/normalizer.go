package currency

import (
	"fmt"
	"math"

	"github.com/okian/boxoffice/internal/domain/model"
)

// Converter expresses an amount from one year's money in another's.
type Converter interface {
	Normalize(amount float64, sourceYear, targetYear int) (float64, error)
}

// Normalizer scales amounts by the ratio of index values. It is pure and safe
// for concurrent use.
type Normalizer struct {
	index *Index
}

var _ Converter = (*Normalizer)(nil)

// NewNormalizer binds a Normalizer to idx.
func NewNormalizer(idx *Index) *Normalizer {
	return &Normalizer{index: idx}
}

// Index returns the underlying price index.
func (n *Normalizer) Index() *Index { return n.index }

// Normalize converts amount from sourceYear money to targetYear money.
func (n *Normalizer) Normalize(amount float64, sourceYear, targetYear int) (float64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	from, err := n.index.Value(sourceYear)
	if err != nil {
		return 0, err
	}
	to, err := n.index.Value(targetYear)
	if err != nil {
		return 0, err
	}
	return amount * to / from, nil
}

// NormalizeRelease converts a release's budget and, when known, revenue to
// targetYear money.
func NormalizeRelease(c Converter, r model.Release, targetYear int) (model.NormalizedRelease, error) {
	out := model.NormalizedRelease{Release: r}
	budget, err := c.Normalize(r.Budget.Amount, r.BudgetYear(), targetYear)
	if err != nil {
		return out, fmt.Errorf("release %s budget: %w", r.ID, err)
	}
	out.BudgetAdj = budget
	if r.Revenue != nil {
		revenue, err := c.Normalize(r.Revenue.Amount, r.RevenueYear(), targetYear)
		if err != nil {
			return out, fmt.Errorf("release %s revenue: %w", r.ID, err)
		}
		out.RevenueAdj = &revenue
	}
	return out, nil
}
