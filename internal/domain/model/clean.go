package model

// RejectReason names why a raw record was dropped during cleaning.
type RejectReason string

// Reject reasons, used as metric labels.
const (
	RejectNone           RejectReason = ""
	RejectMissingID      RejectReason = "missing_id"
	RejectMissingDate    RejectReason = "missing_date"
	RejectLowBudget      RejectReason = "low_budget"
	RejectMissingRevenue RejectReason = "missing_revenue"
	RejectLowRevenue     RejectReason = "low_revenue"
	RejectNoGenres       RejectReason = "no_genres"
	RejectBadRuntime     RejectReason = "bad_runtime"
	RejectNoDirectors    RejectReason = "no_directors"
	RejectDuplicate      RejectReason = "duplicate"
)

// CleanRules are the thresholds a record must clear. Amounts are nominal and
// a record at or below a threshold is dropped.
type CleanRules struct {
	MinBudget      float64
	MinRevenue     float64
	RequireRevenue bool
}

// Check returns the first rule r breaks, or RejectNone.
func (c CleanRules) Check(r Release) RejectReason {
	switch {
	case r.ID == "":
		return RejectMissingID
	case r.ReleaseDate.IsZero():
		return RejectMissingDate
	case r.Budget.Amount <= c.MinBudget:
		return RejectLowBudget
	case len(r.Genres) == 0:
		return RejectNoGenres
	case r.Runtime <= 0:
		return RejectBadRuntime
	case len(r.Directors) == 0:
		return RejectNoDirectors
	}
	if r.Revenue == nil {
		if c.RequireRevenue {
			return RejectMissingRevenue
		}
		return RejectNone
	}
	if r.Revenue.Amount <= c.MinRevenue {
		return RejectLowRevenue
	}
	return RejectNone
}
