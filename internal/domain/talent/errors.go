package talent

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrLeakageViolation = errors.New("talent history leakage")
	ErrInvalidPolicy    = errors.New("invalid talent policy")
)

// LeakageViolationError reports an aggregation that would let a release see
// its own or a later outcome. It is never recoverable.
type LeakageViolationError struct {
	PersonID  string
	ReleaseID string
	PriorID   string
	Reason    string // "unordered", "settled_not_prior"
}

func (e *LeakageViolationError) Error() string {
	if e.PriorID != "" {
		return fmt.Sprintf("talent leakage for person %s at release %s (prior %s): %s", e.PersonID, e.ReleaseID, e.PriorID, e.Reason)
	}
	return fmt.Sprintf("talent leakage for person %s at release %s: %s", e.PersonID, e.ReleaseID, e.Reason)
}

// Is makes errors.Is(err, ErrLeakageViolation) hold.
func (e *LeakageViolationError) Is(target error) bool { return target == ErrLeakageViolation }
