package revenue

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrInsufficientData = errors.New("insufficient training data")
	ErrInvalidArtifact  = errors.New("invalid model artifact")
	ErrInvalidTarget    = errors.New("invalid revenue target")
)

// InsufficientDataError reports a dataset below the minimum training size.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: have %d records, need %d", e.Have, e.Need)
}

// Is makes errors.Is(err, ErrInsufficientData) hold.
func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }
