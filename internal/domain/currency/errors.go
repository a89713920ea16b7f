package currency

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrOutOfRange    = errors.New("year outside price index")
	ErrInvalidIndex  = errors.New("invalid price index")
	ErrInvalidAmount = errors.New("invalid amount")
)

// OutOfRangeError names the year the index cannot serve.
type OutOfRangeError struct {
	Year        int
	First, Last int
	Reason      string // "before_first", "gap"
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("year %d outside price index [%d, %d]: %s", e.Year, e.First, e.Last, e.Reason)
}

// Is makes errors.Is(err, ErrOutOfRange) hold.
func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }
