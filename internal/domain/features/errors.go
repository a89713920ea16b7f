package features

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	ErrInvalidSchema  = errors.New("invalid feature schema")
)

// SchemaMismatchError names the offending feature and what is wrong with it.
type SchemaMismatchError struct {
	Field  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("feature %q: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrSchemaMismatch) hold.
func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

func mismatch(field, format string, args ...any) error {
	return &SchemaMismatchError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
