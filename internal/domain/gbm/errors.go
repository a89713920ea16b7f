package gbm

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidParams = errors.New("invalid boosting parameters")
	ErrInvalidData   = errors.New("invalid training data")
	ErrWidth         = errors.New("feature width mismatch")
)
