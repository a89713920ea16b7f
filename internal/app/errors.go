package service

import "errors"

// ErrInvalidRequest marks a prediction request that cannot be read as a release.
var ErrInvalidRequest = errors.New("invalid prediction request")
