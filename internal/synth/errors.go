package synth

import "errors"

// ErrInvalidConfig reports a generator config that cannot produce a catalog.
var ErrInvalidConfig = errors.New("invalid synthetic catalog config")
