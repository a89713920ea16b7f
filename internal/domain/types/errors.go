package types

import "errors"

// ErrNoArtifact is returned by read paths when no trained model is loaded.
var ErrNoArtifact = errors.New("no model artifact loaded")
