package repository

import "errors"

// Sentinel kinds for dataset store errors.
var (
	ErrNotFound     = errors.New("release not found")
	ErrNoPriceIndex = errors.New("no price index stored")
	ErrInvalidRow   = errors.New("invalid stored row")
)
