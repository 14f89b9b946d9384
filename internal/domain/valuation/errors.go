package valuation

import "errors"

// Sentinel errors for the valuation pipeline.
var (
	ErrEmptyPool   = errors.New("player pool is empty")
	ErrInvalidPool = errors.New("invalid player pool")
)
