package service

import "errors"

// Sentinel errors for draft orchestration.
var (
	ErrHalted          = errors.New("draft halted")
	ErrCacheAhead      = errors.New("cached valuation is ahead of the event log")
	ErrNotBootstrapped = errors.New("orchestrator not bootstrapped")
	ErrAlreadyRunning  = errors.New("draft already running")
	ErrDraftNotFound   = errors.New("draft not found")
	ErrNotRunning      = errors.New("draft not running")
	ErrServiceClosed   = errors.New("service shut down")
	ErrInvalidSpec     = errors.New("invalid draft spec")
)
