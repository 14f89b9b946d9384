package eventlog

import (
	"errors"
	"fmt"
)

// Sentinel errors for event log operations.
var (
	ErrDuplicatePick = errors.New("a different event holds this pick number")
	ErrOutOfSequence = errors.New("pick number does not follow the last recorded pick")
	ErrInvalidEvent  = errors.New("event failed validation")
	ErrIO            = errors.New("event log write failed")
	ErrCorruptLog    = errors.New("event log is corrupt")
	ErrClosed        = errors.New("event log is closed")
)

// AppendError reports which pick an append failed for.
type AppendError struct {
	Pick int
	Err  error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("append pick %d: %v", e.Pick, e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }
