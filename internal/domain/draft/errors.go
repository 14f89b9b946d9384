package draft

import (
	"errors"
	"fmt"

	"github.com/okian/livedraft/internal/domain/model"
)

// Reasons a pick can be rejected, in validation order.
var (
	ErrOutOfSequence      = errors.New("pick out of sequence")
	ErrPlayerDrafted      = errors.New("player already drafted")
	ErrUnknownTeam        = errors.New("unknown team")
	ErrNoRosterSlots      = errors.New("no roster slots remaining")
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrBelowMinBid        = errors.New("price below minimum bid")
)

// ErrInconsistentState is returned by Verify when a state breaks an
// accounting rule.
var ErrInconsistentState = errors.New("inconsistent league state")

// InvalidEventError names the event that was rejected and why. It unwraps to
// the reason sentinel.
type InvalidEventError struct {
	Event  model.DraftEvent
	Reason error
	Detail string
}

func (e *InvalidEventError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Event, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", e.Event, e.Reason, e.Detail)
}

func (e *InvalidEventError) Unwrap() error { return e.Reason }

func reject(ev model.DraftEvent, reason error, format string, args ...any) error {
	return &InvalidEventError{Event: ev, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
