package source

import "errors"

// ErrUnavailable marks a poll that failed for a reason worth retrying on the
// next tick. Every error returned by Picks wraps it.
var ErrUnavailable = errors.New("draft source unavailable")

// ErrBadPayload marks a response that could not be decoded.
var ErrBadPayload = errors.New("malformed draft results")
