package cache

import "errors"

var (
	// ErrNotFound is returned when no latest result or snapshot exists.
	ErrNotFound = errors.New("valuation not found")
	// ErrSnapshotExists is returned when a snapshot for the pick is already stored.
	ErrSnapshotExists = errors.New("snapshot already exists")
	// ErrInvalidHistoryLimit is returned for a negative history limit.
	ErrInvalidHistoryLimit = errors.New("history limit must not be negative")
)
