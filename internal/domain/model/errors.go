package model

import "errors"

// Sentinel errors for domain value validation.
var (
	ErrInvalidDraftID = errors.New("invalid draft id")
	ErrInvalidEvent   = errors.New("invalid draft event")
	ErrInvalidRules   = errors.New("invalid league rules")
)
