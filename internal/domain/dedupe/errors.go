package dedupe

import "errors"

// Sentinel errors returned by Diff.
var (
	ErrConflictingReports = errors.New("conflicting reports for one pick")
	ErrHistoryMismatch    = errors.New("report contradicts recorded pick")
	ErrGap                = errors.New("gap in reported picks")
)
