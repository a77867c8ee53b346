package variability

import (
	lverrors "github.com/logflow/logvar/pkg/errors"
)

// Sentinel errors. They match returned errors through errors.Is by code.
var (
	// ErrTooManyPairs is returned when a log has more variant pairs than
	// the configured ceiling. The analysis of that log is aborted.
	ErrTooManyPairs = lverrors.New(lverrors.CodePairCeiling, "variant pair count exceeds ceiling")

	// ErrDeadline is returned when aggregation exceeds its deadline.
	ErrDeadline = lverrors.New(lverrors.CodeTimeout, "pairwise aggregation deadline exceeded")

	// ErrEmptyTrace is returned for a log containing a trace without events.
	ErrEmptyTrace = lverrors.New(lverrors.CodeEmptyTrace, "trace has no events")

	// ErrInvalidLog is returned for a nil log or a log without a name.
	ErrInvalidLog = lverrors.New(lverrors.CodeInvalidLog, "invalid log")
)
