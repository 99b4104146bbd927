// Package errs defines the semantic error kinds shared by the analytical core.
//
// Every public function in the core surfaces one of these sentinels (possibly
// wrapped with context via fmt.Errorf and %w) so callers can branch with
// errors.Is instead of string matching.
package errs

import "errors"

var (
	// ErrNotFound indicates a referenced date, symbol, or file is missing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates malformed configuration or parameters,
	// e.g. an unknown direction or a non-positive quantity.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPreconditionNotMet indicates an operation cannot proceed in the
	// current state: a stale price under a required leg, a broker that is
	// not connected, or too few bars for analysis.
	ErrPreconditionNotMet = errors.New("precondition not met")

	// ErrInconsistentData indicates corrupt input rows, e.g. a quote with
	// bid > ask or a trade bar with negative volume.
	ErrInconsistentData = errors.New("inconsistent data")

	// ErrDeadlineExceeded indicates a broker call timed out.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrCancelled indicates a scan was cancelled before completion.
	ErrCancelled = errors.New("cancelled")
)
