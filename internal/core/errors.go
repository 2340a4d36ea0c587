// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w") and test with errors.Is.
var (
	// Configuration errors
	ErrConfigInvalid      = errors.New("proclat: invalid configuration")
	ErrUnknownCombination = errors.New("proclat: unrecognized function/variant/procedure combination")
	ErrUnknownProcedure   = errors.New("proclat: unknown procedure")

	// Source errors
	ErrUnknownFormat = errors.New("proclat: unknown trace format")
	ErrSourceOpen    = errors.New("proclat: trace open failed")
	ErrSourceFormat  = errors.New("proclat: malformed trace")
	ErrTruncated     = errors.New("proclat: trace truncated")
)
