package source

import (
	"errors"
	"fmt"

	"firestige.xyz/proclat/internal/core"
)

// TruncatedError reports a trace that ends inside a packet. Readers return
// it together with the records decoded before the cut.
type TruncatedError struct {
	Trace string
	Frame int64 // 1-based position of the incomplete packet
	Err   error
}

// Truncated wraps err for the packet at position frame of meta's trace.
func Truncated(meta Meta, frame int64, err error) *TruncatedError {
	return &TruncatedError{Trace: meta.Trace, Frame: frame, Err: err}
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("%v: %s at frame %d: %v", core.ErrTruncated, e.Trace, e.Frame, e.Err)
}

func (e *TruncatedError) Unwrap() error { return e.Err }

// Is matches core.ErrTruncated.
func (e *TruncatedError) Is(target error) bool { return target == core.ErrTruncated }

// AsTruncated extracts a TruncatedError from err.
func AsTruncated(err error) (*TruncatedError, bool) {
	var te *TruncatedError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
