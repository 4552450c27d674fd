package base

import "github.com/cockroachdb/errors"

// InvariantError wraps an error that indicates an internal invariant of
// the write pipeline or filter layer has been violated (e.g. Add on a
// write buffer after FinishAndSort without Reset, or a bitmap filter
// configured with an unknown format). These are programmer errors, not
// corrupted-input errors.
type InvariantError struct {
	Err error
}

// Unwrap returns the wrapped descriptive error.
func (i InvariantError) Unwrap() error {
	return i.Err
}

func (i InvariantError) Error() string {
	return i.Err.Error()
}

// AssertTrue panics with an InvariantError if cond is false.
func AssertTrue(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(InvariantError{Err: errors.Newf(format, args...)})
	}
}
