// Package base holds types shared across the plfsio packages: error
// kinds, the logging interface, and the byte-key comparator.
package base

import (
	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by Read when a key has no value in any epoch
// scanned.
var ErrNotFound = errors.New("plfsio: not found")

// ErrTryAgain is returned by Add in non-blocking mode when the memtable
// budget is saturated and the background compactor has not yet drained
// the immutable buffer.
var ErrTryAgain = errors.New("plfsio: try again")

// ErrBusy is the error kind for a foreground call that finds a failure
// already latched by a background compaction. No code path returns it:
// directory.Logger returns the latched error itself instead.
var ErrBusy = errors.New("plfsio: busy")

// CorruptionErrorf formats and marks an error as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf("plfsio: corruption: "+format, args...), ErrCorruption)
}

// ErrCorruption is the sentinel corruption marker checked with errors.Is.
var ErrCorruption = errors.New("plfsio: corruption")

// InvalidArgumentf marks a misconfiguration error, e.g. an unknown
// filter type or an out-of-range tuning parameter.
func InvalidArgumentf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf("plfsio: invalid argument: "+format, args...), ErrInvalidArgument)
}

// ErrInvalidArgument is the sentinel invalid-argument marker.
var ErrInvalidArgument = errors.New("plfsio: invalid argument")

// IsCorruptionError reports whether err (or something it wraps) is a
// corruption error.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}
