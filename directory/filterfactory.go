package directory

import (
	"github.com/plfs/plfsio/filter"
	"github.com/plfs/plfsio/filter/bitmap"
	"github.com/plfs/plfsio/filter/bloom"
	"github.com/plfs/plfsio/filter/cuckoo"
)

// newFilterWriter constructs the filter.Writer for opts.Filter, or nil
// when filtering is disabled (filter.TypeNone).
func newFilterWriter(opts Options) filter.Writer {
	switch opts.Filter {
	case filter.TypeBloom:
		return &bloom.Writer{BitsPerKey: opts.BFBitsPerKey}
	case filter.TypeBitmap:
		return &bitmap.Writer{KeyBits: opts.BMKeyBits, Format: bitmap.Format(opts.BitmapFormat)}
	case filter.TypeCuckoo:
		return &cuckoo.Writer{
			BitsPerKey: opts.FilterBitsPerKey,
			Frac:       opts.CuckooFrac,
			MaxMoves:   opts.CuckooMaxMoves,
			Seed:       opts.CuckooSeed,
		}
	default:
		return nil
	}
}
