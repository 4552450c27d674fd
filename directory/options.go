// Package directory implements the directory logger (compactor) and
// reader of spec §4.E/§4.F: a sharded, double-buffered write path that
// feeds sorted records into per-shard table.Logger instances, and a
// read path that walks footer -> root -> meta-index -> filter -> index
// -> data block to answer Read queries.
package directory

import (
	"github.com/plfs/plfsio/block"
	"github.com/plfs/plfsio/filter"
	"github.com/plfs/plfsio/internal/base"
)

// Mode selects how Read treats duplicate keys across and within
// epochs, per spec §3/§4.F.
type Mode uint8

const (
	// ModeUnique returns at most one value per key per epoch: the first
	// match encountered while scanning an epoch's tables.
	ModeUnique Mode = iota
	// ModeUniqueDrop is like ModeUnique, but a key already returned by
	// an earlier epoch is dropped instead of being returned again.
	ModeUniqueDrop
	// ModeMultiMap returns every inserted value for a key, in insertion
	// order, across every epoch.
	ModeMultiMap
)

// Options configures a Sharded directory logger and the table loggers
// underneath it, per spec §4.E/§6's tuning-field list.
type Options struct {
	// TotalMemtableBudget is the MemoryUsage, in bytes, at which a
	// shard's mem_buf counts as full and is handed to the compactor. It
	// is checked against mem_buf alone, not against mem_buf and imm_buf
	// combined: while imm_buf is being compacted, the two buffers
	// together can hold up to about twice this amount.
	TotalMemtableBudget int
	// BlockSize and BlockUtil are forwarded to table.Options.
	BlockSize int
	BlockUtil float64
	// LgParts is the base-2 log of the number of independent logger
	// shards a directory is split into (spec §4.E).
	LgParts uint
	// NonBlocking makes Add/Flush return base.ErrTryAgain instead of
	// blocking when backpressured.
	NonBlocking bool
	// SkipSort assumes the write buffer is already sorted (benchmark
	// mode fast path) and skips the FinishAndSort step.
	SkipSort bool
	// VerifyChecksums makes EnsureDefaults select CRC32C when
	// ChecksumType is unset; it is not forwarded itself. ParanoidChecks
	// is forwarded to table.Options.
	VerifyChecksums bool
	ParanoidChecks  bool
	// Mode selects Read's duplicate-key semantics.
	Mode Mode
	// Compression and ForceCompression are forwarded to table.Options.
	Compression      block.CompressionType
	ForceCompression bool
	// ChecksumType is forwarded to table.Options; defaults to CRC32C
	// when VerifyChecksums is set.
	ChecksumType block.ChecksumType

	// Filter selects the per-table approximate-membership filter family.
	Filter filter.Type
	// BFBitsPerKey is bloom's bits_per_key.
	BFBitsPerKey int
	// BMKeyBits and BitmapFormat configure the bitmap filter family.
	BMKeyBits    int
	BitmapFormat int // bitmap.Format, kept as int to avoid importing filter/bitmap here
	// CuckooFrac, CuckooMaxMoves and CuckooSeed configure the cuckoo
	// filter family.
	CuckooFrac     float64
	CuckooMaxMoves int
	CuckooSeed     uint64
	// FilterBitsPerKey is the generic per-key width used by cuckoo
	// (bits_per_key) when Filter == filter.TypeCuckoo.
	FilterBitsPerKey int

	// DataBufferBytes and IndexBufferBytes size the bufio.Writer each
	// shard's logsink.Sink wraps its file in (spec §6's DATA_BUFFER /
	// INDEX_BUFFER), amortizing per-block Appends into fewer syscalls.
	// 0 leaves the corresponding sink unbuffered.
	DataBufferBytes  int
	IndexBufferBytes int

	// Logger receives a line per latched compaction failure. Defaults to
	// base.DefaultLogger.
	Logger base.Logger
}

// EnsureDefaults fills in zero-valued fields, matching the teacher's
// Options/EnsureDefaults convention.
func (o Options) EnsureDefaults() Options {
	if o.TotalMemtableBudget <= 0 {
		o.TotalMemtableBudget = 4 << 20
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 4 << 10
	}
	if o.BlockUtil <= 0 {
		o.BlockUtil = 0.9
	}
	if o.BFBitsPerKey <= 0 {
		o.BFBitsPerKey = 10
	}
	if o.BMKeyBits <= 0 {
		o.BMKeyBits = 16
	}
	if o.CuckooFrac <= 0 || o.CuckooFrac > 1 {
		o.CuckooFrac = 0.95
	}
	if o.CuckooMaxMoves <= 0 {
		o.CuckooMaxMoves = 500
	}
	if o.FilterBitsPerKey <= 0 {
		o.FilterBitsPerKey = 16
	}
	if o.VerifyChecksums && o.ChecksumType == block.ChecksumTypeNone {
		o.ChecksumType = block.ChecksumTypeCRC32C
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	return o
}

// NumShards returns 2^LgParts.
func (o Options) NumShards() int {
	return 1 << o.LgParts
}
