package table

import "github.com/plfs/plfsio/block"

// Options configures one table.Logger's block-sealing, checksum and
// compression behavior (spec §4.A/§4.D/§4.E tuning fields).
type Options struct {
	// BlockSize is the target size, in bytes, of a sealed data/index
	// block.
	BlockSize int
	// BlockUtil is the fraction of BlockSize a block must reach before
	// it is eligible to be sealed (spec §4.A: "block is sealed when
	// CurrentSizeEstimate >= block_size * block_util").
	BlockUtil float64
	// RestartInterval is R in spec §4.A; 0 means block.DefaultRestartInterval.
	RestartInterval int
	// ChecksumType selects the per-block trailer checksum algorithm.
	ChecksumType block.ChecksumType
	// CompressionType selects the per-block compression codec.
	CompressionType block.CompressionType
	// ForceCompression keeps the compressed form of a block even when
	// it isn't smaller than the uncompressed payload.
	ForceCompression bool
	// ParanoidChecks asserts that records handed to Add arrive in
	// non-decreasing key order, matching spec §3's table invariant.
	ParanoidChecks bool
}

// EnsureDefaults fills in zero-valued fields with the teacher's
// Options/EnsureDefaults convention.
func (o Options) EnsureDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = 4 << 10
	}
	if o.BlockUtil <= 0 {
		o.BlockUtil = 0.9
	}
	if o.RestartInterval <= 0 {
		o.RestartInterval = block.DefaultRestartInterval
	}
	return o
}
