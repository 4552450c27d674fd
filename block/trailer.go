package block

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/golang/snappy"

	"github.com/plfs/plfsio/internal/base"
)

// TrailerLen is the length in bytes of the trailer appended to every
// block written to a log when verify_checksums is enabled. Grounded on
// sstable/block.TrailerLen/MakeTrailer.
const TrailerLen = 5

// ChecksumType selects the checksum algorithm used in a block's
// trailer. This is a directory-wide setting (directory.Options), not
// per-block. The trailer records the compression type but not the
// checksum type, so a reader must be given the same ChecksumType the
// blocks were written with (directory.ReaderOptions.ChecksumType).
type ChecksumType byte

const (
	// ChecksumTypeNone disables checksumming; verify_checksums == false.
	ChecksumTypeNone ChecksumType = 0
	// ChecksumTypeCRC32C uses the Castagnoli CRC32 table via the stdlib
	// hash/crc32 package — the teacher's own internal/crc is a thin
	// wrapper over the same table, so no third-party CRC32C
	// implementation is warranted (see DESIGN.md).
	ChecksumTypeCRC32C ChecksumType = 1
	// ChecksumTypeXXHash64 uses cespare/xxhash/v2, the teacher's
	// alternate checksum algorithm (sstable/block.ChecksumTypeXXHash64).
	ChecksumTypeXXHash64 ChecksumType = 2
)

// CompressionType selects the compression codec applied to a block's
// payload before the trailer is appended (spec §4.E: compression ∈
// {none, snappy}).
type CompressionType byte

const (
	// CompressionNone stores the block payload uncompressed.
	CompressionNone CompressionType = 0
	// CompressionSnappy compresses the block payload with
	// golang/snappy, the teacher's sstable compression dependency.
	CompressionSnappy CompressionType = 1
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

func checksum(typ ChecksumType, compressionType CompressionType, payload []byte) uint32 {
	switch typ {
	case ChecksumTypeCRC32C:
		c := crc32.Checksum(payload, crc32cTable)
		c = crc32.Update(c, crc32cTable, []byte{byte(compressionType)})
		return c
	case ChecksumTypeXXHash64:
		h := xxhash.New()
		h.Write(payload)
		h.Write([]byte{byte(compressionType)})
		return uint32(h.Sum64())
	default:
		return 0
	}
}

// Compress compresses payload according to compressionType, appending
// to dst. force, when true and compressionType is CompressionSnappy,
// keeps the compressed form even if it is not smaller (directory
// Options.ForceCompression, spec §4.E).
func Compress(compressionType CompressionType, payload []byte, force bool) (out []byte, actual CompressionType) {
	switch compressionType {
	case CompressionSnappy:
		compressed := snappy.Encode(nil, payload)
		if force || len(compressed) < len(payload) {
			return compressed, CompressionSnappy
		}
		return payload, CompressionNone
	default:
		return payload, CompressionNone
	}
}

// Decompress reverses Compress given the CompressionType recorded in
// the trailer.
func Decompress(compressionType CompressionType, payload []byte) ([]byte, error) {
	switch compressionType {
	case CompressionNone:
		return payload, nil
	case CompressionSnappy:
		n, err := snappy.DecodedLen(payload)
		if err != nil {
			return nil, base.CorruptionErrorf("snappy: %s", err)
		}
		out := make([]byte, n)
		out, err = snappy.Decode(out, payload)
		if err != nil {
			return nil, base.CorruptionErrorf("snappy: %s", err)
		}
		return out, nil
	default:
		return nil, base.CorruptionErrorf("unknown compression type %d", redact.Safe(compressionType))
	}
}

// AppendTrailer compresses block (if requested) and appends the 5-byte
// trailer {compressionType byte, checksum uint32 LE}, mirroring
// sstable/block.Trailer / MakeTrailer.
func AppendTrailer(checksumType ChecksumType, compressionType CompressionType, force bool, block []byte) []byte {
	payload, actual := Compress(compressionType, block, force)
	c := checksum(checksumType, actual, payload)
	out := make([]byte, len(payload)+TrailerLen)
	copy(out, payload)
	out[len(payload)] = byte(actual)
	binary.LittleEndian.PutUint32(out[len(payload)+1:], c)
	return out
}

// ValidateAndDecompress validates the trailer's checksum (if
// checksumType != ChecksumTypeNone) and returns the decompressed block
// payload.
func ValidateAndDecompress(checksumType ChecksumType, raw []byte) ([]byte, error) {
	if len(raw) < TrailerLen {
		return nil, base.CorruptionErrorf("block too short for trailer: %d bytes", redact.Safe(len(raw)))
	}
	payload := raw[:len(raw)-TrailerLen]
	compressionType := CompressionType(raw[len(raw)-TrailerLen])
	wantChecksum := binary.LittleEndian.Uint32(raw[len(raw)-TrailerLen+1:])
	if checksumType != ChecksumTypeNone {
		got := checksum(checksumType, compressionType, payload)
		if got != wantChecksum {
			return nil, base.CorruptionErrorf("checksum mismatch: got %x want %x", redact.Safe(got), redact.Safe(wantChecksum))
		}
	}
	out, err := Decompress(compressionType, payload)
	if err != nil {
		return nil, errors.Wrap(err, "block: decompress")
	}
	return out, nil
}
