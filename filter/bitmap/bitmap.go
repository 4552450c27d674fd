// Package bitmap implements the bitmap filter family of spec §4.B.2: an
// exact-membership structure over a bounded domain derived from the
// first 4 bytes of each key, available in six wire encodings chosen for
// their space/decode-speed trade-offs. Every encoding shares the same
// domain derivation and two-byte trailer ({key_bits, format_id}); only
// the payload layout differs between encodings, per file.
package bitmap

import (
	"encoding/binary"
	"sort"

	"github.com/plfs/plfsio/internal/base"
)

// Format identifies a bitmap sub-encoding. Stored as the last byte of
// the filter blob (spec §4.B.2's trailer-only convention: per spec §9
// this format id lives only in the trailer, never inferred from a
// leading byte of the payload, resolving an ambiguity earlier revisions
// of the source left open).
type Format uint8

const (
	FormatUncompressed Format = 0
	FormatVarint       Format = 1
	FormatVarintPlus   Format = 2
	FormatPForDelta    Format = 3
	FormatRoaring      Format = 4
	FormatPRoaring     Format = 5
)

func (f Format) String() string {
	switch f {
	case FormatUncompressed:
		return "uncompressed"
	case FormatVarint:
		return "varint"
	case FormatVarintPlus:
		return "varint_plus"
	case FormatPForDelta:
		return "p_for_delta"
	case FormatRoaring:
		return "roaring"
	case FormatPRoaring:
		return "p_roaring"
	default:
		return "unknown"
	}
}

// MinKeyBits and MaxKeyBits bound key_bits per spec §4.B.2.
const (
	MinKeyBits = 8
	MaxKeyBits = 32
)

// DecodeKeyIndex decodes the first min(4, len(key)) bytes of key as a
// little-endian uint32, zero-padding if key is shorter than 4 bytes,
// and masks to the low keyBits bits, per spec §4.B.2 and the
// REDESIGN-FLAG in spec §9 ("raw little-endian memcpy" -> a documented
// LE decoder with zero-pad semantics).
func DecodeKeyIndex(key []byte, keyBits int) uint32 {
	var buf [4]byte
	n := len(key)
	if n > 4 {
		n = 4
	}
	copy(buf[:n], key[:n])
	v := binary.LittleEndian.Uint32(buf[:])
	if keyBits >= 32 {
		return v
	}
	return v & ((uint32(1) << keyBits) - 1)
}

// appendTrailer appends the two trailer bytes {key_bits, format_id}.
func appendTrailer(payload []byte, keyBits int, format Format) []byte {
	return append(payload, byte(keyBits), byte(format))
}

// parseTrailer splits a finished bitmap filter blob into its payload,
// key_bits and Format. Per spec §7, blobs under 2 bytes are treated as
// empty (no match) rather than an error.
func parseTrailer(blob []byte) (payload []byte, keyBits int, format Format, empty bool) {
	if len(blob) < 2 {
		return nil, 0, 0, true
	}
	n := len(blob)
	return blob[:n-2], int(blob[n-2]), Format(blob[n-1]), false
}

// encoder is the per-format payload codec. encode receives the sorted,
// deduplicated set of indices observed during AddKey and the domain's
// key_bits; test answers whether index i is present in payload.
type encoder interface {
	encode(indices []uint32, keyBits int) []byte
	test(i uint32, keyBits int, payload []byte) bool
}

var encoders = map[Format]encoder{
	FormatUncompressed: uncompressedCodec{},
	FormatVarint:       varintCodec{},
	FormatVarintPlus:   varintPlusCodec{},
	FormatPForDelta:    pForDeltaCodec{},
	FormatRoaring:      roaringCodec{},
	FormatPRoaring:     pRoaringCodec{},
}

// Writer builds a bitmap filter in a chosen Format over a fixed
// key_bits domain (spec §4.B.2).
type Writer struct {
	KeyBits int
	Format  Format

	seen map[uint32]struct{}
}

// Reset implements filter.Writer.
func (w *Writer) Reset(numKeys int) {
	if w.seen == nil {
		w.seen = make(map[uint32]struct{}, numKeys)
	} else {
		clear(w.seen)
	}
}

// AddKey implements filter.Writer.
func (w *Writer) AddKey(key []byte) {
	w.seen[DecodeKeyIndex(key, w.KeyBits)] = struct{}{}
}

// Finish implements filter.Writer, returning the encoded payload plus
// the two-byte trailer.
func (w *Writer) Finish() []byte {
	indices := make([]uint32, 0, len(w.seen))
	for i := range w.seen {
		indices = append(indices, i)
	}
	sortUint32s(indices)
	enc, ok := encoders[w.Format]
	if !ok {
		panic(base.InvariantError{Err: base.InvalidArgumentf("bitmap: unknown format %d", w.Format)})
	}
	payload := enc.encode(indices, w.KeyBits)
	return appendTrailer(payload, w.KeyBits, w.Format)
}

// Test reports whether index i is a member of the finished filter blob.
// It is the format-dispatch counterpart of spec §4.B.2's
// BitmapKeyMustMatch, operating directly on an integer domain index
// (spec §8's testable properties are phrased this way) rather than a
// raw key.
func Test(i uint32, blob []byte) bool {
	payload, keyBits, format, empty := parseTrailer(blob)
	if empty {
		return false
	}
	if keyBits < MinKeyBits || keyBits > MaxKeyBits || i >= domainSize(keyBits) {
		return false
	}
	enc, ok := encoders[format]
	if !ok {
		// Unknown format id: conservative "may match" per spec §7.
		return true
	}
	return enc.test(i, keyBits, payload)
}

// MayMatch implements filter.MayMatchFunc: derive the domain index from
// key and test it against the finished blob (spec §4.B.2
// BitmapKeyMustMatch).
func MayMatch(key, blob []byte) bool {
	_, keyBits, _, empty := parseTrailer(blob)
	if empty {
		return false
	}
	return Test(DecodeKeyIndex(key, keyBits), blob)
}

func domainSize(keyBits int) uint32 {
	if keyBits >= 32 {
		return 0xffffffff
	}
	return uint32(1) << keyBits
}

func sortUint32s(s []uint32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}

// bitsForMax returns ceil(log2(max+1)), the number of bits needed to
// represent any value in [0, max].
func bitsForMax(max uint32) int {
	if max == 0 {
		return 0
	}
	n := 0
	for (uint32(1) << n) <= max {
		n++
	}
	return n
}
