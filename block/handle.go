// Package block implements the length-prefixed, restart-pointed
// key/value block used by every data block in the data log and every
// index, meta-index and root block in the index log (spec §4.A), plus the varint-encoded block handle
// and the checksummed/compressed trailer format (spec §6, expanded).
package block

import (
	"encoding/binary"

	"github.com/cockroachdb/redact"

	"github.com/plfs/plfsio/internal/base"
)

// Handle identifies a byte range within a log: offset and size of a
// block, excluding any trailer. Spec §3: offset+size <= log_size.
type Handle struct {
	Offset uint64
	Size   uint64
}

// MaxHandleLen is the maximum length of a varint-encoded Handle.
const MaxHandleLen = 2 * binary.MaxVarintLen64

// EncodeTo appends the varint encoding of h to dst and returns the
// extended slice.
func (h Handle) EncodeTo(dst []byte) []byte {
	var buf [MaxHandleLen]byte
	n := binary.PutUvarint(buf[:], h.Offset)
	n += binary.PutUvarint(buf[n:], h.Size)
	return append(dst, buf[:n]...)
}

// DecodeHandle decodes a Handle from the front of src and returns the
// handle and the number of bytes consumed. It returns (Handle{}, 0) on
// malformed input.
func DecodeHandle(src []byte) (Handle, int) {
	off, n := binary.Uvarint(src)
	if n <= 0 {
		return Handle{}, 0
	}
	size, m := binary.Uvarint(src[n:])
	if m <= 0 {
		return Handle{}, 0
	}
	return Handle{Offset: off, Size: size}, n + m
}

// Validate checks offset+size against the size of the log the handle
// points into, per spec §3's invariant.
func (h Handle) Validate(logSize uint64) error {
	if h.Offset+h.Size > logSize {
		return base.CorruptionErrorf("block handle {%d,%d} exceeds log size %d",
			redact.Safe(h.Offset), redact.Safe(h.Size), redact.Safe(logSize))
	}
	return nil
}
