package bitmap

import (
	"encoding/binary"

	"github.com/plfs/plfsio/internal/base"
)

// pForDeltaCodec implements spec §4.B.2's pForDelta bitmap format: gaps
// are grouped into cohorts of up to 128 values, each cohort prefixed by
// a one-byte bit-width w = ceil(log2(max_gap+1)) and packed
// big-endian-bit-order into w bits per value.
//
// The payload is prefixed with a varint total count so a decoder
// without external knowledge of how many keys were inserted can still
// tell a full 128-value cohort apart from a final short one; spec
// §4.B.2 leaves this detail implicit and this is the natural way to
// make it concrete without inventing new semantics.
type pForDeltaCodec struct{}

const pForDeltaCohortSize = 128

func (pForDeltaCodec) encode(indices []uint32, keyBits int) []byte {
	gaps := make([]uint32, len(indices))
	var prev uint32
	for i, idx := range indices {
		gaps[i] = idx - prev
		prev = idx
	}

	payload := binary.AppendUvarint(nil, uint64(len(gaps)))
	for start := 0; start < len(gaps); start += pForDeltaCohortSize {
		end := start + pForDeltaCohortSize
		if end > len(gaps) {
			end = len(gaps)
		}
		cohort := gaps[start:end]
		var max uint32
		for _, g := range cohort {
			if g > max {
				max = g
			}
		}
		w := bitsForMax(max)
		payload = append(payload, byte(w))
		bw := base.BitWriter{}
		for _, g := range cohort {
			bw.WriteBits(uint64(g), w)
		}
		payload = append(payload, bw.Bytes()...)
	}
	return payload
}

func (pForDeltaCodec) test(target uint32, keyBits int, payload []byte) bool {
	total, n := binary.Uvarint(payload)
	if n <= 0 {
		return false
	}
	off := n
	remaining := int(total)
	var sum uint64
	for remaining > 0 {
		if off >= len(payload) {
			return false
		}
		w := int(payload[off])
		off++
		cohortSize := pForDeltaCohortSize
		if remaining < cohortSize {
			cohortSize = remaining
		}
		byteLen := base.PackedByteLen(w, cohortSize)
		if off+byteLen > len(payload) {
			return false
		}
		br := base.BitReader{Buf: payload[off : off+byteLen]}
		for k := 0; k < cohortSize; k++ {
			gap := br.ReadBits(w)
			sum += gap
			if sum == uint64(target) {
				return true
			}
			if sum > uint64(target) {
				return false
			}
		}
		off += byteLen
		remaining -= cohortSize
	}
	return false
}
