package bitmap

import "encoding/binary"

// varintCodec implements spec §4.B.2's varint bitmap format: sorted set
// indices are emitted as successive gaps using a standard 7-bit-per-byte
// varint with the continuation bit in the high bit of each byte.
type varintCodec struct{}

func (varintCodec) encode(indices []uint32, keyBits int) []byte {
	var payload []byte
	var prev uint32
	for _, i := range indices {
		gap := i - prev
		payload = binary.AppendUvarint(payload, uint64(gap))
		prev = i
	}
	return payload
}

func (varintCodec) test(target uint32, keyBits int, payload []byte) bool {
	var sum uint64
	off := 0
	for off < len(payload) {
		gap, n := binary.Uvarint(payload[off:])
		if n <= 0 {
			return false
		}
		off += n
		sum += gap
		if sum == uint64(target) {
			return true
		}
		if sum > uint64(target) {
			return false
		}
	}
	return false
}
