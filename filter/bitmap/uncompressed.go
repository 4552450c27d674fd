package bitmap

import "github.com/bits-and-blooms/bitset"

// uncompressedCodec implements spec §4.B.2's uncompressed bitmap
// format: a 2^key_bits-bit set, bit i set iff key i is present. The
// payload is the bitset's MarshalBinary encoding (a length header
// followed by the set's 64-bit words), not a bare ceil(2^key_bits / 8)
// byte array. Backed by bits-and-blooms/bitset rather than a hand-rolled byte
// array, matching the rest of the pack's preference for a real bitset
// type over ad hoc bit-twiddling.
type uncompressedCodec struct{}

func (uncompressedCodec) encode(indices []uint32, keyBits int) []byte {
	bs := bitset.New(uint(domainSize(keyBits)))
	for _, i := range indices {
		bs.Set(uint(i))
	}
	payload, err := bs.MarshalBinary()
	if err != nil {
		// BitSet.MarshalBinary never fails for an in-memory set.
		panic(err)
	}
	return payload
}

func (uncompressedCodec) test(i uint32, keyBits int, payload []byte) bool {
	var bs bitset.BitSet
	if err := bs.UnmarshalBinary(payload); err != nil {
		return false
	}
	return bs.Test(uint(i))
}
