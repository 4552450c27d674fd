package bitmap

import (
	"encoding/binary"

	"github.com/plfs/plfsio/internal/base"
)

// pRoaringCodec implements spec §4.B.2's partitioned-Roaring bitmap
// format: identical to Roaring except that the index>>8 buckets are
// grouped into partitions of 256 buckets each, and the payload
// opens with a u16-per-partition sum lookup table so a probe can add up
// whole-partition totals (O(#partitions)) instead of every individual
// bucket size (O(#buckets)) when computing the prefix offset into the
// low-8-bit array for buckets outside the target's own partition.
type pRoaringCodec struct{}

const pRoaringPartitionBuckets = 256

func (pRoaringCodec) encode(indices []uint32, keyBits int) []byte {
	numBuckets := numRoaringBuckets(keyBits)
	sizes, offsetBytes := bucketize(indices, numBuckets)

	numPartitions := (numBuckets + pRoaringPartitionBuckets - 1) / pRoaringPartitionBuckets
	partitionSums := make([]uint16, numPartitions)
	for b, s := range sizes {
		partitionSums[b/pRoaringPartitionBuckets] += uint16(s)
	}

	bitsPerLen := bitsForMax(uint32(maxInt(sizes)))
	bw := base.BitWriter{}
	for _, s := range sizes {
		bw.WriteBits(uint64(s), bitsPerLen)
	}

	payload := make([]byte, 0, 2*numPartitions+1+len(bw.Bytes())+len(offsetBytes))
	for _, ps := range partitionSums {
		payload = binary.LittleEndian.AppendUint16(payload, ps)
	}
	payload = append(payload, byte(bitsPerLen))
	payload = append(payload, bw.Bytes()...)
	payload = append(payload, offsetBytes...)
	return payload
}

func (pRoaringCodec) test(target uint32, keyBits int, payload []byte) bool {
	numBuckets := numRoaringBuckets(keyBits)
	numPartitions := (numBuckets + pRoaringPartitionBuckets - 1) / pRoaringPartitionBuckets
	headerLen := 2 * numPartitions
	if headerLen+1 > len(payload) {
		return false
	}

	bucket := int(target >> 8)
	low := byte(target & 0xff)
	partition := bucket / pRoaringPartitionBuckets

	var baseOffset int
	for p := 0; p < partition; p++ {
		baseOffset += int(binary.LittleEndian.Uint16(payload[2*p : 2*p+2]))
	}
	if partitionSum := int(binary.LittleEndian.Uint16(payload[2*partition : 2*partition+2])); partitionSum == 0 {
		return false
	}

	bitsPerLen := int(payload[headerLen])
	packedLen := base.PackedByteLen(bitsPerLen, numBuckets)
	if headerLen+1+packedLen > len(payload) {
		return false
	}

	partitionStart := partition * pRoaringPartitionBuckets
	br := base.BitReader{Buf: payload[headerLen+1 : headerLen+1+packedLen]}
	br.SeekBit(partitionStart * bitsPerLen)
	offsetWithinPartition := 0
	for b := partitionStart; b < bucket; b++ {
		offsetWithinPartition += int(br.ReadBits(bitsPerLen))
	}
	size := int(br.ReadBits(bitsPerLen))

	start := baseOffset + offsetWithinPartition
	offArr := payload[headerLen+1+packedLen:]
	if start+size > len(offArr) {
		return false
	}
	for _, v := range offArr[start : start+size] {
		if v == low {
			return true
		}
		if v > low {
			return false
		}
	}
	return false
}
