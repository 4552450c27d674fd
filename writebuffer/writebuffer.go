// Package writebuffer implements the append-only in-memory write buffer
// of spec §4.C: records are appended as they arrive and sorted only
// once, at flush time, by reordering a parallel offset array rather
// than moving the backing bytes.
package writebuffer

import (
	"encoding/binary"
	"sort"

	"github.com/plfs/plfsio/internal/base"
)

// Buffer is an append-only KV buffer. The zero value is ready to use.
// Reset empties a Buffer while keeping its capacity so it can take a
// fresh round of Add calls. directory.Logger does not reuse buffers
// this way: it resets the buffer it has just compacted, drops it, and
// starts every new mem_buf as a fresh Buffer.
type Buffer struct {
	buf     []byte
	offsets []int
	byKey   bool // true once FinishAndSort has reordered offsets
}

// Add appends a (key, value) record, per spec §4.C: "records
// offsets.push(buffer.size) then appends varint(k.size) || k ||
// varint(v.size) || v".
func (b *Buffer) Add(key, value []byte) {
	base.AssertTrue(!b.byKey, "writebuffer: Add called after FinishAndSort without Reset")
	b.offsets = append(b.offsets, len(b.buf))
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(key)))
	b.buf = append(b.buf, tmp[:n]...)
	b.buf = append(b.buf, key...)
	n = binary.PutUvarint(tmp[:], uint64(len(value)))
	b.buf = append(b.buf, tmp[:n]...)
	b.buf = append(b.buf, value...)
}

// Count returns the number of records added since the last Reset.
func (b *Buffer) Count() int { return len(b.offsets) }

// Empty reports whether no records have been added since the last Reset.
func (b *Buffer) Empty() bool { return len(b.offsets) == 0 }

func (b *Buffer) recordAt(offset int) (key, value []byte) {
	p := b.buf[offset:]
	klen, n := binary.Uvarint(p)
	p = p[n:]
	key = p[:klen]
	p = p[klen:]
	vlen, n := binary.Uvarint(p)
	p = p[n:]
	value = p[:vlen]
	return key, value
}

// FinishAndSort sorts offsets by the lexicographic ordering of the
// keys they reference, insertion order as the tie-break (spec §3's
// invariant), without moving the backing bytes.
func (b *Buffer) FinishAndSort() {
	if b.byKey {
		return
	}
	idx := make([]int, len(b.offsets))
	for i := range idx {
		idx[i] = i
	}
	offsets := b.offsets
	sort.SliceStable(idx, func(i, j int) bool {
		ki, _ := b.recordAt(offsets[idx[i]])
		kj, _ := b.recordAt(offsets[idx[j]])
		return base.Compare(ki, kj) < 0
	})
	sortedOffsets := make([]int, len(offsets))
	for i, id := range idx {
		sortedOffsets[i] = offsets[id]
	}
	b.offsets = sortedOffsets
	b.byKey = true
}

// Iterator yields the buffer's records in sorted order after
// FinishAndSort (or insertion order otherwise).
type Iterator struct {
	b   *Buffer
	pos int
}

// NewIterator returns an iterator over b's records. b must not be
// mutated while the iterator is in use.
func (b *Buffer) NewIterator() *Iterator {
	return &Iterator{b: b, pos: -1}
}

// Next advances the iterator, returning false once exhausted.
func (it *Iterator) Next() bool {
	it.pos++
	return it.pos < len(it.b.offsets)
}

// Key returns the current record's key.
func (it *Iterator) Key() []byte {
	k, _ := it.b.recordAt(it.b.offsets[it.pos])
	return k
}

// Value returns the current record's value.
func (it *Iterator) Value() []byte {
	_, v := it.b.recordAt(it.b.offsets[it.pos])
	return v
}

// Reset drops offsets, clears the buffer and marks it unfinished, per
// spec §4.C, so the Buffer can accept a fresh round of Add calls.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.offsets = b.offsets[:0]
	b.byKey = false
}

// MemoryUsage reports buffer.capacity + offsets.capacity*4, the
// bookkeeping spec §4.C defines for total_memtable_budget accounting.
func (b *Buffer) MemoryUsage() int {
	return cap(b.buf) + cap(b.offsets)*4
}
