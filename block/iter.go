package block

import (
	"encoding/binary"

	"github.com/cockroachdb/redact"

	"github.com/plfs/plfsio/internal/base"
)

// Iter is a row-oriented block iterator: restart-point binary search
// followed by a linear scan, grounded on sstable/rowblk.Iter's
// restart-search-then-linear-scan shape (spec §4.F: "binary-search
// index block... fetch candidate data block... linearly scan to the
// key").
type Iter struct {
	data        []byte
	restartsOff int
	numRestarts int

	offset int // start of the current entry
	next   int // start of the following entry
	key    []byte
	value  []byte
	valid  bool
}

// NewIter parses the restart footer of a Finish()'d, trailer-stripped
// block and returns an iterator over it. A block with zero entries
// (numRestarts == 0) is valid: First returns false without error.
func NewIter(data []byte) (*Iter, error) {
	if len(data) < 4 {
		return nil, base.CorruptionErrorf("block too short: %d bytes", redact.Safe(len(data)))
	}
	numRestarts := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	restartsOff := len(data) - 4 - 4*numRestarts
	if numRestarts < 0 || restartsOff < 0 {
		return nil, base.CorruptionErrorf("block has invalid restart count %d", redact.Safe(numRestarts))
	}
	return &Iter{data: data, restartsOff: restartsOff, numRestarts: numRestarts}, nil
}

func (i *Iter) restartPoint(idx int) int {
	return int(binary.LittleEndian.Uint32(i.data[i.restartsOff+4*idx:]))
}

// decodeEntryAt decodes the (shared, unshared, valueLen) triple and
// returns the offset of the unshared key bytes, the offset of the
// value bytes, and the offset immediately following the entry.
func decodeEntryAt(data []byte, offset int) (shared, unshared, valueLen, keyOff, valOff, nextOff int, err error) {
	p := offset
	sharedU, n := binary.Uvarint(data[p:])
	if n <= 0 {
		return 0, 0, 0, 0, 0, 0, base.CorruptionErrorf("bad shared-prefix varint at %d", redact.Safe(offset))
	}
	p += n
	unsharedU, n := binary.Uvarint(data[p:])
	if n <= 0 {
		return 0, 0, 0, 0, 0, 0, base.CorruptionErrorf("bad unshared-len varint at %d", redact.Safe(offset))
	}
	p += n
	valLenU, n := binary.Uvarint(data[p:])
	if n <= 0 {
		return 0, 0, 0, 0, 0, 0, base.CorruptionErrorf("bad value-len varint at %d", redact.Safe(offset))
	}
	p += n
	keyOff = p
	valOff = keyOff + int(unsharedU)
	nextOff = valOff + int(valLenU)
	if nextOff > len(data) {
		return 0, 0, 0, 0, 0, 0, base.CorruptionErrorf("entry at %d overruns block", redact.Safe(offset))
	}
	return int(sharedU), int(unsharedU), int(valLenU), keyOff, valOff, nextOff, nil
}

// positionAt decodes the entry starting at offset, reconstructing the
// full key from prevKey's shared prefix, and sets i.key/i.value.
func (i *Iter) positionAt(offset int, prevKey []byte) error {
	shared, unshared, _, keyOff, valOff, nextOff, err := decodeEntryAt(i.data, offset)
	if err != nil {
		return err
	}
	key := make([]byte, shared+unshared)
	copy(key, prevKey[:shared])
	copy(key[shared:], i.data[keyOff:valOff])
	i.key = key
	i.value = i.data[valOff:nextOff]
	i.offset = offset
	i.next = nextOff
	i.valid = true
	return nil
}

// restartKey decodes the key stored at a restart point; restart-point
// entries always have shared==0 (spec §4.A), so no prefix chain is
// needed.
func (i *Iter) restartKey(idx int) ([]byte, error) {
	off := i.restartPoint(idx)
	shared, unshared, _, keyOff, _, _, err := decodeEntryAt(i.data, off)
	if err != nil {
		return nil, err
	}
	if shared != 0 {
		return nil, base.CorruptionErrorf("restart point %d has nonzero shared prefix", redact.Safe(idx))
	}
	return i.data[keyOff : keyOff+unshared], nil
}

// SeekGE positions the iterator at the first entry with key >= target,
// returning false if no such entry exists in this block.
func (i *Iter) SeekGE(target []byte) (bool, error) {
	if i.numRestarts == 0 {
		i.valid = false
		return false, nil
	}
	lo, hi := 0, i.numRestarts-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		k, err := i.restartKey(mid)
		if err != nil {
			return false, err
		}
		if base.Compare(k, target) < 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	// lo is the last restart whose key < target, or 0 if none qualify.
	// Stopping short of restarts equal to target means the scan below
	// reaches the first of several duplicate entries, not a later copy.
	offset := i.restartPoint(lo)
	prevKey := []byte{}
	for offset < i.restartsOff {
		if err := i.positionAt(offset, prevKey); err != nil {
			return false, err
		}
		if base.Compare(i.key, target) >= 0 {
			return true, nil
		}
		prevKey = i.key
		offset = i.next
	}
	i.valid = false
	return false, nil
}

// First positions the iterator at the first entry in the block,
// returning false if the block has no entries.
func (i *Iter) First() (bool, error) {
	if i.numRestarts == 0 {
		i.valid = false
		return false, nil
	}
	if err := i.positionAt(i.restartPoint(0), nil); err != nil {
		return false, err
	}
	return true, nil
}

// Next advances the iterator to the following entry, returning false
// once the block is exhausted.
func (i *Iter) Next() (bool, error) {
	if !i.valid || i.next >= i.restartsOff {
		i.valid = false
		return false, nil
	}
	prevKey := i.key
	if err := i.positionAt(i.next, prevKey); err != nil {
		return false, err
	}
	return true, nil
}

// Valid reports whether the iterator is positioned at an entry.
func (i *Iter) Valid() bool { return i.valid }

// Key returns the key at the iterator's current position.
func (i *Iter) Key() []byte { return i.key }

// Value returns the value at the iterator's current position.
func (i *Iter) Value() []byte { return i.value }
