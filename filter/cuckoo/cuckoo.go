// Package cuckoo implements the cuckoo-fingerprint filter of spec
// §4.B.3: a 4-way-set-associative table of buckets, each holding four
// bits_per_key-wide fingerprints, with the classic cuckoo-hashing
// eviction scheme for handling collisions.
package cuckoo

import (
	"math"
	"math/bits"
	"math/rand"

	"github.com/cespare/xxhash/v2"
	"github.com/plfs/plfsio/internal/base"
	"github.com/plfs/plfsio/filter"
)

// SlotsPerBucket is fixed at 4 per spec §4.B.3.
const SlotsPerBucket = 4

// Writer builds a cuckoo filter over a table's keys.
type Writer struct {
	// BitsPerKey is the fingerprint width; spec §4.B.3 allows
	// {10,16,20,24,32}.
	BitsPerKey int
	// Frac is the load factor target (spec: cuckoo_frac, e.g. 0.95).
	Frac float64
	// MaxMoves bounds the eviction chain length before a fingerprint is
	// pushed into the victim set, which Finish persists in the blob.
	MaxMoves int
	// Seed seeds the two internal hash functions.
	Seed uint64

	numBuckets int
	buckets    [][SlotsPerBucket]uint32
	victims    []uint32
	rng        *rand.Rand
}

var _ filter.Writer = (*Writer)(nil)

func (w *Writer) frac() float64 {
	if w.Frac <= 0 || w.Frac > 1 {
		return 0.95
	}
	return w.Frac
}

func (w *Writer) maxMoves() int {
	if w.MaxMoves <= 0 {
		return 500
	}
	return w.MaxMoves
}

// Reset allocates a bucket table sized for numKeys at the configured
// load factor, per spec §4.B.3: num_buckets = next_pow2(ceil(num_keys /
// (4 * frac))).
func (w *Writer) Reset(numKeys int) {
	need := 1
	if numKeys > 0 {
		need = int(math.Ceil(float64(numKeys) / (float64(SlotsPerBucket) * w.frac())))
	}
	w.numBuckets = nextPow2(need)
	w.buckets = make([][SlotsPerBucket]uint32, w.numBuckets)
	w.victims = w.victims[:0]
	w.rng = rand.New(rand.NewSource(int64(w.Seed)))
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Fingerprint derives a nonzero bits_per_key-wide fingerprint from key,
// per spec §4.B.3 ("forced nonzero").
func Fingerprint(key []byte, bitsPerKey int, seed uint64) uint32 {
	h := xxhash.Sum64(key) ^ (seed * 0x9e3779b97f4a7c15)
	fp := uint32(h) & ((uint32(1) << uint(bitsPerKey)) - 1)
	if fp == 0 {
		fp = 1
	}
	return fp
}

// Hash derives the home bucket index for key (spec: CuckooHash(key)).
func Hash(key []byte, seed uint64) uint64 {
	return xxhash.Sum64(key) ^ seed
}

// Alt returns the alternate bucket index for a fingerprint, involutive
// by construction: Alt(Alt(i, fp), fp) == i (spec §4.B.3: "CuckooAlt(i,
// fp) = i XOR hash_of_fp").
func Alt(i uint64, fp uint32) uint64 {
	return i ^ hashOfFingerprint(fp)
}

func hashOfFingerprint(fp uint32) uint64 {
	var b [4]byte
	b[0], b[1], b[2], b[3] = byte(fp), byte(fp>>8), byte(fp>>16), byte(fp>>24)
	return xxhash.Sum64(b[:])
}

// AddKey inserts key's fingerprint, evicting and relocating existing
// entries as needed, per spec §4.B.3's insert algorithm.
func (w *Writer) AddKey(key []byte) {
	fp := Fingerprint(key, w.BitsPerKey, w.Seed)
	i := Hash(key, w.Seed) % uint64(w.numBuckets)
	w.insert(i, fp)
}

func (w *Writer) insert(i uint64, fp uint32) {
	for move := 0; move <= w.maxMoves(); move++ {
		bucket := &w.buckets[i]
		for s := 0; s < SlotsPerBucket; s++ {
			if bucket[s] == fp {
				return // duplicate, done
			}
		}
		for s := 0; s < SlotsPerBucket; s++ {
			if bucket[s] == 0 {
				bucket[s] = fp
				return
			}
		}
		if move == 0 {
			// Never evict on the very first iteration (spec §4.B.3): first
			// try the alternate bucket before giving up a slot.
			i = Alt(i, fp) % uint64(w.numBuckets)
			continue
		}
		victimSlot := w.rng.Intn(SlotsPerBucket)
		fp, bucket[victimSlot] = bucket[victimSlot], fp
		i = Alt(i, fp) % uint64(w.numBuckets)
	}
	// Exceeded MaxMoves: fp becomes an unavoidable victim (spec §9's open
	// question). We persist the victim set in the trailer rather than
	// silently dropping it (DESIGN.md).
	w.victims = append(w.victims, fp)
}

// Finish returns the finished cuckoo filter: the packed bucket array,
// the persisted victim-fingerprint list, and a trailer of
// {num_buckets, bits_per_key, num_victims} as three fixed32 LE values.
//
// Spec §9 leaves the victim set unpersisted, producing silent false
// negatives whenever max_moves is exceeded; this reimplementation
// resolves that open question by persisting victims instead, so
// MayMatch below never produces a false negative for a key whose
// fingerprint collided its way into the victim set.
func (w *Writer) Finish() []byte {
	bw := base.BitWriter{}
	for _, bucket := range w.buckets {
		for _, fp := range bucket {
			bw.WriteBits(uint64(fp), w.BitsPerKey)
		}
	}
	payload := bw.Bytes()

	out := make([]byte, 0, len(payload)+4*len(w.victims)+12)
	out = append(out, payload...)
	for _, v := range w.victims {
		out = appendUint32LE(out, v)
	}
	out = appendUint32LE(out, uint32(w.numBuckets))
	out = appendUint32LE(out, uint32(w.BitsPerKey))
	out = appendUint32LE(out, uint32(len(w.victims)))
	return out
}

func appendUint32LE(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func readUint32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// MayMatch answers a membership query against a finished cuckoo filter
// built with the default (zero) seed. Filters built with a nonzero
// directory.Options seed must use MayMatchWithSeed instead.
func MayMatch(key, blob []byte) bool {
	return MayMatchWithSeed(key, blob, 0)
}

// MayMatchWithSeed is MayMatch but for filters built with a nonzero
// Writer.Seed; the seed is not itself part of the wire format (spec
// §4.B.3 doesn't name one), so callers must supply the same seed used
// at build time out of band, via directory.Options.
func MayMatchWithSeed(key, blob []byte, seed uint64) bool {
	if len(blob) < 12 {
		return true
	}
	numVictims := readUint32LE(blob[len(blob)-4:])
	bitsPerKey := readUint32LE(blob[len(blob)-8:])
	numBuckets := readUint32LE(blob[len(blob)-12:])
	trailerLen := 12 + 4*int(numVictims)
	if len(blob) < trailerLen {
		return true
	}
	payload := blob[:len(blob)-trailerLen]
	victims := blob[len(blob)-trailerLen : len(blob)-12]

	fp := Fingerprint(key, int(bitsPerKey), seed)
	i1 := Hash(key, seed) % uint64(numBuckets)
	i2 := Alt(i1, fp) % uint64(numBuckets)

	br := base.BitReader{Buf: payload}
	check := func(bucket uint64) bool {
		br.SeekBit(int(bucket) * SlotsPerBucket * int(bitsPerKey))
		for s := 0; s < SlotsPerBucket; s++ {
			if uint32(br.ReadBits(int(bitsPerKey))) == fp {
				return true
			}
		}
		return false
	}
	if check(i1) || check(i2) {
		return true
	}
	for o := 0; o+4 <= len(victims); o += 4 {
		if readUint32LE(victims[o:]) == fp {
			return true
		}
	}
	return false
}
