package cuckoo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertedKeysAlwaysMatch(t *testing.T) {
	w := &Writer{BitsPerKey: 16, Frac: 0.9, MaxMoves: 500}
	const n = 2000
	w.Reset(n)
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte(fmt.Sprintf("cuckoo-key-%06d", i))
		w.AddKey(keys[i])
	}
	blob := w.Finish()
	for _, k := range keys {
		require.True(t, MayMatch(k, blob), "key %q should match", k)
	}
}

func TestAltIsInvolutive(t *testing.T) {
	i := uint64(12345)
	fp := uint32(77)
	require.Equal(t, i, Alt(Alt(i, fp), fp))
}

func TestVictimsMatchOnOverload(t *testing.T) {
	// Force many collisions into a tiny table to exercise the victim
	// path and confirm persisted victims still answer true.
	w := &Writer{BitsPerKey: 10, Frac: 0.95, MaxMoves: 2}
	w.Reset(1)
	w.numBuckets = 1
	w.buckets = make([][SlotsPerBucket]uint32, 1)
	var keys [][]byte
	for i := 0; i < 20; i++ {
		k := []byte(fmt.Sprintf("overload-%d", i))
		keys = append(keys, k)
		w.AddKey(k)
	}
	blob := w.Finish()
	for _, k := range keys {
		require.True(t, MayMatch(k, blob))
	}
}
