package writebuffer

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinishAndSortIsPermutationAndOrdered(t *testing.T) {
	var b Buffer
	rng := rand.New(rand.NewSource(7))
	n := 500
	inserted := make(map[string]int, n)
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("k%05d", rng.Intn(100000))
		v := fmt.Sprintf("v%d", i)
		inserted[k+"="+v]++
		b.Add([]byte(k), []byte(v))
	}
	b.FinishAndSort()

	it := b.NewIterator()
	var prev []byte
	count := 0
	for it.Next() {
		require.True(t, prev == nil || string(prev) <= string(it.Key()))
		kv := string(it.Key()) + "=" + string(it.Value())
		require.Positive(t, inserted[kv], "record %q was not inserted or is yielded twice", kv)
		inserted[kv]--
		prev = append([]byte{}, it.Key()...)
		count++
	}
	require.Equal(t, n, count)
}

func TestResetClearsState(t *testing.T) {
	var b Buffer
	b.Add([]byte("a"), []byte("1"))
	require.False(t, b.Empty())
	b.Reset()
	require.True(t, b.Empty())
	require.Equal(t, 0, b.Count())
}

func TestMemoryUsageTracksCapacity(t *testing.T) {
	var b Buffer
	for i := 0; i < 100; i++ {
		b.Add([]byte("key"), []byte("value"))
	}
	require.Greater(t, b.MemoryUsage(), 0)
}
