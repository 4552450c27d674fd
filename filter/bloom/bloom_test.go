package bloom

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllInsertedKeysMatch(t *testing.T) {
	w := &Writer{BitsPerKey: 10}
	const n = 5000
	w.Reset(n)
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("bloom-key-%06d", i))
		w.AddKey(keys[i])
	}
	blob := w.Finish()
	for _, k := range keys {
		require.True(t, MayMatch(k, blob))
	}
}

func TestFalsePositiveRateWithinBound(t *testing.T) {
	w := &Writer{BitsPerKey: 10}
	const n = 10000
	w.Reset(n)
	rng := rand.New(rand.NewSource(42))
	present := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("present-%d-%d", i, rng.Int63())
		present[k] = true
		w.AddKey([]byte(k))
	}
	blob := w.Finish()

	falsePositives := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		k := fmt.Sprintf("absent-%d-%d", i, rng.Int63())
		if present[k] {
			continue
		}
		if MayMatch([]byte(k), blob) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(trials)
	// bits_per_key=10 gives k=6 probes and a theoretical FPR of
	// (1-e^(-0.6))^6, about 0.84%; the 2% bound leaves room for sampling
	// noise and hash quality.
	require.Less(t, rate, 0.02)
}

func TestShortOrHighKMatchesConservatively(t *testing.T) {
	require.True(t, MayMatch([]byte("x"), nil))
	require.True(t, MayMatch([]byte("x"), []byte{0x01}))
	require.True(t, MayMatch([]byte("x"), []byte{0x00, 31}))
}
