package bitmap

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func keyForIndex(i uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], i)
	return b[:]
}

func TestAllFormatsExactMembership(t *testing.T) {
	keyBits := 12
	domain := 1 << keyBits
	rng := rand.New(rand.NewSource(1))

	present := make(map[uint32]bool)
	for len(present) < domain/4 {
		present[uint32(rng.Intn(domain))] = true
	}

	for format := range encoders {
		t.Run(format.String(), func(t *testing.T) {
			w := &Writer{KeyBits: keyBits, Format: format}
			w.Reset(len(present))
			for i := range present {
				w.AddKey(keyForIndex(i))
			}
			blob := w.Finish()

			for i := 0; i < domain; i++ {
				want := present[uint32(i)]
				got := Test(uint32(i), blob)
				require.Equal(t, want, got, "format=%s index=%d", format, i)
			}
		})
	}
}

func TestAllFormatsEmptySet(t *testing.T) {
	keyBits := 10
	for format := range encoders {
		w := &Writer{KeyBits: keyBits, Format: format}
		w.Reset(0)
		blob := w.Finish()
		for i := 0; i < 1<<keyBits; i += 37 {
			require.False(t, Test(uint32(i), blob), "format=%s index=%d", format, i)
		}
	}
}

func TestShortBlobTreatedAsEmpty(t *testing.T) {
	require.False(t, Test(5, nil))
	require.False(t, Test(5, []byte{1}))
}
