package block

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterIterRoundTrip(t *testing.T) {
	var w Writer
	w.RestartInterval = 4
	var keys, values []string
	for i := 0; i < 37; i++ {
		k := fmt.Sprintf("key%04d", i)
		v := fmt.Sprintf("value-%d", i)
		keys = append(keys, k)
		values = append(values, v)
		w.Add([]byte(k), []byte(v))
	}
	require.Equal(t, 37, w.EntryCount())
	data := w.Finish()

	it, err := NewIter(data)
	require.NoError(t, err)
	ok, err := it.First()
	require.NoError(t, err)
	require.True(t, ok)
	for i := 0; i < len(keys); i++ {
		require.True(t, it.Valid())
		require.Equal(t, keys[i], string(it.Key()))
		require.Equal(t, values[i], string(it.Value()))
		more, err := it.Next()
		require.NoError(t, err)
		if i == len(keys)-1 {
			require.False(t, more)
		}
	}
}

func TestIterSeekGE(t *testing.T) {
	var w Writer
	w.RestartInterval = 3
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("k%04d", i)
		w.Add([]byte(k), []byte(k))
	}
	data := w.Finish()
	it, err := NewIter(data)
	require.NoError(t, err)

	ok, err := it.SeekGE([]byte("k0025"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "k0025", string(it.Key()))

	ok, err = it.SeekGE([]byte("k0025b"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "k0026", string(it.Key()))

	ok, err = it.SeekGE([]byte("zzz"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmptyBlockHasNoEntries(t *testing.T) {
	var w Writer
	require.True(t, w.Empty())
	data := w.Finish()
	it, err := NewIter(data)
	require.NoError(t, err)
	ok, err := it.First()
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = it.SeekGE([]byte("anything"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHandleRoundTrip(t *testing.T) {
	h := Handle{Offset: 123456, Size: 789}
	var buf []byte
	buf = h.EncodeTo(buf)
	got, n := DecodeHandle(buf)
	require.Equal(t, len(buf), n)
	require.Equal(t, h, got)
}

func TestTrailerChecksumRoundTrip(t *testing.T) {
	payload := []byte("hello world, this is a block payload")
	for _, ct := range []ChecksumType{ChecksumTypeNone, ChecksumTypeCRC32C, ChecksumTypeXXHash64} {
		trailer := AppendTrailer(ct, CompressionNone, false, payload)
		got, err := ValidateAndDecompress(ct, trailer)
		require.NoError(t, err)
		require.Equal(t, payload, got)
	}
}

func TestTrailerCompression(t *testing.T) {
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 7)
	}
	trailer := AppendTrailer(ChecksumTypeCRC32C, CompressionSnappy, false, payload)
	got, err := ValidateAndDecompress(ChecksumTypeCRC32C, trailer)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestTrailerCorruption(t *testing.T) {
	payload := []byte("corruptible payload")
	trailer := AppendTrailer(ChecksumTypeCRC32C, CompressionNone, false, payload)
	trailer[0] ^= 0xff
	_, err := ValidateAndDecompress(ChecksumTypeCRC32C, trailer)
	require.Error(t, err)
}
