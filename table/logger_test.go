package table

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plfs/plfsio/block"
	"github.com/plfs/plfsio/filter"
	"github.com/plfs/plfsio/filter/bloom"
	"github.com/plfs/plfsio/internal/logsink"
	"github.com/plfs/plfsio/internal/vfs"
)

func openSinks(t *testing.T) (data, index *logsink.Sink) {
	t.Helper()
	fs := vfs.NewMem()
	d, err := logsink.Open(fs, "DATA")
	require.NoError(t, err)
	i, err := logsink.Open(fs, "INDEX")
	require.NoError(t, err)
	return d, i
}

func readBlockAt(t *testing.T, sink *logsink.Sink, fs *vfs.MemFS, name string, h block.Handle) *block.Iter {
	t.Helper()
	f, err := fs.Open(name)
	require.NoError(t, err)
	raw := make([]byte, h.Size+block.TrailerLen)
	_, err = f.ReadAt(raw, int64(h.Offset))
	require.NoError(t, err)
	payload, err := block.ValidateAndDecompress(block.ChecksumTypeCRC32C, raw)
	require.NoError(t, err)
	it, err := block.NewIter(payload)
	require.NoError(t, err)
	return it
}

func TestLoggerSingleEpochRoundTrip(t *testing.T) {
	fs := vfs.NewMem()
	dataSink, err := logsink.Open(fs, "DATA")
	require.NoError(t, err)
	indexSink, err := logsink.Open(fs, "INDEX")
	require.NoError(t, err)

	opts := Options{BlockSize: 256, BlockUtil: 0.9, ChecksumType: block.ChecksumTypeCRC32C}
	l := NewLogger(dataSink, indexSink, opts)

	const n = 200
	fw := &bloom.Writer{BitsPerKey: 10}
	fw.Reset(n)
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		fw.AddKey(key)
		require.NoError(t, l.Add(key, []byte(fmt.Sprintf("value-%d", i))))
	}
	require.NoError(t, l.EndTable(fw, filter.TypeBloom))
	require.NoError(t, l.MakeEpoch())
	require.NoError(t, l.Finish())
	require.NoError(t, l.Err())

	require.EqualValues(t, 1, l.Stats.NumTables)
	require.EqualValues(t, 1, l.Stats.NumEpochs)
	require.Greater(t, l.Stats.DataBytesFinal, uint64(0))
	require.Greater(t, l.Stats.KeyBytesRaw, uint64(0))

	// Walk the footer -> root -> meta-index -> index -> data chain by hand
	// to confirm the on-disk structure is self-consistent.
	indexFile, err := fs.Open("INDEX")
	require.NoError(t, err)
	info, err := indexFile.Stat()
	require.NoError(t, err)
	footer := make([]byte, FooterLen)
	_, err = indexFile.ReadAt(footer, info.Size()-FooterLen)
	require.NoError(t, err)
	require.Equal(t, FooterMagic, binary.LittleEndian.Uint64(footer[FooterLen-8:]))
	rootHandle, _ := block.DecodeHandle(footer)

	rootIt := readBlockAt(t, indexSink, fs, "INDEX", rootHandle)
	ok, err := rootIt.First()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), binary.BigEndian.Uint64(rootIt.Key()))
	metaHandle, _ := block.DecodeHandle(rootIt.Value())

	metaIt := readBlockAt(t, indexSink, fs, "INDEX", metaHandle)
	ok, err = metaIt.First()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(fmt.Sprintf("key-%05d", n-1)), metaIt.Key())
	indexHandle, nRead := block.DecodeHandle(metaIt.Value())
	filterHandle, m := block.DecodeHandle(metaIt.Value()[nRead:])
	filterType := filter.Type(metaIt.Value()[nRead+m])
	require.Equal(t, filter.TypeBloom, filterType)

	idxIt := readBlockAt(t, indexSink, fs, "INDEX", indexHandle)
	ok, err = idxIt.First()
	require.NoError(t, err)
	require.True(t, ok)
	dataHandle, _ := block.DecodeHandle(idxIt.Value())

	dataIt := readBlockAt(t, dataSink, fs, "DATA", dataHandle)
	ok, err = dataIt.First()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("key-00000"), dataIt.Key())

	filterRaw := make([]byte, filterHandle.Size+block.TrailerLen)
	ff, err := fs.Open("INDEX")
	require.NoError(t, err)
	_, err = ff.ReadAt(filterRaw, int64(filterHandle.Offset))
	require.NoError(t, err)
	filterPayload, err := block.ValidateAndDecompress(block.ChecksumTypeCRC32C, filterRaw)
	require.NoError(t, err)
	require.True(t, bloom.MayMatch([]byte("key-00000"), filterPayload))
}

func TestLoggerEmptyTableIsNoop(t *testing.T) {
	dataSink, indexSink := openSinks(t)
	l := NewLogger(dataSink, indexSink, Options{})
	require.NoError(t, l.EndTable(nil, filter.TypeNone))
	require.EqualValues(t, 0, l.Stats.NumTables)
	require.NoError(t, l.MakeEpoch())
	require.NoError(t, l.Finish())
	require.NoError(t, l.Err())
}

func TestLoggerLatchesErrorAndFinishIsIdempotent(t *testing.T) {
	dataSink, indexSink := openSinks(t)
	l := NewLogger(dataSink, indexSink, Options{ParanoidChecks: true})
	require.NoError(t, l.Add([]byte("b"), []byte("1")))
	err := l.Add([]byte("a"), []byte("2"))
	require.Error(t, err)
	require.Equal(t, err, l.Err())
	// Subsequent calls are no-ops returning the latched error.
	require.Equal(t, err, l.EndTable(nil, filter.TypeNone))
	require.Equal(t, err, l.MakeEpoch())
	require.Equal(t, err, l.Finish())
	require.Equal(t, err, l.Finish())
}

func TestLoggerMultiEpoch(t *testing.T) {
	dataSink, indexSink := openSinks(t)
	l := NewLogger(dataSink, indexSink, Options{BlockSize: 64})
	for epoch := 0; epoch < 3; epoch++ {
		for i := 0; i < 10; i++ {
			key := []byte(fmt.Sprintf("e%d-k%03d", epoch, i))
			require.NoError(t, l.Add(key, []byte("v")))
		}
		require.NoError(t, l.EndTable(nil, filter.TypeNone))
		require.NoError(t, l.MakeEpoch())
	}
	require.NoError(t, l.Finish())
	require.EqualValues(t, 3, l.Stats.NumTables)
	require.EqualValues(t, 3, l.Stats.NumEpochs)
	require.EqualValues(t, 3, l.EpochCount())
}
