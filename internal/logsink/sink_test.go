package logsink

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plfs/plfsio/internal/vfs"
)

func TestAppendTracksOffsets(t *testing.T) {
	fs := vfs.NewMem()
	s, err := Open(fs, "LOG")
	require.NoError(t, err)

	off, err := s.Append([]byte("hello"))
	require.NoError(t, err)
	require.EqualValues(t, 0, off)
	require.EqualValues(t, 5, s.Size())

	off, err = s.Append([]byte("world!"))
	require.NoError(t, err)
	require.EqualValues(t, 5, off)
	require.EqualValues(t, 11, s.Size())

	require.NoError(t, s.Close())

	f, err := fs.Open("LOG")
	require.NoError(t, err)
	defer f.Close()
	got := make([]byte, 11)
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, "helloworld!", string(got))
}

func TestRefKeepsFileOpenUntilLastClose(t *testing.T) {
	fs := vfs.NewMem()
	s, err := Open(fs, "LOG")
	require.NoError(t, err)
	s2 := s.Ref()
	require.Same(t, s, s2)

	require.NoError(t, s.Close())
	// A second reference is still outstanding; Append must still work.
	_, err = s.Append([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
}

func TestBufferedSinkFlushesOnSync(t *testing.T) {
	fs := vfs.NewMem()
	s, err := Open(fs, "LOG", WithBufferSize(4096))
	require.NoError(t, err)
	_, err = s.Append([]byte("buffered-payload"))
	require.NoError(t, err)

	// Before Sync, the buffer may not have reached the file yet.
	require.NoError(t, s.Sync())

	f, err := fs.Open("LOG")
	require.NoError(t, err)
	defer f.Close()
	got := make([]byte, len("buffered-payload"))
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, "buffered-payload", string(got))
	require.NoError(t, s.Close())
}

func TestOpenReaderSeesAppendedBytes(t *testing.T) {
	fs := vfs.NewMem()
	s, err := Open(fs, "LOG")
	require.NoError(t, err)
	_, err = s.Append([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	f, err := OpenReader(fs, "LOG")
	require.NoError(t, err)
	defer f.Close()
	got := make([]byte, len("payload"))
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}
