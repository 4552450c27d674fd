// Package logsink implements the append-only, reference-counted writer
// over a vfs.File that backs both the data log and the index log (spec
// §3: "Log sinks are shared (reference-counted) by the logger and any
// in-flight flush"; spec §5: "Log sinks are internally serialised
// (their own lock)").
package logsink

import (
	"bufio"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/plfs/plfsio/internal/vfs"
)

// Sink is an append-only writer over one vfs.File, tracking the
// current write offset so callers can record block handles as they
// append. Writes go through an optional bufio.Writer, sized by
// WithBufferSize, so a shard's DATA_BUFFER/INDEX_BUFFER tuning
// (spec §6) can amortize small block-sized Appends into fewer
// syscalls; the zero buffer size writes straight through to file.
type Sink struct {
	mu     sync.Mutex
	file   vfs.File
	w      *bufio.Writer
	offset uint64
	refs   int32
	name   string
}

// Option configures a Sink at Open time.
type Option func(*Sink)

// WithBufferSize wraps the sink's writes in a buffer of size n bytes.
// n <= 0 leaves writes unbuffered.
func WithBufferSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.w = bufio.NewWriterSize(s.file, n)
		}
	}
}

// Open creates (or truncates) name on fs and returns a Sink with one
// reference held by the caller.
func Open(fs vfs.FS, name string, opts ...Option) (*Sink, error) {
	f, err := fs.Create(name)
	if err != nil {
		return nil, errors.Wrapf(err, "logsink: create %q", name)
	}
	s := &Sink{file: f, refs: 1, name: name}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ref increments the sink's reference count; each flush that has
// handed the sink's file off for background writing holds its own
// reference so Close only actually closes the file once every borrower
// is done, per spec §3's shared-sink ownership rule.
func (s *Sink) Ref() *Sink {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
	return s
}

// Append writes p to the sink and returns the offset at which it was
// written. Concurrent Append calls are serialized by the sink's own
// lock (spec §5).
func (s *Sink) Append(p []byte) (offset uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if s.w != nil {
		n, err = s.w.Write(p)
	} else {
		n, err = s.file.Write(p)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "logsink: append to %q", s.name)
	}
	offset = s.offset
	s.offset += uint64(n)
	return offset, nil
}

// Size returns the number of bytes appended to the sink so far.
func (s *Sink) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Sync flushes any buffered bytes and syncs the underlying file to
// stable storage.
func (s *Sink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w != nil {
		if err := s.w.Flush(); err != nil {
			return errors.Wrapf(err, "logsink: flush %q", s.name)
		}
	}
	return s.file.Sync()
}

// Close releases the caller's reference; the underlying file is closed
// only when the last reference is released, after flushing any
// buffered bytes.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs > 0 {
		return nil
	}
	if s.w != nil {
		if err := s.w.Flush(); err != nil {
			return errors.Wrapf(err, "logsink: flush %q", s.name)
		}
	}
	return s.file.Close()
}

// OpenReader opens name for reading on fs, for use by directory.Reader.
func OpenReader(fs vfs.FS, name string) (vfs.File, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "logsink: open %q", name)
	}
	return f, nil
}
