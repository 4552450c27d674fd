// Package vfs is the environment abstraction spec §6 calls out as an
// external collaborator: every log write and read in this module flows
// through an FS/File pair so tests can substitute an in-memory
// filesystem instead of touching disk.
package vfs

import (
	"io"
	"os"
)

// File is a readable, writable sequence of bytes. Typically it is an
// *os.File, but test code substitutes a memory-backed implementation.
type File interface {
	io.Closer
	io.Reader
	io.ReaderAt
	io.Writer
	Stat() (os.FileInfo, error)
	Sync() error
}

// FS is a namespace for files, matching spec §6's NewWritableFile /
// NewSequentialFile / NewRandomAccessFile / GetFileSize, renamed to
// Go's Create/Open/Stat idiom.
type FS interface {
	// Create creates the named file for writing, truncating it if it
	// already exists. This backs spec §6's NewWritableFile.
	Create(name string) (File, error)

	// Open opens the named file for reading, backing both
	// NewSequentialFile and NewRandomAccessFile: callers that only ever
	// call ReadAt get random access for free from the same handle.
	Open(name string) (File, error)

	// Remove removes the named file.
	Remove(name string) error

	// List returns a listing of the given directory.
	List(dir string) ([]string, error)

	// MkdirAll creates a directory and all necessary parents.
	MkdirAll(dir string, perm os.FileMode) error

	// Stat returns an os.FileInfo describing the named file, backing
	// GetFileSize via the returned Size().
	Stat(name string) (os.FileInfo, error)
}

// Default is an FS implementation backed by the operating system.
var Default FS = defaultFS{}

type defaultFS struct{}

func (defaultFS) Create(name string) (File, error) {
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (defaultFS) Open(name string) (File, error) {
	return os.OpenFile(name, os.O_RDONLY, 0)
}

func (defaultFS) Remove(name string) error {
	return os.Remove(name)
}

func (defaultFS) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (defaultFS) List(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

func (defaultFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}
