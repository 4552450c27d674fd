package vfs

import (
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// MemFS is an in-memory FS, grounded on vfs/mem_fs.go, trimmed to the
// subset spec §8's round-trip scenarios exercise: create, open, remove,
// list. Unlike the teacher's MemFS, directories are not modelled as a
// tree of nodes — a directory log never nests paths more than one level
// ("<dir>/DATA", "<dir>/INDEX") so a flat name->node map suffices.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memNode
}

// NewMem returns a new in-memory filesystem implementation.
func NewMem() *MemFS {
	return &MemFS{files: make(map[string]*memNode)}
}

type memNode struct {
	mu   sync.Mutex
	data []byte
	// dir records that Path is a directory created via MkdirAll. It has
	// no data of its own but must exist for List to enumerate under it.
	dir bool
}

func (y *MemFS) Create(name string) (File, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	n := &memNode{}
	y.files[name] = n
	return &memFile{name: name, n: n}, nil
}

func (y *MemFS) Open(name string) (File, error) {
	y.mu.Lock()
	n, ok := y.files[name]
	y.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(os.ErrNotExist, "vfs: open %q", name)
	}
	return &memFile{name: name, n: n, readOnly: true}, nil
}

func (y *MemFS) Remove(name string) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if _, ok := y.files[name]; !ok {
		return errors.Wrapf(os.ErrNotExist, "vfs: remove %q", name)
	}
	delete(y.files, name)
	return nil
}

func (y *MemFS) MkdirAll(dir string, perm os.FileMode) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if _, ok := y.files[dir]; !ok {
		y.files[dir] = &memNode{dir: true}
	}
	return nil
}

func (y *MemFS) List(dir string) ([]string, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	prefix := dir
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	for name := range y.files {
		if name == dir {
			continue
		}
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (y *MemFS) Stat(name string) (os.FileInfo, error) {
	y.mu.Lock()
	n, ok := y.files[name]
	y.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(os.ErrNotExist, "vfs: stat %q", name)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return &memFileInfo{name: name, size: int64(len(n.data)), dir: n.dir}, nil
}

type memFile struct {
	name     string
	n        *memNode
	readOnly bool
	rOff     int64
}

func (f *memFile) Close() error { return nil }

func (f *memFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.rOff)
	f.rOff += int64(n)
	return n, err
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if off >= int64(len(f.n.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.readOnly {
		return 0, errors.Newf("vfs: write to read-only file %q", f.name)
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.data = append(f.n.data, p...)
	return len(p), nil
}

func (f *memFile) Stat() (os.FileInfo, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	return &memFileInfo{name: f.name, size: int64(len(f.n.data))}, nil
}

func (f *memFile) Sync() error { return nil }

type memFileInfo struct {
	name string
	size int64
	dir  bool
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) Mode() os.FileMode  { return 0644 }
func (fi *memFileInfo) ModTime() time.Time { return time.Time{} }
func (fi *memFileInfo) IsDir() bool        { return fi.dir }
func (fi *memFileInfo) Sys() interface{}   { return nil }
