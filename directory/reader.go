package directory

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/plfs/plfsio/block"
	"github.com/plfs/plfsio/filter"
	"github.com/plfs/plfsio/filter/bitmap"
	"github.com/plfs/plfsio/filter/bloom"
	"github.com/plfs/plfsio/filter/cuckoo"
	"github.com/plfs/plfsio/internal/base"
	"github.com/plfs/plfsio/internal/vfs"
	"github.com/plfs/plfsio/table"
)

// Reader answers Read(key) queries against a directory written by a
// Sharded logger, per spec §4.F: parse footer -> load root block -> for
// each epoch, scan meta-index -> probe filter -> binary-search index
// block -> scan candidate data block.
type Reader struct {
	fs           vfs.FS
	checksumType block.ChecksumType
	mode         Mode
	cuckooSeed   uint64
	logger       base.Logger
	shards       []*shardReader
}

type shardReader struct {
	dataFile  vfs.File
	indexFile vfs.File
	root      block.Handle
}

// ReaderOptions configures OpenReader; it mirrors the write-side
// Options fields a reader needs to reproduce routing and validation
// decisions (NumShards for shardFor, ChecksumType/Mode for the lookup
// path).
type ReaderOptions struct {
	NumShards    int
	ChecksumType block.ChecksumType
	Mode         Mode
	// CuckooSeed must match the Options.CuckooSeed the directory was
	// written with; a mismatch makes every cuckoo filter probe a false
	// negative, since fingerprints are seed-dependent. Ignored unless
	// the directory uses filter.TypeCuckoo.
	CuckooSeed uint64
	// Logger receives a line per corruption error Read encounters while
	// loading a shard's root block; errors found further down the lookup
	// path are returned without being logged. Defaults to
	// base.DefaultLogger.
	Logger base.Logger
}

// OpenReader opens every shard's DATA/INDEX log pair under dir and
// parses each one's footer and root block.
func OpenReader(fs vfs.FS, dir string, opts ReaderOptions) (*Reader, error) {
	if opts.NumShards <= 0 {
		opts.NumShards = 1
	}
	if opts.Logger == nil {
		opts.Logger = base.DefaultLogger{}
	}
	r := &Reader{fs: fs, checksumType: opts.ChecksumType, mode: opts.Mode, cuckooSeed: opts.CuckooSeed, logger: opts.Logger}
	for i := 0; i < opts.NumShards; i++ {
		df, err := fs.Open(fmt.Sprintf("%s/DATA.%03d", dir, i))
		if err != nil {
			return nil, err
		}
		idxf, err := fs.Open(fmt.Sprintf("%s/INDEX.%03d", dir, i))
		if err != nil {
			return nil, err
		}
		info, err := idxf.Stat()
		if err != nil {
			return nil, err
		}
		footer := make([]byte, table.FooterLen)
		if info.Size() >= table.FooterLen {
			if _, err := idxf.ReadAt(footer, info.Size()-table.FooterLen); err != nil {
				return nil, err
			}
		}
		rootHandle, _ := block.DecodeHandle(footer)
		r.shards = append(r.shards, &shardReader{dataFile: df, indexFile: idxf, root: rootHandle})
	}
	return r, nil
}

func (r *Reader) shardFor(key []byte) *shardReader {
	h := xxhash.Sum64(key)
	return r.shards[h&uint64(len(r.shards)-1)]
}

func (r *Reader) readBlock(f vfs.File, h block.Handle) ([]byte, error) {
	if h.Size == 0 && h.Offset == 0 {
		return nil, nil
	}
	raw := make([]byte, h.Size+block.TrailerLen)
	if _, err := f.ReadAt(raw, int64(h.Offset)); err != nil {
		return nil, err
	}
	return block.ValidateAndDecompress(r.checksumType, raw)
}

// epochMetaHandles returns the meta-index handle for every epoch in the
// shard's root block, in epoch order.
func (r *Reader) epochMetaHandles(sr *shardReader) ([]block.Handle, error) {
	rootBlk, err := r.readBlock(sr.indexFile, sr.root)
	if err != nil || rootBlk == nil {
		return nil, err
	}
	it, err := block.NewIter(rootBlk)
	if err != nil {
		return nil, err
	}
	var handles []block.Handle
	ok, err := it.First()
	for ok {
		if err != nil {
			return nil, err
		}
		h, _ := block.DecodeHandle(it.Value())
		handles = append(handles, h)
		ok, err = it.Next()
	}
	return handles, err
}

func (r *Reader) mayMatchFilter(t filter.Type, key, blob []byte) bool {
	switch t {
	case filter.TypeBloom:
		return bloom.MayMatch(key, blob)
	case filter.TypeBitmap:
		return bitmap.MayMatch(key, blob)
	case filter.TypeCuckoo:
		return cuckoo.MayMatchWithSeed(key, blob, r.cuckooSeed)
	default:
		return true
	}
}

// probeEpoch looks up key within one epoch's meta-index, returning the
// matching values from every table that could contain key. In
// ModeMultiMap every table in the epoch is scanned, since multi_map
// only guarantees insertion order, not a table-level key ordering; in
// the unique modes, only the first table whose largest_key >= key is
// examined, per spec §4.F step 2.
func (r *Reader) probeEpoch(sr *shardReader, metaHandle block.Handle, key []byte) ([][]byte, error) {
	metaBlk, err := r.readBlock(sr.indexFile, metaHandle)
	if err != nil || metaBlk == nil {
		return nil, err
	}
	metaIt, err := block.NewIter(metaBlk)
	if err != nil {
		return nil, err
	}

	if r.mode == ModeMultiMap {
		var out [][]byte
		ok, err := metaIt.First()
		for ok {
			if err != nil {
				return nil, err
			}
			vals, perr := r.probeTable(sr, metaIt.Value(), key)
			if perr != nil {
				return nil, perr
			}
			out = append(out, vals...)
			ok, err = metaIt.Next()
		}
		return out, err
	}

	ok, err := metaIt.SeekGE(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return r.probeTable(sr, metaIt.Value(), key)
}

// probeTable decodes one meta-index entry's value `{index_handle,
// filter_handle, filter_type}`, probes the filter, and if it says
// "maybe", scans the table's data blocks for every value stored under
// key.
func (r *Reader) probeTable(sr *shardReader, metaVal, key []byte) ([][]byte, error) {
	indexHandle, n := block.DecodeHandle(metaVal)
	if n == 0 {
		return nil, base.CorruptionErrorf("directory: malformed meta-index value")
	}
	filterHandle, m := block.DecodeHandle(metaVal[n:])
	if m == 0 {
		return nil, base.CorruptionErrorf("directory: malformed meta-index value")
	}
	filterType := filter.Type(0)
	if n+m < len(metaVal) {
		filterType = filter.Type(metaVal[n+m])
	}

	if filterType != filter.TypeNone {
		filterBlk, err := r.readBlock(sr.indexFile, filterHandle)
		if err != nil {
			return nil, err
		}
		if !r.mayMatchFilter(filterType, key, filterBlk) {
			return nil, nil
		}
	}

	indexBlk, err := r.readBlock(sr.indexFile, indexHandle)
	if err != nil || indexBlk == nil {
		return nil, err
	}
	idxIt, err := block.NewIter(indexBlk)
	if err != nil {
		return nil, err
	}
	ok, err := idxIt.SeekGE(key)
	if err != nil || !ok {
		return nil, err
	}

	// A table's data blocks are ordered, so every copy of key lives in a
	// contiguous run of blocks starting at the one idxIt.SeekGE(key)
	// lands on. In ModeMultiMap a heavily duplicated key's values can
	// overflow that first block, so keep following the index into
	// subsequent data blocks as long as they still start with key.
	var out [][]byte
	first := true
	for {
		dataHandle, dn := block.DecodeHandle(idxIt.Value())
		if dn == 0 {
			return nil, base.CorruptionErrorf("directory: malformed index entry")
		}
		dataBlk, err := r.readBlock(sr.dataFile, dataHandle)
		if err != nil || dataBlk == nil {
			return out, err
		}
		dataIt, err := block.NewIter(dataBlk)
		if err != nil {
			return nil, err
		}

		var blkOK bool
		if first {
			blkOK, err = dataIt.SeekGE(key)
		} else {
			blkOK, err = dataIt.First()
		}
		if err != nil {
			return nil, err
		}
		if !blkOK || !bytes.Equal(dataIt.Key(), key) {
			break
		}

		ranToBlockEnd := true
		for blkOK {
			if !bytes.Equal(dataIt.Key(), key) {
				ranToBlockEnd = false
				break
			}
			out = append(out, append([]byte(nil), dataIt.Value()...))
			blkOK, err = dataIt.Next()
			if err != nil {
				return nil, err
			}
		}

		first = false
		if r.mode != ModeMultiMap || !ranToBlockEnd {
			break
		}
		ok, err = idxIt.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	return out, nil
}

// Read returns every value stored under key, per spec §4.F and §3's
// mode semantics: ModeUnique returns at most one value per epoch;
// ModeUniqueDrop additionally drops a key already satisfied by an
// earlier epoch; ModeMultiMap returns every value, in insertion order.
func (r *Reader) Read(key []byte) ([][]byte, error) {
	sr := r.shardFor(key)
	metaHandles, err := r.epochMetaHandles(sr)
	if err != nil {
		if base.IsCorruptionError(err) {
			r.logger.Infof("directory: corruption reading root/meta-index: %v", err)
		}
		return nil, err
	}
	var results [][]byte
	seen := false
	for _, mh := range metaHandles {
		vals, err := r.probeEpoch(sr, mh, key)
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			continue
		}
		switch r.mode {
		case ModeMultiMap:
			results = append(results, vals...)
		case ModeUniqueDrop:
			if !seen {
				results = append(results, vals[0])
				seen = true
			}
		default: // ModeUnique
			results = append(results, vals[0])
		}
	}
	if len(results) == 0 {
		return nil, base.ErrNotFound
	}
	return results, nil
}

// GetParallel is Read, but fans out the per-epoch probe across a
// bounded worker pool and merges results back in epoch order, per spec
// §4.F's "bounded reader thread pool ... TryGet ... Merge(GetContext*)".
func (r *Reader) GetParallel(key []byte, maxConcurrency int) ([][]byte, error) {
	sr := r.shardFor(key)
	metaHandles, err := r.epochMetaHandles(sr)
	if err != nil {
		return nil, err
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	perEpoch := make([][][]byte, len(metaHandles))
	var g errgroup.Group
	g.SetLimit(maxConcurrency)
	for i, mh := range metaHandles {
		i, mh := i, mh
		g.Go(func() error {
			vals, err := r.probeEpoch(sr, mh, key)
			if err != nil {
				return err
			}
			perEpoch[i] = vals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results [][]byte
	seen := false
	for _, vals := range perEpoch {
		if len(vals) == 0 {
			continue
		}
		switch r.mode {
		case ModeMultiMap:
			results = append(results, vals...)
		case ModeUniqueDrop:
			if !seen {
				results = append(results, vals[0])
				seen = true
			}
		default:
			results = append(results, vals[0])
		}
	}
	if len(results) == 0 {
		return nil, base.ErrNotFound
	}
	return results, nil
}

// Close closes every shard's underlying files.
func (r *Reader) Close() error {
	var first error
	for _, sr := range r.shards {
		if err := sr.dataFile.Close(); err != nil && first == nil {
			first = err
		}
		if err := sr.indexFile.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
