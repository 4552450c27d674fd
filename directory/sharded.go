package directory

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/plfs/plfsio/internal/vfs"
	"github.com/plfs/plfsio/internal/logsink"
	"github.com/plfs/plfsio/table"
)

// Sharded is a directory logger split into 2^LgParts independent
// Logger shards sharing one worker pool, per spec §4.E's partition
// dimension.
type Sharded struct {
	opts     Options
	listener EventListener
	metrics  *Metrics
	pool     *errgroup.Group
	shards   []*Logger
}

// Open creates (or truncates) the per-shard DATA/INDEX log files under
// dir on fs and returns a ready-to-use Sharded directory logger.
func Open(fs vfs.FS, dir string, opts Options, listener EventListener) (*Sharded, error) {
	opts = opts.EnsureDefaults()
	listener = listener.EnsureDefaults()
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	pool := new(errgroup.Group)
	pool.SetLimit(4 * opts.NumShards())

	s := &Sharded{opts: opts, listener: listener, metrics: metrics, pool: pool}
	tableOpts := table.Options{
		BlockSize:        opts.BlockSize,
		BlockUtil:        opts.BlockUtil,
		ChecksumType:     opts.ChecksumType,
		CompressionType:  opts.Compression,
		ForceCompression: opts.ForceCompression,
		ParanoidChecks:   opts.ParanoidChecks,
	}
	for i := 0; i < opts.NumShards(); i++ {
		dataSink, err := logsink.Open(fs, fmt.Sprintf("%s/DATA.%03d", dir, i), logsink.WithBufferSize(opts.DataBufferBytes))
		if err != nil {
			return nil, err
		}
		indexSink, err := logsink.Open(fs, fmt.Sprintf("%s/INDEX.%03d", dir, i), logsink.WithBufferSize(opts.IndexBufferBytes))
		if err != nil {
			return nil, err
		}
		tl := table.NewLogger(dataSink, indexSink, tableOpts)
		s.shards = append(s.shards, newLogger(i, dataSink, indexSink, tl, opts, pool, metrics, listener))
	}
	return s, nil
}

// Metrics returns the directory's shared metrics.
func (s *Sharded) Metrics() *Metrics { return s.metrics }

// NumShards returns the number of independent shards the directory is
// split into.
func (s *Sharded) NumShards() int { return len(s.shards) }

func (s *Sharded) shardFor(key []byte) *Logger {
	h := xxhash.Sum64(key)
	return s.shards[h&uint64(len(s.shards)-1)]
}

// Add routes (key, value) to the shard key hashes to, per spec §4.E.
func (s *Sharded) Add(key, value []byte) error {
	return s.shardFor(key).Add(key, value)
}

// fanOut runs fn over every shard concurrently, one goroutine per shard
// (not on the directory's compaction worker pool), returning the first
// error encountered (if any), but
// letting every shard's call run regardless of earlier failures so one
// bad shard never starves the others (spec §4.E: "each shard is
// independent for concurrency and failure").
func (s *Sharded) fanOut(fn func(*Logger) error) error {
	var g errgroup.Group
	for _, shard := range s.shards {
		shard := shard
		g.Go(func() error { return fn(shard) })
	}
	return g.Wait()
}

// MakeEpoch flushes every shard's memtable as an epoch boundary and
// waits for all of them to drain, per spec §4.D/§4.E.
func (s *Sharded) MakeEpoch() error {
	return s.fanOut(func(l *Logger) error {
		return l.Flush(FlushOptions{EpochFlush: true})
	})
}

// Flush flushes every shard's memtable (without marking an epoch
// boundary) and waits for all of them to drain.
func (s *Sharded) Flush() error {
	return s.fanOut(func(l *Logger) error {
		return l.Flush(FlushOptions{})
	})
}

// Wait blocks until every shard has drained its pending compactions.
func (s *Sharded) Wait() error {
	return s.fanOut(func(l *Logger) error { return l.Wait() })
}

// SyncAndClose finalizes and syncs every shard, per spec §4.E.
func (s *Sharded) SyncAndClose() error {
	err := s.fanOut(func(l *Logger) error { return l.SyncAndClose() })
	if werr := s.pool.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}
