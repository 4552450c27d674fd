package directory

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/plfs/plfsio/filter"
	"github.com/plfs/plfsio/internal/base"
	"github.com/plfs/plfsio/internal/logsink"
	"github.com/plfs/plfsio/table"
	"github.com/plfs/plfsio/writebuffer"
)

// FlushOptions parameterizes Logger.Flush, per spec §4.E.
type FlushOptions struct {
	// NoWait makes Flush return as soon as the swap/schedule has
	// happened, without waiting for the background compaction to drain.
	NoWait bool
	// DryRun skips the swap/schedule entirely and only reports the
	// shard's latched status.
	DryRun bool
	// EpochFlush marks the swapped-out buffer as an epoch boundary: the
	// background compaction calls table.Logger.MakeEpoch after EndTable.
	EpochFlush bool
	// Finalize marks the swapped-out buffer as the last one: the
	// background compaction calls table.Logger.Finish and syncs both
	// log sinks after draining.
	Finalize bool
}

// Logger is one directory shard: a double-buffered memtable in front of
// a table.Logger, with a background compaction scheduled onto a shared
// worker pool (spec §4.E).
//
// The filter for a table is built inside the background compaction,
// once the buffer's true record count is known, rather than key by key
// as foreground Add calls arrive: bloom and cuckoo both need an
// accurate key-count estimate at construction time to size themselves
// (spec §4.B.1/§4.B.3), which the memtable doesn't have until it's
// about to be flushed. This is a deliberate elaboration of spec §4.E's
// "append to mem_buf and to the active filter" — see DESIGN.md.
type Logger struct {
	shardID   int
	opts      Options
	dataSink  *logsink.Sink
	indexSink *logsink.Sink
	table     *table.Logger
	pool      *errgroup.Group
	metrics   *Metrics
	listener  EventListener

	mu   sync.Mutex
	cond *sync.Cond

	memBuf *writebuffer.Buffer
	immBuf *writebuffer.Buffer

	immBufIsEpochFlush bool
	immBufIsFinal      bool
	hasBgCompaction    bool
	numFlushRequested  uint64
	numFlushCompleted  uint64
	status             error
}

func newLogger(shardID int, dataSink, indexSink *logsink.Sink, tl *table.Logger, opts Options, pool *errgroup.Group, metrics *Metrics, listener EventListener) *Logger {
	if metrics == nil {
		metrics = NewMetrics()
	}
	l := &Logger{
		shardID:   shardID,
		opts:      opts,
		dataSink:  dataSink,
		indexSink: indexSink,
		table:     tl,
		pool:      pool,
		metrics:   metrics,
		listener:  listener,
		memBuf:    &writebuffer.Buffer{},
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Add appends one record to the shard's active memtable, per spec §4.E.
func (l *Logger) Add(key, value []byte) error {
	l.mu.Lock()
	for l.memBufFull() && l.immBuf != nil {
		if l.opts.NonBlocking {
			l.mu.Unlock()
			l.metrics.TryAgain.Inc()
			return base.ErrTryAgain
		}
		l.cond.Wait()
	}
	if l.status != nil {
		err := l.status
		l.mu.Unlock()
		return err
	}
	l.memBuf.Add(key, value)
	needFlush := l.memBufFull() && l.immBuf == nil
	l.mu.Unlock()

	if needFlush {
		if err := l.Flush(FlushOptions{NoWait: true}); err != nil && !errors.Is(err, base.ErrTryAgain) {
			return err
		}
	}
	return nil
}

func (l *Logger) memBufFull() bool {
	return l.memBuf.MemoryUsage() >= l.opts.TotalMemtableBudget
}

// Flush swaps mem_buf and imm_buf, marks flags, and schedules a
// background compaction, per spec §4.E.
func (l *Logger) Flush(opts FlushOptions) error {
	l.mu.Lock()
	if opts.DryRun {
		status := l.status
		l.mu.Unlock()
		return status
	}
	for l.immBuf != nil {
		if l.opts.NonBlocking {
			l.mu.Unlock()
			l.metrics.TryAgain.Inc()
			return base.ErrTryAgain
		}
		l.cond.Wait()
	}
	if l.status != nil {
		err := l.status
		l.mu.Unlock()
		return err
	}
	l.immBuf = l.memBuf
	l.memBuf = &writebuffer.Buffer{}
	l.immBufIsEpochFlush = opts.EpochFlush
	l.immBufIsFinal = opts.Finalize
	l.hasBgCompaction = true
	l.numFlushRequested++
	l.metrics.FlushRequested.Inc()
	l.mu.Unlock()

	l.pool.Go(func() error {
		l.runCompaction()
		return nil
	})

	if opts.NoWait {
		return nil
	}
	return l.Wait()
}

// Wait blocks until every scheduled compaction has completed, per spec
// §4.E.
func (l *Logger) Wait() error {
	l.mu.Lock()
	for l.numFlushCompleted != l.numFlushRequested || l.hasBgCompaction {
		l.cond.Wait()
	}
	err := l.status
	l.mu.Unlock()
	return err
}

// SyncAndClose drains any pending work, finalizes the table logger, and
// syncs both log sinks, per spec §4.E.
func (l *Logger) SyncAndClose() error {
	for {
		err := l.Flush(FlushOptions{Finalize: true})
		if !errors.Is(err, base.ErrTryAgain) {
			if err != nil {
				return err
			}
			break
		}
		// Non-blocking mode: a compaction is still in flight. Wait for it
		// to drain, then retry the final flush.
		if werr := l.Wait(); werr != nil {
			return werr
		}
	}
	l.mu.Lock()
	err := l.status
	l.mu.Unlock()
	if cerr := l.dataSink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := l.indexSink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// runCompaction is the background compaction task body, per spec
// §4.E's numbered steps.
func (l *Logger) runCompaction() {
	l.mu.Lock()
	buf := l.immBuf
	epochFlush := l.immBufIsEpochFlush
	final := l.immBufIsFinal
	l.mu.Unlock()

	l.listener.CompactionBegin(CompactionInfo{ShardID: l.shardID, NumRecords: buf.Count(), EpochFlush: epochFlush, Finalize: final})
	start := time.Now()

	var err error
	if !l.opts.SkipSort {
		buf.FinishAndSort()
	}

	fw := newFilterWriter(l.opts)
	filterType := l.opts.Filter
	if fw != nil {
		fw.Reset(buf.Count())
		for it := buf.NewIterator(); it.Next(); {
			fw.AddKey(it.Key())
		}
	} else {
		filterType = filter.TypeNone
	}

	it := buf.NewIterator()
	numRecords := 0
	for it.Next() {
		if e := l.table.Add(it.Key(), it.Value()); e != nil {
			err = e
			break
		}
		numRecords++
	}
	if err == nil {
		err = l.table.EndTable(fw, filterType)
	}
	if err == nil && epochFlush {
		err = l.table.MakeEpoch()
	}
	if err == nil && final {
		if ferr := l.table.Finish(); ferr != nil {
			err = ferr
		} else {
			l.listener.IOBegin(IOInfo{ShardID: l.shardID, Sink: "data"})
			err = l.dataSink.Sync()
			l.listener.IOEnd(IOInfo{ShardID: l.shardID, Sink: "data"})
			if err == nil {
				l.listener.IOBegin(IOInfo{ShardID: l.shardID, Sink: "index"})
				err = l.indexSink.Sync()
				l.listener.IOEnd(IOInfo{ShardID: l.shardID, Sink: "index"})
			}
		}
	}

	durationMicros := time.Since(start).Microseconds()
	l.metrics.RecordCompactionLatencyMicros(durationMicros)
	l.listener.CompactionEnd(CompactionInfo{ShardID: l.shardID, NumRecords: numRecords, EpochFlush: epochFlush, Finalize: final, Err: err, DurationMicros: durationMicros})

	l.mu.Lock()
	buf.Reset()
	l.immBuf = nil
	l.immBufIsEpochFlush = false
	l.immBufIsFinal = false
	if err != nil && l.status == nil {
		l.status = err
		l.opts.Logger.Infof("directory: shard %d compaction failed, latching: %v", l.shardID, err)
	}
	l.numFlushCompleted++
	l.metrics.FlushCompleted.Inc()
	l.hasBgCompaction = false
	needReschedule := l.status == nil && l.memBufFull() && l.immBuf == nil
	l.cond.Broadcast()
	l.mu.Unlock()

	if needReschedule {
		_ = l.Flush(FlushOptions{NoWait: true})
	}
}

// Err returns the shard's latched status, if any.
func (l *Logger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}
