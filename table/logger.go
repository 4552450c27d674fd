// Package table implements the table logger of spec §4.D: it turns a
// stream of sorted (key, value) records into data blocks, an index
// block and a filter block in the data/index logs, groups completed
// tables into epochs, and finally emits the root block and footer.
package table

import (
	"encoding/binary"

	"github.com/plfs/plfsio/block"
	"github.com/plfs/plfsio/filter"
	"github.com/plfs/plfsio/internal/base"
	"github.com/plfs/plfsio/internal/logsink"
)

// FooterMagic is the fixed tail value identifying a well-formed footer
// (spec §6).
const FooterMagic uint64 = 0xdb4775248b80fb57

// FooterLen is the fixed size of the footer record: two block-handle
// slots (root handle, reserved), each padded out to block.MaxHandleLen
// so the footer can be located purely from the end of the index log,
// plus the 8-byte magic: 2*20 + 8 = 48 bytes. DESIGN.md explains why
// each slot is a full handle's width rather than one varint's.
const FooterLen = 2*block.MaxHandleLen + 8

// Logger is the table logger for one directory shard. It is long-lived:
// a single Logger instance handles every table the shard's compactor
// ever produces, across every epoch, until Finish is called.
type Logger struct {
	opts      Options
	dataSink  *logsink.Sink
	indexSink *logsink.Sink

	dataBlock      block.Writer
	indexBlock     block.Writer
	metaIndexBlock block.Writer
	rootBlock      block.Writer

	// pendingIndexEntry is true between sealing a data block and
	// committing its index entry, so the entry's separator key can be
	// shortened once the first key of the following block (or the lack
	// of one, at EndTable) is known (spec §4.D).
	pendingIndexEntry bool
	pendingHandle     block.Handle
	pendingLastKey    []byte

	tableHasKeys     bool
	tableSmallestKey []byte
	tableLargestKey  []byte
	lastAddedKey     []byte

	epochID  uint64
	status   error
	finished bool

	// Stats accumulates cumulative byte/record totals across every
	// table this Logger has completed (spec §4.D).
	Stats Stats
}

// NewLogger returns a Logger writing data blocks to dataSink and
// index/filter/meta-index/root blocks and the footer to indexSink.
func NewLogger(dataSink, indexSink *logsink.Sink, opts Options) *Logger {
	opts = opts.EnsureDefaults()
	l := &Logger{opts: opts, dataSink: dataSink, indexSink: indexSink}
	l.dataBlock.RestartInterval = opts.RestartInterval
	l.indexBlock.RestartInterval = opts.RestartInterval
	l.metaIndexBlock.RestartInterval = opts.RestartInterval
	l.rootBlock.RestartInterval = opts.RestartInterval
	return l
}

// Err returns the first error the Logger encountered, if any. Once set
// it latches: every subsequent mutating call becomes a no-op that
// returns the same error (spec §7's latched-status error semantics).
func (l *Logger) Err() error { return l.status }

func (l *Logger) setErr(err error) error {
	if l.status == nil {
		l.status = err
	}
	return l.status
}

// Add appends one record to the table currently under construction.
// Records must arrive in non-decreasing key order (the caller is
// expected to hand the Logger a writebuffer.Iterator's output).
func (l *Logger) Add(key, value []byte) error {
	if l.status != nil {
		return l.status
	}
	if l.opts.ParanoidChecks && l.lastAddedKey != nil {
		if base.Compare(key, l.lastAddedKey) < 0 {
			return l.setErr(base.CorruptionErrorf("table: out-of-order key %q after %q", key, l.lastAddedKey))
		}
	}
	if l.pendingIndexEntry {
		l.commitPendingIndexEntry(key)
	}
	if !l.tableHasKeys {
		l.tableSmallestKey = append(l.tableSmallestKey[:0], key...)
		l.tableHasKeys = true
	}
	l.dataBlock.Add(key, value)
	l.Stats.KeyBytesRaw += uint64(len(key))
	l.Stats.ValueBytesRaw += uint64(len(value))
	l.tableLargestKey = append(l.tableLargestKey[:0], key...)
	if l.opts.ParanoidChecks {
		l.lastAddedKey = append(l.lastAddedKey[:0], key...)
	}
	if float64(l.dataBlock.CurrentSizeEstimate()) >= float64(l.opts.BlockSize)*l.opts.BlockUtil {
		if err := l.sealDataBlock(); err != nil {
			return l.setErr(err)
		}
	}
	return nil
}

// sealDataBlock finishes the current data block (if non-empty), writes
// it to the data log, and stakes its handle as pending until the next
// block's first key (or EndTable) lets the index entry be committed.
func (l *Logger) sealDataBlock() error {
	if l.dataBlock.Empty() {
		return nil
	}
	lastKey := append([]byte(nil), l.dataBlock.CurKey()...)
	raw := l.dataBlock.Finish()
	l.Stats.DataBytesRaw += uint64(len(raw))
	final := block.AppendTrailer(l.opts.ChecksumType, l.opts.CompressionType, l.opts.ForceCompression, raw)
	l.Stats.DataBytesFinal += uint64(len(final))
	offset, err := l.dataSink.Append(final)
	if err != nil {
		return err
	}
	l.pendingHandle = block.Handle{Offset: offset, Size: uint64(len(final) - block.TrailerLen)}
	l.pendingLastKey = lastKey
	l.pendingIndexEntry = true
	l.dataBlock.Reset()
	return nil
}

func (l *Logger) commitPendingIndexEntry(nextFirstKey []byte) {
	sep := base.SeparatorBetween(l.pendingLastKey, nextFirstKey)
	l.indexBlock.Add(sep, l.pendingHandle.EncodeTo(nil))
	l.pendingIndexEntry = false
}

// EndTable finalizes the table currently under construction: it seals
// any open data block, finishes fw (the filter accumulated over this
// table's keys) and writes the filter and index blocks, then records a
// meta-index entry `(largest_key -> {index_handle, filter_handle,
// filter_type})` per spec §4.D. fw may be nil when filtering is
// disabled for this table (filterType should then be filter.TypeNone).
func (l *Logger) EndTable(fw filter.Writer, filterType filter.Type) error {
	if l.status != nil {
		return l.status
	}
	if err := l.sealDataBlock(); err != nil {
		return l.setErr(err)
	}
	if l.pendingIndexEntry {
		l.commitPendingIndexEntry(nil)
	}
	if !l.tableHasKeys {
		return nil
	}

	var filterBytes []byte
	if fw != nil {
		filterBytes = fw.Finish()
	}
	filterFinal := block.AppendTrailer(l.opts.ChecksumType, l.opts.CompressionType, l.opts.ForceCompression, filterBytes)
	l.Stats.FilterBytesRaw += uint64(len(filterBytes))
	l.Stats.FilterBytesFinal += uint64(len(filterFinal))
	foff, err := l.indexSink.Append(filterFinal)
	if err != nil {
		return l.setErr(err)
	}
	filterHandle := block.Handle{Offset: foff, Size: uint64(len(filterFinal) - block.TrailerLen)}

	indexRaw := l.indexBlock.Finish()
	l.Stats.IndexBytesRaw += uint64(len(indexRaw))
	indexFinal := block.AppendTrailer(l.opts.ChecksumType, l.opts.CompressionType, l.opts.ForceCompression, indexRaw)
	l.Stats.IndexBytesFinal += uint64(len(indexFinal))
	ioff, err := l.indexSink.Append(indexFinal)
	if err != nil {
		return l.setErr(err)
	}
	indexHandle := block.Handle{Offset: ioff, Size: uint64(len(indexFinal) - block.TrailerLen)}

	metaVal := make([]byte, 0, 2*block.MaxHandleLen+1)
	metaVal = indexHandle.EncodeTo(metaVal)
	metaVal = filterHandle.EncodeTo(metaVal)
	metaVal = append(metaVal, byte(filterType))
	l.metaIndexBlock.Add(l.tableLargestKey, metaVal)
	l.Stats.NumTables++

	l.indexBlock.Reset()
	l.tableHasKeys = false
	l.tableSmallestKey = l.tableSmallestKey[:0]
	l.tableLargestKey = l.tableLargestKey[:0]
	l.lastAddedKey = l.lastAddedKey[:0]
	return nil
}

// MakeEpoch finishes the accumulated meta-index block, writes it to the
// index log, and records a root entry `(epoch_id -> meta_index_handle)`
// (spec §4.D). The caller must have already called EndTable on any
// table the epoch should include.
func (l *Logger) MakeEpoch() error {
	if l.status != nil {
		return l.status
	}
	metaRaw := l.metaIndexBlock.Finish()
	l.Stats.MetaBytesRaw += uint64(len(metaRaw))
	metaFinal := block.AppendTrailer(l.opts.ChecksumType, l.opts.CompressionType, l.opts.ForceCompression, metaRaw)
	l.Stats.MetaBytesFinal += uint64(len(metaFinal))
	moff, err := l.indexSink.Append(metaFinal)
	if err != nil {
		return l.setErr(err)
	}
	metaHandle := block.Handle{Offset: moff, Size: uint64(len(metaFinal) - block.TrailerLen)}

	var epochKey [8]byte
	binary.BigEndian.PutUint64(epochKey[:], l.epochID)
	l.rootBlock.Add(epochKey[:], metaHandle.EncodeTo(nil))
	l.epochID++
	l.Stats.NumEpochs++
	l.metaIndexBlock.Reset()
	return nil
}

// Finish writes the root block and the footer. It is idempotent: a
// second call is a no-op that returns the latched status from the
// first.
func (l *Logger) Finish() error {
	if l.finished {
		return l.status
	}
	l.finished = true
	if l.status != nil {
		return l.status
	}
	rootRaw := l.rootBlock.Finish()
	rootFinal := block.AppendTrailer(l.opts.ChecksumType, l.opts.CompressionType, l.opts.ForceCompression, rootRaw)
	roff, err := l.indexSink.Append(rootFinal)
	if err != nil {
		return l.setErr(err)
	}
	rootHandle := block.Handle{Offset: roff, Size: uint64(len(rootFinal) - block.TrailerLen)}

	footer := make([]byte, FooterLen)
	copy(footer, rootHandle.EncodeTo(nil))
	binary.LittleEndian.PutUint64(footer[FooterLen-8:], FooterMagic)
	if _, err := l.indexSink.Append(footer); err != nil {
		return l.setErr(err)
	}
	return nil
}

// EpochCount returns the number of epochs MakeEpoch has completed so far.
func (l *Logger) EpochCount() uint64 { return l.epochID }
