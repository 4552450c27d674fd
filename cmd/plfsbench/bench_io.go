package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/plfs/plfsio/directory"
	"github.com/plfs/plfsio/internal/base"
	"github.com/plfs/plfsio/internal/vfs"
)

// runIOBench writes cfg.numFiles*cfg.batchSize records spread across
// cfg.numThreads goroutines into a Sharded directory, then reads every
// key back, reporting write/read throughput and latency percentiles.
func runIOBench(cfg config) error {
	logger := base.DefaultLogger{}

	opts, err := cfg.directoryOptions()
	if err != nil {
		return err
	}

	var listener directory.EventListener
	if cfg.printEvents {
		listener.CompactionBegin = func(info directory.CompactionInfo) {
			logger.Infof("compaction begin: shard=%d records=%d epoch_flush=%v", info.ShardID, info.NumRecords, info.EpochFlush)
		}
		listener.CompactionEnd = func(info directory.CompactionInfo) {
			logger.Infof("compaction end: shard=%d records=%d duration_us=%d err=%v", info.ShardID, info.NumRecords, info.DurationMicros, info.Err)
		}
	}

	fs := vfs.NewMem()
	d, err := directory.Open(fs, "bench", opts, listener)
	if err != nil {
		return err
	}

	total := cfg.numFiles * cfg.batchSize
	perThread := total / cfg.numThreads
	if perThread == 0 {
		perThread = total
		cfg.numThreads = 1
	}

	writeHist := hdrhistogram.New(1, 10_000_000, 3)
	var histMu sync.Mutex
	throttle := newThroughputThrottle(cfg.linkSpeedMBs)

	keys := make([][]byte, 0, total)
	var keysMu sync.Mutex

	var wg sync.WaitGroup
	start := time.Now()
	for t := 0; t < cfg.numThreads; t++ {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(t) + 1))
			localKeys := make([][]byte, 0, perThread)
			for i := 0; i < perThread; i++ {
				key := randomBytes(rng, cfg.keySize)
				if cfg.orderedKeys {
					key = orderedKey(t, i, cfg.keySize)
				}
				value := randomBytes(rng, cfg.valueSize)
				localKeys = append(localKeys, key)

				reqStart := time.Now()
				if err := d.Add(key, value); err != nil {
					logger.Infof("add failed: %v", err)
				}
				histMu.Lock()
				_ = writeHist.RecordValue(time.Since(reqStart).Microseconds())
				histMu.Unlock()

				throttle.account(cfg.keySize + cfg.valueSize)
				if cfg.batchedInsertion && (i+1)%cfg.batchSize == 0 {
					_ = d.Flush()
				}
				if cfg.forceFIFO {
					_ = d.Flush()
				}
			}
			keysMu.Lock()
			keys = append(keys, localKeys...)
			keysMu.Unlock()
		}()
	}
	wg.Wait()

	if err := d.MakeEpoch(); err != nil {
		return err
	}
	if err := d.SyncAndClose(); err != nil {
		return err
	}
	writeElapsed := time.Since(start)

	r, err := directory.OpenReader(fs, "bench", directory.ReaderOptions{
		NumShards:    opts.NumShards(),
		ChecksumType: opts.ChecksumType,
		Mode:         opts.Mode,
		CuckooSeed:   opts.CuckooSeed,
	})
	if err != nil {
		return err
	}
	defer r.Close()

	readHist := hdrhistogram.New(1, 10_000_000, 3)
	readStart := time.Now()
	for _, key := range keys {
		reqStart := time.Now()
		if _, err := r.Read(key); err != nil {
			logger.Infof("read miss for a written key: %v", err)
		}
		_ = readHist.RecordValue(time.Since(reqStart).Microseconds())
	}
	readElapsed := time.Since(readStart)

	fmt.Printf("records=%d shards=%d filter=%s\n", total, opts.NumShards(), cfg.ftType)
	fmt.Printf("write: %v total, %.0f records/s, p50=%dus p99=%dus\n",
		writeElapsed, float64(total)/writeElapsed.Seconds(),
		writeHist.ValueAtQuantile(50), writeHist.ValueAtQuantile(99))
	fmt.Printf("read:  %v total, %.0f records/s, p50=%dus p99=%dus\n",
		readElapsed, float64(len(keys))/readElapsed.Seconds(),
		readHist.ValueAtQuantile(50), readHist.ValueAtQuantile(99))
	return nil
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func orderedKey(thread, i, size int) []byte {
	s := fmt.Sprintf("%08d-%08d", thread, i)
	b := make([]byte, size)
	copy(b, s)
	return b
}

// throughputThrottle paces writes to approximate LINK_SPEED MB/s; a
// zero speed disables pacing.
type throughputThrottle struct {
	bytesPerSec int
	start       time.Time
	sent        int64
}

func newThroughputThrottle(mbPerSec int) *throughputThrottle {
	return &throughputThrottle{bytesPerSec: mbPerSec << 20, start: time.Now()}
}

func (t *throughputThrottle) account(n int) {
	if t.bytesPerSec <= 0 {
		return
	}
	t.sent += int64(n)
	want := time.Duration(float64(t.sent) / float64(t.bytesPerSec) * float64(time.Second))
	if elapsed := time.Since(t.start); want > elapsed {
		time.Sleep(want - elapsed)
	}
}
