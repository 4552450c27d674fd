package main

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/plfs/plfsio/block"
	"github.com/plfs/plfsio/directory"
	"github.com/plfs/plfsio/filter"
	"github.com/plfs/plfsio/filter/bitmap"
)

func errUnknownBench(name string) error {
	return errors.Newf(`plfsbench: unknown --bench %q, want "io" or "bf"`, name)
}

// config holds every spec §6 tunable, parsed from its environment
// variable into a concrete type.
type config struct {
	ftType           string
	linkSpeedMBs     int
	numFiles         int
	numThreads       int
	batchSize        int
	batchedInsertion bool
	lgParts          uint
	bfBits           int
	ftBits           int
	bmKeyBits        int
	valueSize        int
	keySize          int
	memtableSize     int
	blockSize        int
	blockBatchSize   int
	blockUtilPerMille int
	dataBuffer       int
	minDataBuffer    int
	indexBuffer      int
	minIndexBuffer   int
	orderedKeys      bool
	snappy           bool
	forceFIFO        bool
	printEvents      bool
	falseKeys        int
}

// ftTypeTable maps spec §6's FT_TYPE values to a (filter.Type,
// bitmap.Format) pair via a plain lookup, per spec §9's note that the
// original's strcmp-as-bool parsing inverted this table — we never
// reproduce that bug.
var ftTypeTable = map[string]struct {
	typ    filter.Type
	format bitmap.Format
}{
	"bf":      {filter.TypeBloom, 0},
	"bmp":     {filter.TypeBitmap, bitmap.FormatUncompressed},
	"vb":      {filter.TypeBitmap, bitmap.FormatVarint},
	"vbp":     {filter.TypeBitmap, bitmap.FormatVarintPlus},
	"r":       {filter.TypeBitmap, bitmap.FormatRoaring},
	"pr":      {filter.TypeBitmap, bitmap.FormatPRoaring},
	"pfdelta": {filter.TypeBitmap, bitmap.FormatPForDelta},
}

func envInt(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func configFromEnv() config {
	c := config{
		ftType:            envString("FT_TYPE", "bf"),
		linkSpeedMBs:       envInt("LINK_SPEED", 0),
		numFiles:          envInt("NUM_FILES", 1),
		numThreads:        envInt("NUM_THREADS", 1),
		batchSize:         envInt("BATCH_SIZE", 1024),
		batchedInsertion:  envBool("BATCHED_INSERTION", true),
		lgParts:           uint(envInt("LG_PARTS", 2)),
		bfBits:            envInt("BF_BITS", 10),
		ftBits:            envInt("FT_BITS", 16),
		bmKeyBits:         envInt("BM_KEY_BITS", 16),
		valueSize:         envInt("VALUE_SIZE", 40),
		keySize:           envInt("KEY_SIZE", 16),
		memtableSize:      envInt("MEMTABLE_SIZE", 4<<20),
		blockSize:         envInt("BLOCK_SIZE", 4<<10),
		blockBatchSize:    envInt("BLOCK_BATCH_SIZE", 64),
		blockUtilPerMille: envInt("BLOCK_UTIL", 900),
		dataBuffer:        envInt("DATA_BUFFER", 1<<20),
		minDataBuffer:     envInt("MIN_DATA_BUFFER", 64<<10),
		indexBuffer:       envInt("INDEX_BUFFER", 256<<10),
		minIndexBuffer:    envInt("MIN_INDEX_BUFFER", 32<<10),
		orderedKeys:       envBool("ORDERED_KEYS", false),
		snappy:            envBool("SNAPPY", false),
		forceFIFO:         envBool("FORCE_FIFO", false),
		printEvents:       envBool("PRINT_EVENTS", false),
		falseKeys:         envInt("FALSE_KEYS", 10000),
	}
	if c.dataBuffer < c.minDataBuffer {
		c.dataBuffer = c.minDataBuffer
	}
	if c.indexBuffer < c.minIndexBuffer {
		c.indexBuffer = c.minIndexBuffer
	}
	return c
}

func envString(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

// directoryOptions turns c into a directory.Options, dispatching
// FT_TYPE through ftTypeTable rather than any strcmp-like comparison.
func (c config) directoryOptions() (directory.Options, error) {
	ft, ok := ftTypeTable[c.ftType]
	if !ok {
		return directory.Options{}, errors.Newf("plfsbench: unknown FT_TYPE %q", c.ftType)
	}
	opts := directory.Options{
		TotalMemtableBudget: c.memtableSize,
		BlockSize:           c.blockSize,
		BlockUtil:           float64(c.blockUtilPerMille) / 1000,
		LgParts:             c.lgParts,
		SkipSort:            c.orderedKeys,
		Filter:              ft.typ,
		BFBitsPerKey:        c.bfBits,
		BMKeyBits:           c.bmKeyBits,
		BitmapFormat:        int(ft.format),
		FilterBitsPerKey:    c.ftBits,
		DataBufferBytes:     c.dataBuffer,
		IndexBufferBytes:    c.indexBuffer,
	}
	if c.snappy {
		opts.Compression = block.CompressionSnappy
	}
	return opts.EnsureDefaults(), nil
}
