package main

import (
	"fmt"
	"math/rand"

	"github.com/plfs/plfsio/filter"
	"github.com/plfs/plfsio/filter/bitmap"
	"github.com/plfs/plfsio/filter/bloom"
	"github.com/plfs/plfsio/filter/cuckoo"
)

// runBFBench builds a single filter over BATCH_SIZE inserted keys and
// reports its false-positive rate against FALSE_KEYS keys known never
// to have been inserted, per spec §6's --bench=bf.
func runBFBench(cfg config) error {
	ft, ok := ftTypeTable[cfg.ftType]
	if !ok {
		return fmt.Errorf("plfsbench: unknown FT_TYPE %q", cfg.ftType)
	}

	rng := rand.New(rand.NewSource(1))
	inserted := make([][]byte, cfg.batchSize)
	seen := make(map[string]bool, cfg.batchSize)
	for i := range inserted {
		k := randomBytes(rng, cfg.keySize)
		inserted[i] = k
		seen[string(k)] = true
	}

	w := newBenchFilterWriter(cfg, ft.typ, ft.format)
	w.Reset(len(inserted))
	for _, k := range inserted {
		w.AddKey(k)
	}
	blob := w.Finish()

	mayMatch := benchMayMatch(ft.typ)

	falsePositives := 0
	tested := 0
	for tested < cfg.falseKeys {
		k := randomBytes(rng, cfg.keySize)
		if seen[string(k)] {
			continue
		}
		tested++
		if mayMatch(k, blob) {
			falsePositives++
		}
	}

	for _, k := range inserted {
		if !mayMatch(k, blob) {
			return fmt.Errorf("plfsbench: filter rejected an inserted key, false negative in %s", ft.typ)
		}
	}

	fmt.Printf("filter=%s(%s) keys=%d filter_bytes=%d false_keys=%d false_positives=%d rate=%.4f%%\n",
		cfg.ftType, ft.typ, len(inserted), len(blob), tested, falsePositives,
		100*float64(falsePositives)/float64(tested))
	return nil
}

func newBenchFilterWriter(cfg config, typ filter.Type, format bitmap.Format) filter.Writer {
	switch typ {
	case filter.TypeBloom:
		return &bloom.Writer{BitsPerKey: cfg.bfBits}
	case filter.TypeBitmap:
		return &bitmap.Writer{KeyBits: cfg.bmKeyBits, Format: format}
	case filter.TypeCuckoo:
		return &cuckoo.Writer{BitsPerKey: cfg.ftBits}
	default:
		panic("plfsbench: unreachable filter type")
	}
}

func benchMayMatch(typ filter.Type) filter.MayMatchFunc {
	switch typ {
	case filter.TypeBloom:
		return bloom.MayMatch
	case filter.TypeBitmap:
		return bitmap.MayMatch
	case filter.TypeCuckoo:
		return cuckoo.MayMatch
	default:
		panic("plfsbench: unreachable filter type")
	}
}
