// Command plfsbench drives the io and bf micro-benchmarks of spec §6,
// reading its tunables from environment variables the way the
// teacher's cmd/pebble benchmarks read flags, grounded on
// tool/tool.go's cobra-command-tree idiom.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "plfsbench",
	Short: "plfsio directory write/read and filter micro-benchmarks",
	Long: `
plfsbench runs one of two fixed micro-benchmarks against an in-memory
directory:

  --bench=io   write NUM_FILES*BATCH_SIZE records, split across
               NUM_THREADS writers, into 2^LG_PARTS shards, then read
               every key back and report
               throughput and latency percentiles.
  --bench=bf   build a single table's filter in isolation and report
               its false-positive rate against FALSE_KEYS unseen keys.

All other tuning is read from the environment variables named in
spec §6 (FT_TYPE, NUM_FILES, LG_PARTS, BLOCK_SIZE, ...).
`,
	RunE: runBench,
}

var benchName string

func init() {
	rootCmd.Flags().StringVar(&benchName, "bench", "io", `benchmark to run: "io" or "bf"`)
}

func main() {
	log.SetFlags(0)
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg := configFromEnv()
	switch benchName {
	case "io":
		return runIOBench(cfg)
	case "bf":
		return runBFBench(cfg)
	default:
		return errUnknownBench(benchName)
	}
}
