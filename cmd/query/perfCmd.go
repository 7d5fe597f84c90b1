package query

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbpool/cmd/util"
	"github.com/ValentinKolb/dbpool/lib/common"
	"github.com/ValentinKolb/dbpool/lib/db"
	"github.com/ValentinKolb/dbpool/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Measures the throughput of the dispatch pool",
		Long:    "Runs parallel get, batch, seek, put and mixed workloads against the configured database. Reads go through the dispatch pool.",
		Args:    cobra.NoArgs,
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfMap        = "__perf"
	perfNumThreads = 10
	perfKeySpread  = 1000
	perfBatchSize  = 16
	perfValueSize  = 128
	perfSkip       = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,mixed)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Parallelism of the benchmark (multiplied by GOMAXPROCS)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("How many different keys to use for the tests"))
	key = "batch-size"
	perfTestCmd.Flags().Int(key, 16, util.WrapString("Number of keys per batched lookup"))
	key = "value-size"
	perfTestCmd.Flags().Int(key, 128, util.WrapString("Size of the values in bytes"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	perfNumThreads = max(1, viper.GetInt("threads"))
	perfKeySpread = max(1, viper.GetInt("keys"))
	perfBatchSize = max(1, viper.GetInt("batch-size"))
	perfValueSize = max(0, viper.GetInt("value-size"))
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	d, cfg, err := util.OpenDatabase()
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Errorf("closing database: %v", err)
		}
	}()

	fmt.Println("Performance testing tool for the dbpool dispatch pool")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(cfg.String())
	plan := d.Pool().Plan()
	fmt.Printf("Workers: %d, Queues: %d, Queue sizes: %v\n", plan.Workers, plan.Queues(), plan.QueueSizes)
	fmt.Printf("Threads: %d, Keys: %d, Batch size: %d\n", perfNumThreads, perfKeySpread, perfBatchSize)
	fmt.Println()

	m, err := d.Map(perfMap)
	if err != nil {
		return err
	}
	keys := perfKeys()
	value := make([]byte, perfValueSize)
	for _, k := range keys {
		if err := m.Put(k, value); err != nil {
			return fmt.Errorf("preparing keys: %w", err)
		}
	}
	defer func() {
		for _, k := range keys {
			_ = m.Delete(k)
		}
	}()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, bench := range []struct {
		name string
		op   func(ctx context.Context, counter int) error
	}{
		{"get", func(ctx context.Context, i int) error {
			h, err := m.Get(ctx, keys[i%len(keys)])
			if err != nil {
				return err
			}
			return h.Release()
		}},
		{"get-missing", func(ctx context.Context, i int) error {
			_, err := m.Get(ctx, []byte(fmt.Sprintf("__missing-%d", i%100)))
			if errors.Is(err, db.ErrNotFound) {
				return nil
			}
			return err
		}},
		{"batch", func(ctx context.Context, i int) error {
			results, err := m.GetBatch(ctx, batchAt(keys, i))
			if err != nil {
				return err
			}
			db.ReleaseAll(results)
			return nil
		}},
		{"seek", func(ctx context.Context, i int) error {
			it, err := m.Seek(ctx, db.Forward, keys[i%len(keys)])
			if err != nil {
				return err
			}
			return it.Close()
		}},
		{"put", func(_ context.Context, i int) error {
			return m.Put(keys[i%len(keys)], value)
		}},
		{"mixed", func(ctx context.Context, i int) error {
			switch i % 4 {
			case 0:
				return m.Put(keys[i%len(keys)], value)
			case 1:
				h, err := m.Get(ctx, keys[i%len(keys)])
				if err != nil {
					return err
				}
				return h.Release()
			case 2:
				results, err := m.GetBatch(ctx, batchAt(keys, i))
				if err != nil {
					return err
				}
				db.ReleaseAll(results)
				return nil
			default:
				it, err := m.Seek(ctx, db.Reverse, keys[i%len(keys)])
				if err != nil {
					return err
				}
				return it.Close()
			}
		}},
	} {
		result := runBenchmark(bench.name, bench.op)
		results[bench.name] = result
		printResult(bench.name, result)
	}

	printPoolSummary(d)

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, cfg); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// runBenchmark runs op in parallel, errors are logged and do not stop the run
func runBenchmark(name string, op func(ctx context.Context, counter int) error) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip(name) {
			return
		}

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			ctx := context.Background()
			counter := 0
			for pb.Next() {
				if err := op(ctx, counter); err != nil {
					log.Warningf("(%s) - error: %v", name, err)
				}
				counter++
			}
		})
	})
}

func perfKeys() [][]byte {
	keys := make([][]byte, perfKeySpread)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%08d", i))
	}
	return keys
}

// batchAt returns perfBatchSize keys starting at i (with wraparound)
func batchAt(keys [][]byte, i int) [][]byte {
	batch := make([][]byte, perfBatchSize)
	for j := range batch {
		batch[j] = keys[(i+j)%len(keys)]
	}
	return batch
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// printPoolSummary prints the pool counters and the read latencies per operation
func printPoolSummary(d *store.Database) {
	stats := d.Stats()
	p := stats.Pool

	fmt.Println()
	fmt.Println("Pool:")
	fmt.Printf("  commands=%d canceled=%d dropped=%d queue_full=%d panics=%d\n",
		p.Commands, p.Canceled, p.Dropped, p.QueueFull, p.Panics)
	if p.QueuedMax > 0 {
		fmt.Printf("  queued_max=%d\n", p.QueuedMax)
	}

	fmt.Println("Read latency:")
	for _, name := range stats.TimerNames() {
		t := stats.Reads[name]
		fmt.Printf("  %-20s count=%d mean=%s p50=%s p99=%s\n", name, t.Count,
			time.Duration(t.Mean), time.Duration(t.P50), time.Duration(t.P99))
	}
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, cfg *common.Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Engine", "Workers", "Queues", "QueueSize", "Affinity",
		"Threads", "Keys", "BatchSize", "ValueSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	tests := make([]string, 0, len(results))
	for test := range results {
		tests = append(tests, test)
	}
	sort.Strings(tests)

	for _, test := range tests {
		result := results[test]
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			string(cfg.Engine.Type),
			strconv.Itoa(cfg.Pool.Workers),
			strconv.Itoa(cfg.Pool.Queues),
			strconv.Itoa(cfg.Pool.QueueSize),
			strconv.FormatBool(cfg.Pool.Affinity),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBatchSize),
			strconv.Itoa(perfValueSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
