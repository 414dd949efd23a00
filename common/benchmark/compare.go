package benchmark

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/intellect4all/cowtree/common"
)

// WorkloadSuite runs a fixed battery of workload configurations against
// one engine, the single-engine analogue of the teacher's
// ComparisonSuite (which ran the same workloads across competing
// engines). What varies here is the configuration — distribution,
// preload size, concurrency/serialization mode — not the engine.
type WorkloadSuite struct {
	configs []Config
}

func NewWorkloadSuite() *WorkloadSuite {
	return &WorkloadSuite{configs: StandardWorkloads()}
}

func (ws *WorkloadSuite) SetWorkloads(configs []Config) {
	ws.configs = configs
}

// StandardWorkloads returns representative benchmark scenarios.
func StandardWorkloads() []Config {
	return []Config{
		{
			Name:                "write-heavy-uniform",
			WorkloadType:        WorkloadWriteHeavy,
			KeyDistribution:     DistUniform,
			NumKeys:             1000000,
			Duration:            60 * time.Second,
			Concurrency:         1,
			SerializeExternally: false,
			PreloadKeys:         100000,
			Seed:                12345,
		},
		{
			Name:                "read-heavy-zipfian",
			WorkloadType:        WorkloadReadHeavy,
			KeyDistribution:     DistZipfian,
			NumKeys:             1000000,
			Duration:            60 * time.Second,
			Concurrency:         1,
			SerializeExternally: false,
			PreloadKeys:         500000,
			Seed:                12345,
		},
		{
			Name:                "balanced-uniform-serialized",
			WorkloadType:        WorkloadBalanced,
			KeyDistribution:     DistUniform,
			NumKeys:             1000000,
			Duration:            60 * time.Second,
			Concurrency:         4,
			SerializeExternally: true,
			PreloadKeys:         100000,
			Seed:                12345,
		},
		{
			Name:                "write-only-sequential",
			WorkloadType:        WorkloadWriteOnly,
			KeyDistribution:     DistSequential,
			NumKeys:             1000000,
			Duration:            30 * time.Second,
			Concurrency:         1,
			SerializeExternally: false,
			PreloadKeys:         0,
			Seed:                12345,
		},
	}
}

// QuickWorkloads returns faster workloads for local testing.
func QuickWorkloads() []Config {
	return []Config{
		{
			Name:                "quick-write-heavy",
			WorkloadType:        WorkloadWriteHeavy,
			KeyDistribution:     DistUniform,
			NumKeys:             50000,
			Duration:            5 * time.Second,
			Concurrency:         1,
			SerializeExternally: false,
			PreloadKeys:         5000,
			Seed:                12345,
		},
		{
			Name:                "quick-balanced-serialized",
			WorkloadType:        WorkloadBalanced,
			KeyDistribution:     DistUniform,
			NumKeys:             50000,
			Duration:            5 * time.Second,
			Concurrency:         4,
			SerializeExternally: true,
			PreloadKeys:         10000,
			Seed:                12345,
		},
		{
			Name:                "quick-read-heavy",
			WorkloadType:        WorkloadReadHeavy,
			KeyDistribution:     DistZipfian,
			NumKeys:             50000,
			Duration:            5 * time.Second,
			Concurrency:         1,
			SerializeExternally: false,
			PreloadKeys:         30000,
			Seed:                12345,
		},
	}
}

// Run runs every configured workload against engine in turn, printing
// each result as it completes.
func (ws *WorkloadSuite) Run(engine common.Engine) []*Result {
	results := make([]*Result, 0, len(ws.configs))

	for _, config := range ws.configs {
		fmt.Printf("\nRunning: %s\n", config.Name)

		bench := NewBenchmark(engine, config)
		result, err := bench.Run()
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			continue
		}

		results = append(results, result)
		ws.printResult(result)
	}

	return results
}

func (ws *WorkloadSuite) printResult(r *Result) {
	fmt.Printf("\nResults for: %s\n", r.Config.Name)
	fmt.Printf("  Throughput: %.0f ops/sec\n", r.OpsPerSec)
	fmt.Printf("  Total Ops: %d (writes: %d, reads: %d)\n",
		r.TotalOps, r.WriteOps, r.ReadOps)

	if r.WriteOps > 0 {
		fmt.Printf("  Write Latency (us):\n")
		fmt.Printf("    p50:  %6d\n", r.WriteLatency.P50.Microseconds())
		fmt.Printf("    p95:  %6d\n", r.WriteLatency.P95.Microseconds())
		fmt.Printf("    p99:  %6d\n", r.WriteLatency.P99.Microseconds())
		fmt.Printf("    p999: %6d\n", r.WriteLatency.P999.Microseconds())
	}

	if r.ReadOps > 0 {
		fmt.Printf("  Read Latency (us):\n")
		fmt.Printf("    p50:  %6d\n", r.ReadLatency.P50.Microseconds())
		fmt.Printf("    p95:  %6d\n", r.ReadLatency.P95.Microseconds())
		fmt.Printf("    p99:  %6d\n", r.ReadLatency.P99.Microseconds())
		fmt.Printf("    p999: %6d\n", r.ReadLatency.P999.Microseconds())
	}

	fmt.Printf("  Amplification:\n")
	fmt.Printf("    Write: %.2fx\n", r.WriteAmplification)
	fmt.Printf("    Space: %.2fx\n", r.SpaceAmplification)
	fmt.Printf("  Disk Usage: %.1f MB\n", r.TotalDiskMB)
}

// PrintTable prints a compact side-by-side summary of every result.
func (ws *WorkloadSuite) PrintTable(results []*Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "\n=== WORKLOAD SUMMARY ===")
	fmt.Fprintln(w, "Workload\tOps/sec\tWrite P99 (us)\tWrite Amp\tSpace Amp\tDisk (MB)")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.0f\t%d\t%.2fx\t%.2fx\t%.1f\n",
			r.Config.Name, r.OpsPerSec, r.WriteLatency.P99.Microseconds(),
			r.WriteAmplification, r.SpaceAmplification, r.TotalDiskMB)
	}
	w.Flush()
}
