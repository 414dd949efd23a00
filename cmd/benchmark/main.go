package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/intellect4all/cowtree/btree"
	"github.com/intellect4all/cowtree/common/benchmark"
)

func main() {
	quick := flag.Bool("quick", false, "Run quick benchmarks (shorter duration)")
	workload := flag.String("workload", "all", "Workload to run (all, or a single workload name)")
	duration := flag.Duration("duration", 60*time.Second, "Duration for each benchmark")
	concurrency := flag.Int("concurrency", 1, "Number of concurrent workers (>1 forces SerializeExternally)")
	totalPages := flag.Uint64("total-pages", 1<<20, "Page budget for the backing file")
	dir := flag.String("dir", "", "Directory for the backing file (default: a temp dir)")
	flag.Parse()

	fmt.Println("cowtree Benchmark Suite")
	fmt.Println("=======================")
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Total pages: %d\n\n", *totalPages)

	var configs []benchmark.Config
	if *quick {
		configs = benchmark.QuickWorkloads()
	} else {
		configs = benchmark.StandardWorkloads()
	}

	if flag.Lookup("duration").Value.String() != flag.Lookup("duration").DefValue {
		for i := range configs {
			configs[i].Duration = *duration
		}
	}

	if flag.Lookup("concurrency").Value.String() != flag.Lookup("concurrency").DefValue {
		for i := range configs {
			configs[i].Concurrency = *concurrency
			if *concurrency > 1 {
				configs[i].SerializeExternally = true
			}
		}
	}

	if *workload != "all" {
		filtered := make([]benchmark.Config, 0)
		for _, config := range configs {
			if config.Name == *workload {
				filtered = append(filtered, config)
			}
		}
		if len(filtered) == 0 {
			fmt.Printf("Unknown workload: %s\n", *workload)
			os.Exit(1)
		}
		configs = filtered
	}

	workDir := *dir
	if workDir == "" {
		tmp, err := os.MkdirTemp("", "cowtree-benchmark-*")
		if err != nil {
			fmt.Printf("Failed to create temp dir: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tmp)
		workDir = tmp
	}

	path := workDir + "/benchmark.db"
	eng, err := btree.CreateFileSystem(btree.DefaultConfig(path), *totalPages)
	if err != nil {
		fmt.Printf("Failed to create index: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	suite := benchmark.NewWorkloadSuite()
	suite.SetWorkloads(configs)
	results := suite.Run(eng)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("BENCHMARK SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	suite.PrintTable(results)
}
