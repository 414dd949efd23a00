package benchmark

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intellect4all/cowtree/common"
)

// WorkloadType defines the access pattern.
type WorkloadType string

const (
	WorkloadWriteHeavy WorkloadType = "write-heavy" // 95% writes
	WorkloadReadHeavy  WorkloadType = "read-heavy"   // 95% reads
	WorkloadBalanced   WorkloadType = "balanced"     // 50/50
	WorkloadReadOnly   WorkloadType = "read-only"    // 100% reads
	WorkloadWriteOnly  WorkloadType = "write-only"   // 100% writes
)

// Config defines a benchmark scenario. There is no per-op key/value
// size: this engine's keys and values are fixed-width uint64s.
type Config struct {
	Name string

	WorkloadType    WorkloadType
	KeyDistribution KeyDistribution

	NumKeys int // total unique keys in the dataset

	Duration time.Duration // how long to run

	// Concurrency is the number of goroutines issuing operations. The
	// common.Engine contract (SPEC_FULL §5) leaves serialization to the
	// caller, so a Concurrency above 1 is only valid in combination with
	// SerializeExternally — this flag exists specifically to let a
	// benchmark demonstrate both sides of that contract.
	Concurrency         int
	SerializeExternally bool

	PreloadKeys int // keys to load before the benchmark starts

	Seed int64

	// MaxPages, when positive, caps the number of successful inserts the
	// benchmark will attempt via a PageBudget, simulating a constrained
	// total_pages environment independent of the backing file's actual
	// size.
	MaxPages int64
}

type Result struct {
	Config Config

	TotalOps  int64
	WriteOps  int64
	ReadOps   int64
	Duration  time.Duration
	OpsPerSec float64

	WriteLatency LatencyStats
	ReadLatency  LatencyStats

	WriteAmplification float64
	SpaceAmplification float64

	TotalDiskMB float64

	EngineStats common.Stats
}

// Benchmark drives a single common.Engine through a configured
// workload. Unlike a benchmark over a concurrent engine, every call
// into the engine here is funneled through mu when
// Config.SerializeExternally is set, since the common.Engine contract
// does not require an implementation to serialize calls itself.
type Benchmark struct {
	engine common.Engine
	config Config

	mu sync.Mutex

	writeLatencies *LatencyHistogram
	readLatencies  *LatencyHistogram

	writeCount atomic.Int64
	readCount  atomic.Int64
	errorCount atomic.Int64

	keyGen *KeyGenerator
	budget *PageBudget

	randSeed atomic.Int64
}

func NewBenchmark(engine common.Engine, config Config) *Benchmark {
	b := &Benchmark{
		engine:         engine,
		config:         config,
		writeLatencies: NewLatencyHistogram(),
		readLatencies:  NewLatencyHistogram(),
		keyGen:         NewKeyGenerator(config.NumKeys, config.KeyDistribution, config.Seed),
	}
	if config.MaxPages > 0 {
		b.budget = NewPageBudget(config.MaxPages)
	}
	return b
}

// Run executes the benchmark: preload, warm-up, measured run.
func (b *Benchmark) Run() (*Result, error) {
	if b.config.Concurrency > 1 && !b.config.SerializeExternally {
		return nil, errors.New("benchmark: Concurrency > 1 requires SerializeExternally, the Engine contract leaves serialization to the caller")
	}

	if b.config.PreloadKeys > 0 {
		fmt.Printf("Preloading %d keys...\n", b.config.PreloadKeys)
		if err := b.preload(); err != nil {
			return nil, err
		}
		fmt.Println("Preload complete")
	}

	fmt.Println("Warming up...")
	b.runWorkload(5 * time.Second)

	b.writeLatencies.Reset()
	b.readLatencies.Reset()
	b.writeCount.Store(0)
	b.readCount.Store(0)
	b.errorCount.Store(0)

	fmt.Printf("Running benchmark for %v...\n", b.config.Duration)
	startStats := b.engine.Stats()
	startTime := time.Now()

	b.runWorkload(b.config.Duration)

	endTime := time.Now()
	endStats := b.engine.Stats()
	duration := endTime.Sub(startTime)

	_ = startStats
	result := b.calculateResults(duration, endStats)

	return result, nil
}

func (b *Benchmark) preload() error {
	for i := 0; i < b.config.PreloadKeys; i++ {
		key := b.keyGen.GenerateSequential(i)
		if _, _, err := b.engine.Insert(key, b.valueFor(key)); err != nil {
			return err
		}

		if i > 0 && i%10000 == 0 {
			fmt.Printf("  Loaded %d keys\n", i)
		}
	}

	return b.engine.Sync()
}

func (b *Benchmark) valueFor(key uint64) uint64 {
	return key*2654435761 + 1
}

func (b *Benchmark) runWorkload(duration time.Duration) {
	var wg sync.WaitGroup
	stop := make(chan struct{})

	concurrency := b.config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			b.worker(workerID, stop)
		}(i)
	}

	time.Sleep(duration)

	close(stop)
	wg.Wait()
}

func (b *Benchmark) worker(id int, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			if b.shouldWrite() {
				b.doWrite()
			} else {
				b.doRead()
			}
		}
	}
}

func (b *Benchmark) shouldWrite() bool {
	switch b.config.WorkloadType {
	case WorkloadWriteOnly:
		return true
	case WorkloadReadOnly:
		return false
	case WorkloadWriteHeavy:
		return b.randFloat() < 0.95
	case WorkloadReadHeavy:
		return b.randFloat() < 0.05
	case WorkloadBalanced:
		return b.randFloat() < 0.50
	default:
		return b.randFloat() < 0.50
	}
}

func (b *Benchmark) doWrite() {
	if b.budget != nil {
		if err := b.budget.Alloc(); err != nil {
			b.errorCount.Add(1)
			return
		}
	}

	key := b.keyGen.NextKey()
	value := b.valueFor(key)

	start := time.Now()
	var err error
	if b.config.SerializeExternally {
		b.mu.Lock()
		_, _, err = b.engine.Insert(key, value)
		b.mu.Unlock()
	} else {
		_, _, err = b.engine.Insert(key, value)
	}
	latency := time.Since(start)

	if err != nil {
		b.errorCount.Add(1)
		return
	}

	b.writeLatencies.Record(latency)
	b.writeCount.Add(1)
}

func (b *Benchmark) doRead() {
	key := b.keyGen.NextKey()

	start := time.Now()
	var err error
	if b.config.SerializeExternally {
		b.mu.Lock()
		_, _, err = b.engine.Lookup(key)
		b.mu.Unlock()
	} else {
		_, _, err = b.engine.Lookup(key)
	}
	latency := time.Since(start)

	if err != nil && !errors.Is(err, common.ErrKeyNotFound) {
		b.errorCount.Add(1)
		return
	}

	b.readLatencies.Record(latency)
	b.readCount.Add(1)
}

func (b *Benchmark) calculateResults(duration time.Duration, endStats common.Stats) *Result {
	writeOps := b.writeCount.Load()
	readOps := b.readCount.Load()
	totalOps := writeOps + readOps

	return &Result{
		Config:    b.config,
		TotalOps:  totalOps,
		WriteOps:  writeOps,
		ReadOps:   readOps,
		Duration:  duration,
		OpsPerSec: float64(totalOps) / duration.Seconds(),

		WriteLatency: b.writeLatencies.Stats(),
		ReadLatency:  b.readLatencies.Stats(),

		WriteAmplification: endStats.WriteAmp,
		SpaceAmplification: endStats.SpaceAmp,

		TotalDiskMB: float64(endStats.TotalDiskSize) / (1024 * 1024),
		EngineStats: endStats,
	}
}

func (b *Benchmark) randFloat() float64 {
	return float64(b.randSeed.Add(1)%10000) / 10000.0
}
