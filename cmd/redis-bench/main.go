package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/redisproto"
	"github.com/pior/redisproto/resp"
)

type OperationType string

const (
	CacheHit  OperationType = "cache-hit"
	CacheMiss OperationType = "cache-miss"
	SetGet    OperationType = "set-get"
	Increment OperationType = "increment"
	Delete    OperationType = "delete"
	Pipeline  OperationType = "pipeline"
	All       OperationType = "all"
)

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

func main() {
	var (
		operation   = flag.String("operation", "all", "Operation type: cache-hit, cache-miss, set-get, increment, delete, pipeline, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 1, "Number of concurrent workers")
		servers     = flag.String("servers", "localhost:6379", "Comma-separated list of servers")
	)
	flag.Parse()

	fmt.Printf("Redis Benchmark Tool\n")
	fmt.Printf("====================\n")
	fmt.Printf("Operation: %s\n", *operation)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Servers: %s\n", *servers)
	fmt.Println()

	client, err := redisproto.NewClient(
		redisproto.NewStaticServers(strings.Split(*servers, ",")...),
		redisproto.Config{MaxSize: 20},
	)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	fmt.Print("Testing connection...")
	if err := client.Ping(context.Background()); err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure a server is running on %s\n", *servers)
		return
	}
	fmt.Println(" success!")
	fmt.Println()

	if OperationType(*operation) == All {
		runAllOperations(client, *duration, *concurrency)
	} else {
		result := runSingleOperation(client, OperationType(*operation), *duration, *concurrency)
		printResult(result)
	}
}

func runAllOperations(client *redisproto.Client, duration time.Duration, concurrency int) {
	operations := []OperationType{CacheHit, CacheMiss, SetGet, Increment, Delete, Pipeline}

	for _, op := range operations {
		fmt.Printf("\n--- Running %s benchmark ---\n", op)
		result := runSingleOperation(client, op, duration, concurrency)
		printResult(result)

		// Short pause between operations
		time.Sleep(500 * time.Millisecond)
	}
}

func runSingleOperation(client *redisproto.Client, operation OperationType, duration time.Duration, concurrency int) *BenchmarkResult {
	switch operation {
	case CacheHit:
		return runCacheHitBenchmark(client, duration, concurrency)
	case CacheMiss:
		return runCacheMissBenchmark(client, duration, concurrency)
	case SetGet:
		return runSetGetBenchmark(client, duration, concurrency)
	case Increment:
		return runIncrementBenchmark(client, duration, concurrency)
	case Delete:
		return runDeleteBenchmark(client, duration, concurrency)
	case Pipeline:
		return runPipelineBenchmark(client, duration, concurrency)
	default:
		return &BenchmarkResult{
			Operation:    operation,
			Correctness:  false,
			ErrorMessage: fmt.Sprintf("Unknown operation: %s", operation),
		}
	}
}

// runWorkers drives concurrency workers calling op until the duration
// elapses, collecting the shared counters of a BenchmarkResult. op
// returns whether the operation succeeded, and an optional correctness
// complaint that fails the whole run.
func runWorkers(result *BenchmarkResult, duration time.Duration, concurrency int, op func(ctx context.Context, workerID, i int) (bool, string)) {
	var totalOps, successes, failures, totalLatency int64
	var mu sync.Mutex // guards the correctness fields

	startTime := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			ctx := context.Background()
			for i := 0; time.Since(startTime) < duration; i++ {
				opStart := time.Now()
				ok, complaint := op(ctx, workerID, i)
				latency := time.Since(opStart)

				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(latency))
				if ok {
					atomic.AddInt64(&successes, 1)
				} else {
					atomic.AddInt64(&failures, 1)
				}
				if complaint != "" {
					mu.Lock()
					result.Correctness = false
					result.ErrorMessage = complaint
					mu.Unlock()
				}
			}
		}(i)
	}

	wg.Wait()

	result.Duration = time.Since(startTime)
	result.TotalOps = totalOps
	result.Successes = successes
	result.Failures = failures

	if totalOps > 0 {
		result.AvgLatency = time.Duration(totalLatency / totalOps)
		result.OpsPerSecond = float64(totalOps) / result.Duration.Seconds()
	}
}

// Cache-hit: one set, then gets on the same key
func runCacheHitBenchmark(client *redisproto.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	key := "bench:cache-hit"
	value := []byte("cache-hit-value")

	err := client.Set(context.Background(), redisproto.Item{Key: key, Value: value, TTL: time.Hour})
	if err != nil {
		return &BenchmarkResult{
			Operation:    CacheHit,
			Correctness:  false,
			ErrorMessage: fmt.Sprintf("Failed to set initial value: %v", err),
		}
	}

	result := &BenchmarkResult{Operation: CacheHit, Correctness: true}
	runWorkers(result, duration, concurrency, func(ctx context.Context, workerID, i int) (bool, string) {
		item, err := client.Get(ctx, key)
		if err != nil || !item.Found {
			return false, ""
		}
		if string(item.Value) != string(value) {
			return false, "Value mismatch"
		}
		return true, ""
	})
	return result
}

// Cache-miss: gets on keys that do not exist
func runCacheMissBenchmark(client *redisproto.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	result := &BenchmarkResult{Operation: CacheMiss, Correctness: true}
	runWorkers(result, duration, concurrency, func(ctx context.Context, workerID, i int) (bool, string) {
		item, err := client.Get(ctx, fmt.Sprintf("bench:nonexistent-%d-%d", workerID, i))
		if err != nil {
			return false, ""
		}
		if item.Found {
			return false, "Expected a miss but found a value"
		}
		return true, ""
	})
	return result
}

// Set-get: one set then one get per iteration, verifying the value
func runSetGetBenchmark(client *redisproto.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	result := &BenchmarkResult{Operation: SetGet, Correctness: true}
	runWorkers(result, duration, concurrency, func(ctx context.Context, workerID, i int) (bool, string) {
		key := fmt.Sprintf("bench:set-get-%d-%d", workerID, i)
		value := []byte(fmt.Sprintf("value-%d-%d", workerID, i))

		if err := client.Set(ctx, redisproto.Item{Key: key, Value: value, TTL: time.Hour}); err != nil {
			return false, ""
		}
		item, err := client.Get(ctx, key)
		if err != nil || !item.Found {
			return false, ""
		}
		if string(item.Value) != string(value) {
			return false, "Value mismatch"
		}
		return true, ""
	})
	return result
}

// Increment: concurrent INCRBY on a shared counter, then a final check
// that the counter matches the number of successful increments
func runIncrementBenchmark(client *redisproto.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	key := "bench:counter"
	if err := client.Delete(context.Background(), key); err != nil {
		return &BenchmarkResult{
			Operation:    Increment,
			Correctness:  false,
			ErrorMessage: fmt.Sprintf("Failed to reset counter: %v", err),
		}
	}

	result := &BenchmarkResult{Operation: Increment, Correctness: true}
	runWorkers(result, duration, concurrency, func(ctx context.Context, workerID, i int) (bool, string) {
		_, err := client.Increment(ctx, key, 1)
		return err == nil, ""
	})

	item, err := client.Get(context.Background(), key)
	if err != nil || !item.Found {
		result.Correctness = false
		result.ErrorMessage = "Failed to read back counter"
		return result
	}
	if n, err := strconv.ParseInt(string(item.Value), 10, 64); err != nil || n != result.Successes {
		result.Correctness = false
		result.ErrorMessage = fmt.Sprintf("Counter is %q after %d successful increments", item.Value, result.Successes)
	}
	return result
}

// Delete: one set then one delete per iteration
func runDeleteBenchmark(client *redisproto.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	result := &BenchmarkResult{Operation: Delete, Correctness: true}
	runWorkers(result, duration, concurrency, func(ctx context.Context, workerID, i int) (bool, string) {
		key := fmt.Sprintf("bench:delete-%d-%d", workerID, i)

		if err := client.Set(ctx, redisproto.Item{Key: key, Value: []byte("x"), TTL: time.Hour}); err != nil {
			return false, ""
		}
		if err := client.Delete(ctx, key); err != nil {
			return false, ""
		}
		return true, ""
	})
	return result
}

// Pipeline: SET, GET and DEL sent as one request, one round trip
func runPipelineBenchmark(client *redisproto.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	result := &BenchmarkResult{Operation: Pipeline, Correctness: true}
	runWorkers(result, duration, concurrency, func(ctx context.Context, workerID, i int) (bool, string) {
		key := fmt.Sprintf("bench:pipe-%d-%d", workerID, i)
		value := fmt.Sprintf("value-%d-%d", workerID, i)

		req := &resp.Request{}
		if err := req.AppendArgs([]byte("SET"), []byte(key), []byte(value)); err != nil {
			return false, ""
		}
		if err := req.AppendArgs([]byte("GET"), []byte(key)); err != nil {
			return false, ""
		}
		if err := req.AppendArgs([]byte("DEL"), []byte(key)); err != nil {
			return false, ""
		}

		rsp, err := client.Do(ctx, key, req)
		if err != nil {
			return false, ""
		}
		if rsp.ReplyCount() != 3 {
			return false, fmt.Sprintf("Expected 3 replies, got %d", rsp.ReplyCount())
		}
		if got := string(rsp.Reply(1).Bytes()); got != value {
			return false, "Pipelined GET returned the wrong value"
		}
		return true, ""
	})
	return result
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation: %s\n", result.Operation)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Total Operations: %d\n", result.TotalOps)
	fmt.Printf("Successes: %d\n", result.Successes)
	fmt.Printf("Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Printf("Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Printf("Avg Latency: %v\n", result.AvgLatency)
	}
	fmt.Printf("Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}
	fmt.Println()
}
