// Package parallel runs allocation workloads across worker goroutines.
package parallel

import (
	"errors"
	"runtime"
	"sync"
)

// Config controls how work is spread over workers.
type Config struct {
	Workers  int // Number of worker goroutines; values below 2 run inline.
	MinBatch int // Minimum jobs per worker.
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		MinBatch: 1,
	}
}

// Run executes job(i) for i in [0, n). Jobs are split into contiguous
// batches, one per worker. Every job runs even if others fail; the
// returned error joins all job errors in index order.
func Run(n int, job func(i int) error, cfg Config) error {
	if n <= 0 {
		return nil
	}
	errs := make([]error, n)

	minBatch := max(cfg.MinBatch, 1)
	if cfg.Workers < 2 || n <= minBatch {
		for i := 0; i < n; i++ {
			errs[i] = job(i)
		}
		return errors.Join(errs...)
	}

	batch := max((n+cfg.Workers-1)/cfg.Workers, minBatch)

	var wg sync.WaitGroup
	for start := 0; start < n; start += batch {
		end := min(start+batch, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				errs[i] = job(i)
			}
		}(start, end)
	}
	wg.Wait()
	return errors.Join(errs...)
}
