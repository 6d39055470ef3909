// Package parallel splits index ranges across goroutines for the CPU backend.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1024,
	}
}

// Sequential returns a config that never spawns goroutines.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// Range executes f over disjoint [start, end) chunks covering [0, n).
// Chunks run concurrently when the config allows it and n is large enough;
// Range returns after every chunk has finished.
func Range(n int, cfg Config, f func(start, end int)) {
	if n <= 0 {
		return
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*cfg.MinChunkSize {
		f(0, n)
		return
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}

// For executes f(i) for i in [0, n) on top of Range.
func For(n int, cfg Config, f func(i int)) {
	Range(n, cfg, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	})
}

// ForCost is For for items that each cost about cost elementary operations.
// MinChunkSize stays measured in elementary operations, so heavy items such
// as whole image planes are spread over the workers even when n is small.
func ForCost(n, cost int, cfg Config, f func(i int)) {
	if cost > 1 {
		cfg.MinChunkSize = max(1, (cfg.MinChunkSize+cost-1)/cost)
	}
	For(n, cfg, f)
}
