// Package workers provides a fixed-size goroutine pool for fanning out
// independent computations while preserving input order.
package workers

import (
	"context"
	"sync"
)

// Pool manages a pool of worker goroutines for parallel computation.
type Pool struct {
	numWorkers int
}

// NewPool creates a pool with the specified number of workers.
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 8
	}
	return &Pool{numWorkers: numWorkers}
}

// Size returns the configured worker count.
func (p *Pool) Size() int { return p.numWorkers }

type jobItem struct {
	index int
}

type resultItem[R any] struct {
	index int
	value R
	err   error
}

// Map runs fn over the index range [0, n) on the pool and returns the
// results in input order. The first error cancels the remaining work and is
// returned; a canceled context surfaces as ctx.Err().
func Map[R any](ctx context.Context, p *Pool, n int, fn func(ctx context.Context, index int) (R, error)) ([]R, error) {
	if n == 0 {
		return []R{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan jobItem, n)
	results := make(chan resultItem[R], n)

	numActualWorkers := p.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n
	}

	var wg sync.WaitGroup
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					results <- resultItem[R]{index: job.index, err: ctx.Err()}
					continue
				}
				value, err := fn(ctx, job.index)
				results <- resultItem[R]{index: job.index, value: value, err: err}
			}
		}()
	}

	for idx := 0; idx < n; idx++ {
		jobs <- jobItem{index: idx}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]R, n)
	var firstErr error
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
				cancel()
			}
			continue
		}
		out[result.index] = result.value
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
