package engine

import (
	"context"
	"sync"
)

// DefaultParallelism bounds BuildAll when no limit is given.
const DefaultParallelism = 4

// BatchResult pairs a request with its outcome.
type BatchResult struct {
	Request Request
	Result  *Result
	Err     error
}

// BuildAll runs independent builds on a pool of at most maxParallel workers.
// Results are returned in request order. Remaining requests fail with the
// context error once ctx is cancelled.
func (e *Engine) BuildAll(ctx context.Context, reqs []Request, maxParallel int) []BatchResult {
	results := make([]BatchResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	workerCount := maxParallel
	if workerCount <= 0 {
		workerCount = DefaultParallelism
	}
	if len(reqs) < workerCount {
		workerCount = len(reqs)
	}

	workQueue := make(chan int, len(reqs))
	for i := range reqs {
		workQueue <- i
	}
	close(workQueue)

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workQueue {
				results[i].Request = reqs[i]
				if err := ctx.Err(); err != nil {
					results[i].Err = &BuildError{Stage: StageRequest, Entry: reqs[i].Entry, Err: err}
					continue
				}
				results[i].Result, results[i].Err = e.Build(ctx, reqs[i])
			}
		}()
	}
	wg.Wait()

	e.logger.Debug().Int("builds", len(reqs)).Int("workers", workerCount).Msg("Batch finished")
	return results
}

// Failed counts the failed results.
func Failed(results []BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
