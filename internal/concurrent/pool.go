// Package concurrent runs a bounded number of jobs in parallel, capping how
// many outstanding requests a single host sees at once. Grounded on the
// teacher's internal/concurrent/fetcher.go (worker goroutines pulling from a
// jobs channel, WaitGroup-gated shutdown, a rate limiter shared across
// workers) but reduced to a generic job/result pair instead of a
// model.Card-shaped fetch. The marketplace collector is the one caller; it
// runs the pool over its per-query page fetches.
package concurrent

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Pool runs Run(item) for every item in a batch, using at most Workers
// goroutines at a time and, if RateLimit is set, throttling how fast new
// work starts.
type Pool struct {
	Workers   int
	RateLimit *rate.Limiter
}

// New builds a Pool with the given worker count (§5 recommends 4-8
// outstanding requests per host; the caller picks a count appropriate to the
// resource it's fanning out over). workers <= 0 is treated as 1.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{Workers: workers}
}

// WithRateLimit attaches a token-bucket limiter so Run additionally throttles
// how fast new jobs start, independent of the worker count.
func (p *Pool) WithRateLimit(rl *rate.Limiter) *Pool {
	p.RateLimit = rl
	return p
}

// Run applies fn to every item concurrently (bounded by p.Workers) and
// returns the results in the same order as items. If ctx is cancelled,
// outstanding jobs finish attempting but subsequent unstarted jobs are
// skipped, and their result slot is left at the zero value.
func Run[T any, R any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) (R, error)) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))

	type job struct {
		idx  int
		item T
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < p.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if p.RateLimit != nil {
					if err := p.RateLimit.Wait(ctx); err != nil {
						errs[j.idx] = err
						continue
					}
				}
				r, err := fn(ctx, j.item)
				results[j.idx] = r
				errs[j.idx] = err
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{idx: i, item: item}:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return results, errs
}
