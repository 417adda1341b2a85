package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultWorkers bounds concurrent runs in an Ensemble.
const DefaultWorkers = 7

// Job runs one independent simulation with its own fields and locus.
type Job func(ctx context.Context) (*Result, error)

// Ensemble runs jobs on a bounded pool of workers.
type Ensemble struct {
	workers int
}

func NewEnsemble(workers int) *Ensemble {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Ensemble{workers: workers}
}

func (e *Ensemble) Workers() int { return e.workers }

// Run executes every job and returns results by index. Jobs not started
// before ctx is done fail with ctx.Err(). The error joins every job error.
func (e *Ensemble) Run(ctx context.Context, jobs []Job) ([]*Result, error) {
	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers && w < len(jobs); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range next {
				if err := ctx.Err(); err != nil {
					errs[idx] = err
					continue
				}
				results[idx], errs[idx] = jobs[idx](ctx)
			}
		}()
	}

	for i := range jobs {
		next <- i
	}
	close(next)
	wg.Wait()

	var joined []error
	for i, err := range errs {
		if err != nil {
			joined = append(joined, fmt.Errorf("job %d: %w", i, err))
		}
	}
	return results, errors.Join(joined...)
}
