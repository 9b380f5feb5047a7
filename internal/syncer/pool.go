package syncer

import (
	"context"
	"sort"
	"sync"

	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

// syncFunc uploads one inspection.
type syncFunc func(ctx context.Context, insp *store.Inspection) error

// result is the outcome of one job in a batch.
type result struct {
	Inspection store.Inspection
	Err        error
	index      int
}

// pool runs a batch of uploads on a bounded set of workers and waits for
// all of them. One failed upload does not cancel its siblings.
type pool struct {
	workers int
}

func newPool(workers int) *pool {
	if workers <= 0 {
		workers = 1
	}
	return &pool{workers: workers}
}

type job struct {
	insp  store.Inspection
	index int
}

// execute runs fn for every inspection in batch. Results keep the input
// order. Jobs not yet started when ctx is cancelled fail with ctx.Err().
func (p *pool) execute(ctx context.Context, batch []store.Inspection, fn syncFunc) []result {
	if len(batch) == 0 {
		return []result{}
	}

	jobs := make(chan job, len(batch))
	results := make(chan result, len(batch))

	for i, insp := range batch {
		jobs <- job{insp: insp, index: i}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < min(p.workers, len(batch)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{Inspection: j.insp, Err: err, index: j.index}
					continue
				}
				insp := j.insp
				err := fn(ctx, &insp)
				results <- result{Inspection: insp, Err: err, index: j.index}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]result, 0, len(batch))
	for r := range results {
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].index < out[j].index
	})

	return out
}
