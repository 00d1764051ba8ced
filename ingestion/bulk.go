package ingestion

import (
	"context"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/studyforge/corpus/core"
)

// BulkResult pairs one submission with its outcome. Document is nil when
// the submission failed before a row was created.
type BulkResult struct {
	Document *core.Document
	Err      error
}

// IngestAll runs the given submissions concurrently on a worker pool and
// returns results in input order. Each submission is an independent
// ingestion sequence; one failing does not stop the others. workers <= 0
// selects half the CPUs, minimum one.
func (o *Orchestrator) IngestAll(ctx context.Context, reqs []Request, workers int) ([]BulkResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
		if workers < 1 {
			workers = 1
		}
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	results := make([]BulkResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		i, req := i, req
		err := pool.Submit(func() {
			defer wg.Done()
			doc, err := o.Ingest(ctx, req)
			results[i] = BulkResult{Document: doc, Err: err}
		})
		if err != nil {
			wg.Done()
			results[i] = BulkResult{Err: err}
		}
	}
	wg.Wait()

	return results, nil
}
