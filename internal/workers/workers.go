package workers

import (
	"context"
	"sync"
)

type Workers struct {
	workers []Worker
}

// New creates a Workers aggregate over the given workers.
func New(ws ...Worker) *Workers {
	return &Workers{workers: ws}
}

// Run starts every worker in its own goroutine and blocks until all of them
// have returned. Cancel ctx to stop them.
func (w *Workers) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, worker := range w.workers {
		wg.Add(1)
		go func(worker Worker) {
			defer wg.Done()
			worker.Run(ctx)
		}(worker)
	}
	wg.Wait()
}
