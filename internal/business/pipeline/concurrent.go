package pipeline

import (
	"context"
	"sync"

	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

// DefaultWorkers is used when ProcessConcurrent is given a non-positive worker count.
const DefaultWorkers = 5

// ProcessConcurrent processes records with bounded concurrency. The result matches ProcessAll:
// offers keep input order. When ctx is canceled, records not yet started are reported as
// failures carrying ctx.Err().
func (p *Pipeline) ProcessConcurrent(ctx context.Context, raws []model.RawRecord, workers int) BatchResult {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(raws) {
		workers = len(raws)
	}

	outcomes := make([]outcome, len(raws))
	started := make([]bool, len(raws))
	jobs := make(chan int)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range jobs {
			offer, err := p.ProcessOne(raws[idx])
			outcomes[idx] = outcome{offer: offer, err: err}
		}
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}

dispatch:
	for i := range raws {
		select {
		case <-ctx.Done():
			break dispatch
		default:
		}
		select {
		case jobs <- i:
			started[i] = true
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	for i := range raws {
		if !started[i] {
			outcomes[i] = outcome{err: ctx.Err()}
		}
	}
	return partition(raws, outcomes)
}
