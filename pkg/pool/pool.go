package pool

// A small fixed-size worker pool for embarrassingly-parallel batches:
// submit N independent pure computations, block until all complete.
// Results land in submission order because each job writes its own
// index; aggregation happens in the caller after the barrier.

import(
	"sync"
)

type Pool struct {
	nWorkers int
}

// New returns a pool that runs up to n jobs concurrently. A nil pool,
// or n < 2, degrades to synchronous in-line execution.
func New(n int) *Pool {
	if n < 2 {
		return nil
	}
	return &Pool{nWorkers: n}
}

func (p *Pool)Workers() int {
	if p == nil {
		return 1
	}
	return p.nWorkers
}

// Map invokes fn(i) for i in [0,n). Blocks until every invocation has
// returned. fn must be side-effect-free apart from writing its own
// result slot.
func (p *Pool)Map(n int, fn func(i int)) {
	if p == nil || p.nWorkers < 2 || n < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	jobsChan := make(chan int, n)

	nWorkers := p.nWorkers
	if nWorkers > n {
		nWorkers = n
	}
	for i := 0; i < nWorkers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			for job := range jobsChan {
				fn(job)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobsChan <- i
	}

	close(jobsChan)
	wg.Wait()
}
