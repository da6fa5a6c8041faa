package worker

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Pool runs queued jobs on a fixed number of workers. Jobs of different
// users run in parallel; the files of one job run in order.
type Pool struct {
	workers int
	queue   *Queue
	orch    *Orchestrator
	wg      sync.WaitGroup
}

func NewPool(workers int, q *Queue, orch *Orchestrator) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers, queue: q, orch: orch}
}

func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, idx int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case user := <-p.queue.Chan():
			p.handle(ctx, idx, user)
		}
	}
}

func (p *Pool) handle(ctx context.Context, idx int, user string) {
	p.queue.Dequeued(user)
	summary, err := p.orch.Run(ctx, user)
	switch {
	case err == nil:
		log.Printf("[Worker %d] job %s for %s: %d/%d converted in %s",
			idx, summary.JobID, user, summary.Succeeded, summary.Total, summary.Duration)
	case errors.Is(err, ErrAllFailed):
		log.Printf("[Worker %d] job %s for %s: all %d file(s) failed", idx, summary.JobID, user, summary.Total)
	default:
		log.Printf("[Worker %d] job for %s: %v", idx, user, err)
	}
}

// Drain waits for running jobs to finish or for ctx to expire.
func (p *Pool) Drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
}
