package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is the result of a job submitted after Wait or Shutdown
var ErrPoolClosed = errors.New("worker pool closed")

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// skippedResult stands in for a job that never ran because the pool was cancelled
type skippedResult struct {
	err error
}

func (r skippedResult) GetError() error {
	return r.err
}

type indexedJob struct {
	index int
	job   Job
}

// Pool runs jobs on a fixed number of workers. Results are stored by
// submission index, so Submit never waits on a reader and Wait returns
// results in the order jobs were submitted.
type Pool struct {
	workers    int
	jobQueue   chan indexedJob
	mu         sync.Mutex
	results    []Result
	closed     bool
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a pool bound to ctx with the specified number of workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan indexedJob, workers),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker goroutines
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for item := range p.jobQueue {
		if err := p.ctx.Err(); err != nil {
			p.store(item.index, skippedResult{err: err})
			continue
		}
		p.store(item.index, item.job.Execute(p.ctx))
	}
}

func (p *Pool) store(index int, result Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[index] = result
}

// Submit queues a job. It blocks while every worker is busy and the queue is
// full; after cancellation the job is recorded as skipped instead. Submit must
// not race with Wait.
func (p *Pool) Submit(job Job) {
	p.mu.Lock()
	if p.closed {
		p.results = append(p.results, skippedResult{err: ErrPoolClosed})
		p.mu.Unlock()
		return
	}
	index := len(p.results)
	p.results = append(p.results, nil)
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		p.store(index, skippedResult{err: p.ctx.Err()})
	case p.jobQueue <- indexedJob{index: index, job: job}:
	}
}

// Wait closes the queue, waits for the workers and returns results in submission order
func (p *Pool) Wait() []Result {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.jobQueue)
	})
	p.wg.Wait()
	p.cancelFunc()

	p.mu.Lock()
	defer p.mu.Unlock()
	results := make([]Result, len(p.results))
	copy(results, p.results)
	return results
}

// Shutdown cancels queued and running jobs and waits for the workers
func (p *Pool) Shutdown() []Result {
	p.cancelFunc()
	return p.Wait()
}
