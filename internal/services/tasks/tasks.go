// Package tasks runs fire-and-forget background work on a small pool of
// goroutines.
//
// Go Pattern: Goroutines and channels are Go's concurrency primitives.
// A buffered channel acts as the job queue, N worker goroutines drain it,
// and handlers submit without blocking. Jobs here are best-effort by
// contract: a failure is logged and dropped, never retried and never
// surfaced to the request that submitted it. That is exactly what the
// callers need (cache-hit counters, temp-file sweeps), so the runner has
// no result channel and no error return on the job type.
package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Job is a named unit of background work. The name only exists for logs.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner manages the worker pool.
type Runner struct {
	jobs    chan Job
	workers int

	// Go Pattern: sync.WaitGroup tracks running goroutines; Stop blocks
	// on wg.Wait() until every worker has drained and exited.
	wg sync.WaitGroup

	// Guards closed so Submit can never send on a channel Stop has
	// already closed.
	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner creates a task runner with the given worker count and queue
// capacity.
func NewRunner(workers, queueSize int) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		jobs:    make(chan Job, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines.
func (r *Runner) Start() {
	log.Printf("🚀 Starting %d background task workers", r.workers)
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop drains the queue and waits for all workers to finish. Submissions
// are refused from the moment Stop begins.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()

	log.Println("⏹️  Stopping task workers...")
	r.wg.Wait()
	r.cancel()
	log.Println("✅ All task workers stopped")
}

// Submit queues a job without blocking. A full queue drops the job, which
// is acceptable for every task this runner carries. A stopped runner
// refuses the job instead of panicking on the closed channel.
func (r *Runner) Submit(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("task runner stopped, dropped %q", job.Name)
	}

	select {
	case r.jobs <- job:
		return nil
	default:
		return fmt.Errorf("task queue is full, dropped %q", job.Name)
	}
}

// QueueSize returns the current number of queued jobs.
func (r *Runner) QueueSize() int {
	return len(r.jobs)
}

// worker reads jobs from the channel until it is closed.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	for job := range r.jobs {
		r.runOne(id, job)
	}
}

// runOne executes a single job, containing both errors and panics.
func (r *Runner) runOne(id int, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("❌ Worker %d: task %q panicked: %v", id, job.Name, rec)
		}
	}()

	if err := job.Run(r.ctx); err != nil {
		log.Printf("⚠️  Worker %d: task %q failed: %v", id, job.Name, err)
	}
}
