package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueFull is returned by Do when every worker is busy and the queue has
// no room left.
var ErrQueueFull = errors.New("worker queue is full")

// ErrStopped is returned by Do after Stop.
var ErrStopped = errors.New("worker pool is stopped")

// Job is a single unit of work run by the pool.
type Job struct {
	Ctx  context.Context
	Run  func(ctx context.Context) error
	done chan error
}

// WorkerPool manages a pool of workers and a queue of jobs.
type WorkerPool struct {
	JobQueue   chan Job
	MaxWorkers int

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates a new WorkerPool.
func New(maxWorkers, queueSize int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
	}
}

// Start creates and starts the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 1; i <= wp.MaxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Do queues fn and waits for it to finish. It never blocks on a full queue.
func (wp *WorkerPool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	job := Job{Ctx: ctx, Run: fn, done: make(chan error, 1)}

	wp.mu.RLock()
	if wp.stopped {
		wp.mu.RUnlock()
		return ErrStopped
	}
	select {
	case wp.JobQueue <- job:
		wp.mu.RUnlock()
	default:
		wp.mu.RUnlock()
		return ErrQueueFull
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is the number of queued jobs not yet picked up.
func (wp *WorkerPool) Pending() int {
	return len(wp.JobQueue)
}

// Stop closes the queue and waits for running jobs.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.JobQueue)
	wp.mu.Unlock()
	wp.wg.Wait()
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for job := range wp.JobQueue {
		if err := job.Ctx.Err(); err != nil {
			job.done <- err
			continue
		}
		job.done <- job.Run(job.Ctx)
	}
}
