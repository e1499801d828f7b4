// workers/job_queue.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrQueueClosed = errors.New("job queue closed")

// Job is a unit of background work. Run receives a context bounded by the queue's job timeout.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobQueue runs jobs on a fixed pool of workers. Dispatch never waits for a job to run:
// when the buffer is full the job gets its own goroutine instead of being dropped.
type JobQueue struct {
	jobs    chan Job
	workers int
	timeout time.Duration
	log     *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewJobQueue(size, workers int, timeout time.Duration, log *zap.Logger) *JobQueue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &JobQueue{
		jobs:    make(chan Job, size),
		workers: workers,
		timeout: timeout,
		log:     log.Named("jobs"),
		baseCtx: context.Background(),
	}
}

// Start launches the workers. Jobs keep running after ctx is cancelled; use Stop to drain.
func (q *JobQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.baseCtx = context.WithoutCancel(ctx)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	q.log.Info("job queue started", zap.Int("workers", q.workers), zap.Int("buffer", cap(q.jobs)))
}

func (q *JobQueue) work(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.execute(job, id)
	}
}

func (q *JobQueue) Dispatch(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
	}

	q.log.Warn("job queue full, running job on overflow goroutine", zap.String("job", job.Name()))
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.execute(job, -1)
	}()
	return nil
}

func (q *JobQueue) execute(job Job, worker int) {
	ctx, cancel := context.WithTimeout(q.baseCtx, q.timeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return job.Run(ctx)
	}()

	fields := []zap.Field{
		zap.String("job", job.Name()),
		zap.Int("worker", worker),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		q.log.Error("job failed", append(fields, zap.Error(err))...)
		return
	}
	q.log.Debug("job done", fields...)
}

// Stop refuses new jobs and waits for queued and running ones until ctx expires.
func (q *JobQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
		if !q.started {
			// nobody will drain the buffer otherwise
			q.started = true
			q.wg.Add(1)
			go q.work(0)
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.log.Info("job queue drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job queue drain: %w", ctx.Err())
	}
}
