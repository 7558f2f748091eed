package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrRunnerStopped is returned by Submit after Shutdown.
var ErrRunnerStopped = errors.New("runner is stopped")

// Job is one unit of enrichment work. ImportJobID and ItemID are set only
// for items of an import batch.
type Job struct {
	Owner       string
	BookmarkID  string
	ImportJobID string
	ItemID      string
	UseNano     bool
}

func (j Job) batched() bool {
	return j.ImportJobID != "" && j.ItemID != ""
}

// Handler processes one job. It must not return until the job is finished.
type Handler func(ctx context.Context, job Job)

// Runner executes jobs on a fixed number of workers. Submit never blocks:
// jobs wait in an unbounded in-memory queue that is lost if the process
// exits.
type Runner struct {
	size    int
	handler Handler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	once   sync.Once
	wg     sync.WaitGroup
	stopCh chan struct{}
	notify chan struct{}

	mu       sync.Mutex
	stopped  bool
	queue    []Job
	inflight int
	idle     chan struct{}

	processed atomic.Int64
	panicked  atomic.Int64
}

func NewRunner(size int, handler Handler, logger *zap.Logger) *Runner {
	if size <= 0 {
		size = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		size:    size,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Submit queues job. Workers are started on first use.
func (r *Runner) Submit(job Job) error {
	r.once.Do(r.start)

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrRunnerStopped
	}
	r.queue = append(r.queue, job)
	r.inflight++
	r.mu.Unlock()

	r.signal()
	return nil
}

func (r *Runner) start() {
	r.logger.Debug("runner started", zap.Int("workers", r.size))
	for i := 0; i < r.size; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

func (r *Runner) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	for {
		job, ok := r.next()
		if !ok {
			select {
			case <-r.notify:
				continue
			case <-r.stopCh:
				return
			}
		}
		r.process(id, job)
		r.done()
	}
}

func (r *Runner) next() (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return Job{}, false
	}
	job := r.queue[0]
	r.queue[0] = Job{}
	r.queue = r.queue[1:]
	if len(r.queue) > 0 {
		// Wake another idle worker for the rest.
		r.signal()
	}
	return job, true
}

func (r *Runner) process(id int, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panicked.Add(1)
			r.logger.Error("job panicked",
				zap.Int("worker", id),
				zap.String("bookmark_id", job.BookmarkID),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	r.handler(r.ctx, job)
	r.processed.Add(1)
}

func (r *Runner) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight--
	if r.inflight == 0 && r.idle != nil {
		close(r.idle)
		r.idle = nil
	}
}

// Wait blocks until every submitted job has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	if r.inflight == 0 {
		r.mu.Unlock()
		return nil
	}
	if r.idle == nil {
		r.idle = make(chan struct{})
	}
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is the number of jobs queued or running.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight
}

// Shutdown stops accepting jobs, waits for queued ones to drain, then stops
// the workers. If ctx ends first, running jobs see their context canceled.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	err := r.Wait(ctx)
	if err != nil {
		r.mu.Lock()
		dropped := len(r.queue)
		r.inflight -= dropped
		r.queue = nil
		if r.inflight == 0 && r.idle != nil {
			close(r.idle)
			r.idle = nil
		}
		r.mu.Unlock()
		if dropped > 0 {
			r.logger.Warn("runner dropped queued jobs", zap.Int("dropped", dropped))
		}
		r.cancel()
	}
	close(r.stopCh)
	r.wg.Wait()
	r.cancel()

	r.logger.Debug("runner stopped",
		zap.Int64("processed", r.processed.Load()),
		zap.Int64("panicked", r.panicked.Load()),
	)
	return err
}
