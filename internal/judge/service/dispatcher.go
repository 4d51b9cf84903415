package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"
)

const defaultQueueCapacity = 1024

// Processor runs one job to completion.
type Processor interface {
	Process(ctx context.Context, job Job)
}

// Dispatcher is a single-worker FIFO job queue. Jobs run one at a time in
// arrival order; the next job starts only after the previous one returned.
type Dispatcher struct {
	proc  Processor
	queue chan Job

	exec    sync.Mutex
	busy    atomic.Bool
	started atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewDispatcher creates a dispatcher with room for capacity waiting jobs.
func NewDispatcher(proc Processor, capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &Dispatcher{
		proc:  proc,
		queue: make(chan Job, capacity),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Enqueue appends job without blocking.
func (d *Dispatcher) Enqueue(job Job) error {
	select {
	case <-d.stop:
		return appErr.New(appErr.ServiceUnavailable).WithMessage("dispatcher is stopped")
	default:
	}
	select {
	case d.queue <- job:
		return nil
	default:
		return appErr.New(appErr.JudgeQueueFull)
	}
}

// Start launches the worker goroutine. Subsequent calls are no-ops.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go d.loop(ctx)
}

// Stop stops accepting jobs and waits for the in-flight job to finish.
// Jobs still waiting in the queue are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	if d.started.Load() {
		<-d.done
	}
}

// Busy reports whether a job is executing.
func (d *Dispatcher) Busy() bool {
	return d.busy.Load()
}

// Pending returns the number of queued jobs.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case job := <-d.queue:
			d.execute(ctx, job)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, job Job) {
	d.exec.Lock()
	d.busy.Store(true)
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "job panicked", zap.String("user_id", job.UserID), zap.String("panic", fmt.Sprint(r)))
		}
		d.busy.Store(false)
		d.exec.Unlock()
	}()
	d.proc.Process(ctx, job)
}
