package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"bgtask/internal/logging"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("executor closed")

// Pool runs functions on a fixed set of goroutines fed by a bounded queue.
type Pool struct {
	mu     sync.RWMutex
	closed bool
	work   chan func(context.Context)
	wg     sync.WaitGroup
	ctx    context.Context
	logger *slog.Logger
}

// NewPool starts workers goroutines with room for queueSize pending items.
func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pool{
		work:   make(chan func(context.Context), queueSize),
		ctx:    context.Background(),
		logger: logging.NewComponentLogger(logger, "pool"),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

// Go schedules fn. It blocks while the queue is full until ctx is done.
// fn runs with a context detached from ctx, so request-scoped callers may
// return immediately.
func (p *Pool) Go(ctx context.Context, fn func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.work <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued work to drain.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.work)
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for fn := range p.work {
		p.run(fn)
	}
}

func (p *Pool) run(fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(p.logger, "pool worker recovered from panic", "pool_panic",
				logging.Any("panic", r),
			)
		}
	}()
	fn(p.ctx)
}

var (
	sharedOnce sync.Once
	sharedPool *Pool
)

// Dispatch runs fn on a process-wide pool created on first use. Work still
// queued when the process exits is lost.
func Dispatch(ctx context.Context, fn func(context.Context)) error {
	sharedOnce.Do(func() {
		sharedPool = NewPool(defaultWorkers, defaultQueueSize, nil)
	})
	return sharedPool.Go(ctx, fn)
}

// Local is the in-process Executor backed by a Pool.
type Local struct {
	pool   *Pool
	runner *Runner
	logger *slog.Logger

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// NewLocal builds an Executor running jobs on its own pool.
func NewLocal(runner *Runner, workers, queueSize int, logger *slog.Logger) *Local {
	l := newLocal(runner, logger)
	l.pool = NewPool(workers, queueSize, logger)
	return l
}

// NewShared builds an Executor that runs jobs through Dispatch. Close waits
// only for this executor's jobs and leaves the shared pool running.
func NewShared(runner *Runner, logger *slog.Logger) *Local {
	return newLocal(runner, logger)
}

func newLocal(runner *Runner, logger *slog.Logger) *Local {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Local{
		runner: runner,
		logger: logging.NewComponentLogger(logger, "executor"),
	}
}

func (l *Local) Submit(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	l.inflight.Add(1)
	run := func(workCtx context.Context) {
		defer l.inflight.Done()
		if err := l.runner.Run(workCtx, job); err != nil {
			logging.ErrorWithContext(l.logger, "job failed", "job_failed",
				logging.String(logging.FieldTaskID, job.TaskID),
				logging.String(logging.FieldTaskName, job.Name),
				logging.Error(err),
			)
		}
	}
	var err error
	if l.pool != nil {
		err = l.pool.Go(ctx, run)
	} else {
		err = Dispatch(ctx, run)
	}
	if err != nil {
		l.inflight.Done()
	}
	return err
}

// Close stops accepting jobs and waits for submitted ones to finish.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if l.pool != nil {
		return l.pool.Close()
	}
	l.inflight.Wait()
	return nil
}
