package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"bgtask/internal/api"
	"bgtask/internal/config"
	"bgtask/internal/events"
	"bgtask/internal/executor"
	"bgtask/internal/lifecycle"
	"bgtask/internal/logging"
	"bgtask/internal/queue"
)

// Daemon owns the task store, executor, and API server for one process.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store

	publisher events.Publisher
	lifecycle *lifecycle.Service
	registry  *executor.Registry
	runner    *executor.Runner
	executor  executor.Executor
	worker    *executor.Worker
	tasks     *api.TaskService
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Option customizes daemon construction.
type Option func(*Daemon)

// WithRegistry replaces the builtin job registry.
func WithRegistry(r *executor.Registry) Option {
	return func(d *Daemon) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithPublisher overrides the publisher built from cfg.Events.
func WithPublisher(p events.Publisher) Option {
	return func(d *Daemon) {
		if p != nil {
			d.publisher = p
		}
	}
}

// New constructs a daemon with initialized dependencies. The daemon takes
// ownership of store and closes it in Close.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		lockPath: cfg.LockPath(),
	}
	d.lock = flock.New(d.lockPath)
	for _, opt := range opts {
		opt(d)
	}
	if d.publisher == nil {
		d.publisher = events.NewPublisher(cfg)
	}
	if d.registry == nil {
		d.registry = executor.NewRegistry()
		if err := executor.RegisterBuiltins(d.registry); err != nil {
			return nil, fmt.Errorf("register builtin jobs: %w", err)
		}
	}

	d.lifecycle = lifecycle.NewService(store,
		lifecycle.WithLogger(logger),
		lifecycle.WithPublisher(d.publisher),
	)
	d.runner = executor.NewRunner(d.lifecycle, d.registry, logger)
	exec, err := executor.New(cfg, d.runner, logger)
	if err != nil {
		return nil, err
	}
	d.executor = exec
	if cfg.Executor.Kind == config.ExecutorAsynq {
		d.worker = executor.NewWorker(cfg.Executor.RedisAddr, cfg.Executor.AsynqQueue, cfg.Executor.Workers, d.runner, logger)
	}
	d.tasks = api.NewTaskService(store, api.WithLifecycle(d.lifecycle), api.WithExecutor(d.executor))
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the asynq worker when configured,
// and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another bgtask daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	fail := func(err error) error {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if d.worker != nil {
		if err := d.worker.Start(); err != nil {
			return fail(fmt.Errorf("start asynq worker: %w", err))
		}
	}
	if err := d.api.start(runCtx); err != nil {
		if d.worker != nil {
			d.worker.Shutdown()
		}
		return fail(err)
	}

	d.cancel = cancel
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("bgtask daemon started",
		logging.String("lock", d.lockPath),
		logging.String("executor", d.executorKind()),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops serving and releases the daemon lock. Jobs already handed to
// the executor keep running until Close.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if d.worker != nil {
		d.worker.Shutdown()
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("bgtask daemon stopped")
}

// Close stops the daemon, drains the executor, and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	d.closeOnce.Do(func() {
		if d.executor != nil {
			errs = append(errs, d.executor.Close())
		}
		if d.publisher != nil {
			errs = append(errs, d.publisher.Close())
		}
		if d.store != nil {
			errs = append(errs, d.store.Close())
		}
	})
	return errors.Join(errs...)
}

// Lifecycle exposes the task lifecycle service.
func (d *Daemon) Lifecycle() *lifecycle.Service {
	return d.lifecycle
}

// Tasks exposes the API task service.
func (d *Daemon) Tasks() *api.TaskService {
	return d.tasks
}

// Executor exposes the job executor.
func (d *Daemon) Executor() executor.Executor {
	return d.executor
}

// APIAddress returns the bound API address, or "" when not serving.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Executor:     d.executorKind(),
		Bodies:       d.registry.Names(),
		Store: api.StoreStatus{
			Driver:   string(d.store.Dialect()),
			Location: d.store.Location(),
		},
	}
	if status.Running {
		d.mu.Lock()
		status.StartedAt = d.startedAt.Format(time.RFC3339)
		d.mu.Unlock()
	}
	if version, err := d.store.SchemaVersion(ctx); err == nil {
		status.Store.SchemaVersion = version
	}
	counts, err := d.tasks.Stats(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "task stats unavailable", "task_stats_failed", logging.Error(err))
		counts = api.MergeStats(nil)
	}
	status.Counts = counts
	return status
}

func (d *Daemon) executorKind() string {
	if d.cfg.Executor.Kind == "" {
		return config.ExecutorPool
	}
	return d.cfg.Executor.Kind
}
