package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bgtask/internal/api"
	"bgtask/internal/config"
	"bgtask/internal/events"
	"bgtask/internal/executor"
	"bgtask/internal/lifecycle"
	"bgtask/internal/queue"
)

// taskBackend is what read and create commands need, served either by the
// daemon API or by the local store.
type taskBackend interface {
	Name() string
	List(ctx context.Context, filter queue.Filter) ([]api.Task, error)
	Describe(ctx context.Context, id string) (*api.Task, error)
	Stats(ctx context.Context) (map[string]int, error)
	Create(ctx context.Context, req api.CreateTaskRequest) (*api.Task, error)
	FailTasks(ctx context.Context, ids []string, reason string) (api.FailTasksResult, error)
}

type daemonBackend struct {
	client *api.Client
}

func (b *daemonBackend) Name() string { return "daemon" }

func (b *daemonBackend) List(ctx context.Context, filter queue.Filter) ([]api.Task, error) {
	return b.client.ListTasks(ctx, filter)
}

func (b *daemonBackend) Describe(ctx context.Context, id string) (*api.Task, error) {
	dto, err := b.client.Task(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	return dto, err
}

func (b *daemonBackend) Stats(ctx context.Context) (map[string]int, error) {
	status, err := b.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Counts, nil
}

func (b *daemonBackend) Create(ctx context.Context, req api.CreateTaskRequest) (*api.Task, error) {
	return b.client.CreateTask(ctx, req)
}

func (b *daemonBackend) FailTasks(ctx context.Context, ids []string, reason string) (api.FailTasksResult, error) {
	return b.client.FailTasks(ctx, api.FailTasksRequest{IDs: ids, Reason: reason})
}

// localBackend opens the store in-process. With the pool executor, jobs
// submitted through it run on the process-wide shared pool and Drain waits
// for them, so submit blocks until they finish.
type localBackend struct {
	store     *queue.Store
	publisher events.Publisher
	lifecycle *lifecycle.Service
	executor  executor.Executor
	tasks     *api.TaskService
}

func openLocalBackend(cfg *config.Config, logger *slog.Logger) (*localBackend, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	publisher := events.NewPublisher(cfg)
	svc := lifecycle.NewService(store, lifecycle.WithLogger(logger), lifecycle.WithPublisher(publisher))

	registry := executor.NewRegistry()
	if err := executor.RegisterBuiltins(registry); err != nil {
		store.Close()
		return nil, err
	}
	runner := executor.NewRunner(svc, registry, logger)
	exec, err := localExecutor(cfg, runner, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &localBackend{
		store:     store,
		publisher: publisher,
		lifecycle: svc,
		executor:  exec,
		tasks:     api.NewTaskService(store, api.WithLifecycle(svc), api.WithExecutor(exec)),
	}, nil
}

// localExecutor uses the shared pool for in-process jobs; without a daemon
// there is no long-lived pool to size from config.
func localExecutor(cfg *config.Config, runner *executor.Runner, logger *slog.Logger) (executor.Executor, error) {
	if cfg.Executor.Kind == config.ExecutorPool || cfg.Executor.Kind == "" {
		return executor.NewShared(runner, logger), nil
	}
	return executor.New(cfg, runner, logger)
}

func (b *localBackend) Name() string { return "store" }

func (b *localBackend) List(ctx context.Context, filter queue.Filter) ([]api.Task, error) {
	return b.tasks.List(ctx, filter)
}

func (b *localBackend) Describe(ctx context.Context, id string) (*api.Task, error) {
	return b.tasks.Describe(ctx, id)
}

func (b *localBackend) Stats(ctx context.Context) (map[string]int, error) {
	return b.tasks.Stats(ctx)
}

func (b *localBackend) Create(ctx context.Context, req api.CreateTaskRequest) (*api.Task, error) {
	return b.tasks.Create(ctx, req)
}

func (b *localBackend) FailTasks(ctx context.Context, ids []string, reason string) (api.FailTasksResult, error) {
	return api.FailTasksByID(ctx, b.tasks, ids, reason)
}

func (b *localBackend) Close() error {
	return errors.Join(b.executor.Close(), b.publisher.Close(), b.store.Close())
}

// Drain waits for jobs submitted through this backend to finish.
func (b *localBackend) Drain() error {
	return b.executor.Close()
}
