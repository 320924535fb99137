package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bgtask/internal/executor"
	"bgtask/internal/lifecycle"
	"bgtask/internal/position"
	"bgtask/internal/queue"
	"bgtask/internal/task"
)

// ErrActionsUnavailable is returned by write paths on a read-only service.
var ErrActionsUnavailable = errors.New("task actions unavailable")

// TaskReader abstracts task persistence interactions needed for API queries.
type TaskReader interface {
	position.Source
	List(ctx context.Context, filter queue.Filter) ([]*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	Stats(ctx context.Context) (map[task.State]int, error)
}

// TaskService exposes task queries and actions returning API DTOs.
type TaskService struct {
	store     TaskReader
	lifecycle *lifecycle.Service
	executor  executor.Executor
}

// ServiceOption enables write paths on a TaskService.
type ServiceOption func(*TaskService)

// WithLifecycle enables Create and Fail.
func WithLifecycle(svc *lifecycle.Service) ServiceOption {
	return func(s *TaskService) { s.lifecycle = svc }
}

// WithExecutor lets Create submit jobs.
func WithExecutor(exec executor.Executor) ServiceOption {
	return func(s *TaskService) { s.executor = exec }
}

// NewTaskService constructs a TaskService around the provided reader.
func NewTaskService(store TaskReader, opts ...ServiceOption) *TaskService {
	if store == nil {
		return nil
	}
	s := &TaskService{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns tasks matching filter with queue positions filled in.
func (s *TaskService) List(ctx context.Context, filter queue.Filter) ([]Task, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	tasks, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := position.Annotate(ctx, s.store, tasks); err != nil {
		return nil, err
	}
	return FromTasks(tasks), nil
}

// Describe fetches a single task. A missing task yields (nil, nil).
func (s *TaskService) Describe(ctx context.Context, id string) (*Task, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	t, err := s.store.Get(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := position.Annotate(ctx, s.store, []*task.Task{t}); err != nil {
		return nil, err
	}
	dto := FromTask(t)
	return &dto, nil
}

// Stats returns task counts keyed by state name.
func (s *TaskService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeStats(stats), nil
}

// Create creates a task as described by req and returns it.
func (s *TaskService) Create(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	if s == nil || s.lifecycle == nil {
		return nil, ErrActionsUnavailable
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("task name is required")
	}
	h, err := s.lifecycle.Create(ctx, req.Namespace, req.Name, req.ActedOn.ToRef())
	if err != nil {
		return nil, err
	}
	switch {
	case strings.TrimSpace(req.Job) != "":
		if s.executor == nil {
			return nil, fmt.Errorf("submit %s: %w", req.Job, ErrActionsUnavailable)
		}
		job := executor.Job{Name: req.Job, TaskID: h.ID(), Payload: req.Payload}
		if err := executor.QueueAndSubmit(ctx, s.lifecycle, s.executor, job); err != nil {
			return nil, err
		}
	case req.Queue:
		if _, err := h.Queue(ctx); err != nil {
			return nil, err
		}
	}
	return s.Describe(ctx, h.ID())
}

// Fail fails task id with reason.
func (s *TaskService) Fail(ctx context.Context, id string, reason error) error {
	if s == nil || s.lifecycle == nil {
		return ErrActionsUnavailable
	}
	_, err := s.lifecycle.Fail(ctx, id, reason)
	return err
}
