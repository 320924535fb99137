package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"bgtask/internal/api"
	"bgtask/internal/executor"
	"bgtask/internal/lifecycle"
	"bgtask/internal/queue"
	"bgtask/internal/task"
	"bgtask/internal/testsupport"
)

type recordingExecutor struct {
	mu   sync.Mutex
	jobs []executor.Job
	err  error
}

func (e *recordingExecutor) Submit(_ context.Context, job executor.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, job)
	return nil
}

func (e *recordingExecutor) Close() error { return nil }

// tickingClock advances one millisecond per call so ordering never depends on
// wall clock resolution.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func newTaskService(t *testing.T, exec executor.Executor) (*api.TaskService, *lifecycle.Service, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	svc := lifecycle.NewService(store, lifecycle.WithClock(tickingClock()))
	opts := []api.ServiceOption{api.WithLifecycle(svc)}
	if exec != nil {
		opts = append(opts, api.WithExecutor(exec))
	}
	return api.NewTaskService(store, opts...), svc, store
}

func TestTaskServiceListIncludesPositions(t *testing.T) {
	ctx := context.Background()
	service, svc, _ := newTaskService(t, nil)

	var ids []string
	for range 3 {
		h, err := svc.Create(ctx, "media", "encode", nil)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := h.Queue(ctx); err != nil {
			t.Fatalf("queue: %v", err)
		}
		ids = append(ids, h.ID())
	}

	tasks, err := service.List(ctx, queue.Filter{States: []task.State{task.StateQueued}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("len(tasks) = %d, want 3", len(tasks))
	}
	for i, dto := range tasks {
		if dto.ID != ids[i] {
			t.Fatalf("tasks[%d].ID = %s, want %s", i, dto.ID, ids[i])
		}
		if dto.PositionInQueue == nil || *dto.PositionInQueue != i {
			t.Fatalf("tasks[%d].PositionInQueue = %v, want %d", i, dto.PositionInQueue, i)
		}
	}
}

func TestTaskServiceDescribeMissing(t *testing.T) {
	service, _, _ := newTaskService(t, nil)
	dto, err := service.Describe(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if dto != nil {
		t.Fatalf("Describe = %+v, want nil", dto)
	}
}

func TestTaskServiceStatsCoversAllStates(t *testing.T) {
	ctx := context.Background()
	service, svc, _ := newTaskService(t, nil)
	if _, err := svc.Create(ctx, "", "sample", nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	stats, err := service.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != len(task.AllStates()) {
		t.Fatalf("len(stats) = %d, want %d", len(stats), len(task.AllStates()))
	}
	if stats[string(task.StateNotStarted)] != 1 {
		t.Fatalf("not_started = %d, want 1", stats[string(task.StateNotStarted)])
	}
	if stats[string(task.StateFailed)] != 0 {
		t.Fatalf("failed = %d, want 0", stats[string(task.StateFailed)])
	}
}

func TestTaskServiceCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("not started", func(t *testing.T) {
		service, _, _ := newTaskService(t, nil)
		dto, err := service.Create(ctx, api.CreateTaskRequest{
			Namespace: "media",
			Name:      "scan",
			ActedOn:   &api.Ref{Type: "disc", ID: "42"},
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if dto.State != string(task.StateNotStarted) {
			t.Fatalf("state = %s, want not_started", dto.State)
		}
		if dto.ActedOn == nil || dto.ActedOn.ID != "42" {
			t.Fatalf("actedOn = %+v", dto.ActedOn)
		}
		if dto.PositionInQueue != nil {
			t.Fatalf("position = %d, want nil", *dto.PositionInQueue)
		}
	})

	t.Run("queued", func(t *testing.T) {
		service, _, _ := newTaskService(t, nil)
		dto, err := service.Create(ctx, api.CreateTaskRequest{Name: "scan", Queue: true})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if dto.State != string(task.StateQueued) || dto.QueuedAt == "" {
			t.Fatalf("dto = %+v, want queued with queuedAt", dto)
		}
		if dto.PositionInQueue == nil || *dto.PositionInQueue != 0 {
			t.Fatalf("position = %v, want 0", dto.PositionInQueue)
		}
	})

	t.Run("job submitted", func(t *testing.T) {
		exec := &recordingExecutor{}
		service, _, _ := newTaskService(t, exec)
		payload := json.RawMessage(`{"steps":2}`)
		dto, err := service.Create(ctx, api.CreateTaskRequest{Name: "demo", Job: executor.DemoJobName, Payload: payload})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if dto.State != string(task.StateQueued) {
			t.Fatalf("state = %s, want queued", dto.State)
		}
		if len(exec.jobs) != 1 || exec.jobs[0].TaskID != dto.ID || exec.jobs[0].Name != executor.DemoJobName {
			t.Fatalf("jobs = %+v", exec.jobs)
		}
		if string(exec.jobs[0].Payload) != string(payload) {
			t.Fatalf("payload = %s, want %s", exec.jobs[0].Payload, payload)
		}
	})

	t.Run("submit failure fails task", func(t *testing.T) {
		exec := &recordingExecutor{err: errors.New("broker down")}
		service, _, store := newTaskService(t, exec)
		if _, err := service.Create(ctx, api.CreateTaskRequest{Name: "demo", Job: executor.DemoJobName}); err == nil {
			t.Fatal("expected submit error")
		}
		failed, err := store.List(ctx, queue.Filter{States: []task.State{task.StateFailed}})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(failed) != 1 {
			t.Fatalf("failed tasks = %d, want 1", len(failed))
		}
	})

	t.Run("job without executor", func(t *testing.T) {
		service, _, _ := newTaskService(t, nil)
		_, err := service.Create(ctx, api.CreateTaskRequest{Name: "demo", Job: executor.DemoJobName})
		if !errors.Is(err, api.ErrActionsUnavailable) {
			t.Fatalf("err = %v, want ErrActionsUnavailable", err)
		}
	})

	t.Run("name required", func(t *testing.T) {
		service, _, _ := newTaskService(t, nil)
		if _, err := service.Create(ctx, api.CreateTaskRequest{Name: "  "}); err == nil {
			t.Fatal("expected error for blank name")
		}
	})
}

func TestReadOnlyTaskServiceRejectsWrites(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	service := api.NewTaskService(store)
	if _, err := service.Create(context.Background(), api.CreateTaskRequest{Name: "x"}); !errors.Is(err, api.ErrActionsUnavailable) {
		t.Fatalf("Create err = %v, want ErrActionsUnavailable", err)
	}
	if err := service.Fail(context.Background(), "x", errors.New("boom")); !errors.Is(err, api.ErrActionsUnavailable) {
		t.Fatalf("Fail err = %v, want ErrActionsUnavailable", err)
	}
}
