package lifecycle_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bgtask/internal/events"
	"bgtask/internal/lifecycle"
	"bgtask/internal/queue"
	"bgtask/internal/task"
	"bgtask/internal/testsupport"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func newService(t *testing.T, opts ...lifecycle.Option) (*lifecycle.Service, *queue.Store, *recordingPublisher) {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	pub := &recordingPublisher{}
	opts = append([]lifecycle.Option{lifecycle.WithPublisher(pub)}, opts...)
	return lifecycle.NewService(store, opts...), store, pub
}

func mustCreate(t *testing.T, svc *lifecycle.Service, name string) *lifecycle.Handle {
	t.Helper()
	h, err := svc.Create(context.Background(), "ns", name, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return h
}

func mustLoad(t *testing.T, h *lifecycle.Handle) *task.Task {
	t.Helper()
	tk, err := h.Task(context.Background())
	if err != nil {
		t.Fatalf("load task: %v", err)
	}
	return tk
}

func equalTypes(got []events.Type, want ...events.Type) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRoundTripOrdersTimestamps(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, _, pub := newService(t, lifecycle.WithClock(func() time.Time { return fixed }))
	ctx := context.Background()
	h := mustCreate(t, svc, "export")

	for _, step := range []func(context.Context) (*task.Task, error){h.Queue, h.Start, h.Finish} {
		if _, err := step(ctx); err != nil {
			t.Fatalf("transition failed: %v", err)
		}
	}

	tk := mustLoad(t, h)
	if tk.State != task.StateSuccess {
		t.Fatalf("expected success, got %s", tk.State)
	}
	if !tk.QueuedAt.Equal(fixed) {
		t.Fatalf("queued_at %v, want %v", tk.QueuedAt, fixed)
	}
	if !tk.QueuedAt.Before(*tk.StartedAt) || !tk.StartedAt.Before(*tk.CompletedAt) {
		t.Fatalf("timestamps out of order: %v %v %v", tk.QueuedAt, tk.StartedAt, tk.CompletedAt)
	}
	if got := pub.types(); !equalTypes(got, events.TypeQueued, events.TypeStarted, events.TypeFinished) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestSucceedOnNotStartedIsIllegal(t *testing.T) {
	svc, _, pub := newService(t)
	h := mustCreate(t, svc, "export")

	_, err := h.Succeed(context.Background(), nil)
	if !errors.Is(err, task.ErrIllegalStateTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	want := "task " + h.ID() + " cannot execute succeed as in state not_started not one of [running]"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if tk := mustLoad(t, h); tk.State != task.StateNotStarted {
		t.Fatalf("state changed to %s", tk.State)
	}
	if len(pub.types()) != 0 {
		t.Fatal("rejected operation must not emit events")
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	svc, _, pub := newService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "export")

	first, err := h.Start(ctx)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second, err := h.Start(ctx)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !second.StartedAt.Equal(*first.StartedAt) {
		t.Fatalf("started_at changed: %v -> %v", first.StartedAt, second.StartedAt)
	}
	if got := pub.types(); !equalTypes(got, events.TypeStarted) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestAutoFinishPolicy(t *testing.T) {
	tests := []struct {
		name      string
		failed    int
		succeeded int
		want      task.State
	}{
		{name: "all failed", failed: 3, want: task.StateFailed},
		{name: "some failed", failed: 1, succeeded: 2, want: task.StatePartialSuccess},
		{name: "none failed", succeeded: 3, want: task.StateSuccess},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, pub := newService(t)
			ctx := context.Background()
			h := mustCreate(t, svc, "import")
			if _, err := h.Start(ctx); err != nil {
				t.Fatalf("Start: %v", err)
			}
			if _, err := h.SetStepsToComplete(ctx, 3); err != nil {
				t.Fatalf("SetStepsToComplete: %v", err)
			}
			for i := 0; i < tc.failed; i++ {
				if _, err := h.StepsFailed(ctx, 1, "row", errors.New("bad row")); err != nil {
					t.Fatalf("StepsFailed: %v", err)
				}
			}
			if tc.succeeded > 0 {
				if _, err := h.AddSuccessfulSteps(ctx, tc.succeeded); err != nil {
					t.Fatalf("AddSuccessfulSteps: %v", err)
				}
			}
			tk := mustLoad(t, h)
			if tk.State != tc.want {
				t.Fatalf("state %s, want %s", tk.State, tc.want)
			}
			if tk.CompletedAt == nil {
				t.Fatal("completed_at not set by auto-finish")
			}
			if got := pub.types(); !equalTypes(got, events.TypeStarted, events.TypeFinished) {
				t.Fatalf("unexpected events %v", got)
			}
		})
	}
}

func TestStepsBeforeStartDoNotFinish(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "fanout")

	if _, err := h.SetStepsToComplete(ctx, 2); err != nil {
		t.Fatalf("SetStepsToComplete: %v", err)
	}
	if _, err := h.Queue(ctx); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	// A subtask can report before the parent task is marked running.
	tk, err := h.AddSuccessfulSteps(ctx, 2)
	if err != nil {
		t.Fatalf("AddSuccessfulSteps: %v", err)
	}
	if tk.State != task.StateQueued || *tk.StepsCompleted != 2 {
		t.Fatalf("unexpected task after early steps: %s %d", tk.State, *tk.StepsCompleted)
	}

	if _, err := h.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tk, err = h.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if tk.State != task.StateSuccess {
		t.Fatalf("expected success, got %s", tk.State)
	}
}

func TestTerminalTaskRejectsStepAccounting(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "export")
	if _, err := h.SetStepsToComplete(ctx, 1); err != nil {
		t.Fatalf("SetStepsToComplete: %v", err)
	}
	if _, err := h.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := h.AddSuccessfulSteps(ctx, 1); err != nil {
		t.Fatalf("AddSuccessfulSteps: %v", err)
	}
	if _, err := h.AddSuccessfulSteps(ctx, 1); !errors.Is(err, task.ErrIllegalStateTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if _, err := h.StepsFailed(ctx, 1, "", nil); !errors.Is(err, task.ErrIllegalStateTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if tk := mustLoad(t, h); *tk.StepsCompleted != 1 {
		t.Fatalf("terminal task mutated: %d steps", *tk.StepsCompleted)
	}
}

func TestLockJoinsOperationsInOneCommit(t *testing.T) {
	svc, store, pub := newService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "export")

	final, err := h.Lock(ctx, func(ctx context.Context, locked *task.Task) error {
		if _, err := h.Start(ctx); err != nil {
			return err
		}
		if _, err := h.SetStepsToComplete(ctx, 1); err != nil {
			return err
		}
		if _, err := h.AddSuccessfulSteps(ctx, 1); err != nil {
			return err
		}
		if locked.State != task.StateSuccess {
			t.Errorf("nested operations did not reach the locked record: %s", locked.State)
		}
		inside, err := h.Task(ctx)
		if err != nil || inside != locked {
			t.Errorf("Task inside lock should return the locked record")
		}
		if len(pub.types()) != 0 {
			t.Errorf("events emitted before commit")
		}
		stored, err := store.Get(context.Background(), h.ID())
		if err == nil && stored.State != task.StateNotStarted {
			t.Errorf("uncommitted state visible: %s", stored.State)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if final.State != task.StateSuccess {
		t.Fatalf("expected success, got %s", final.State)
	}
	if got := pub.types(); !equalTypes(got, events.TypeStarted, events.TypeFinished) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestLockRollsBackOnError(t *testing.T) {
	svc, _, pub := newService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "export")

	boom := errors.New("boom")
	_, err := h.Lock(ctx, func(ctx context.Context, _ *task.Task) error {
		if _, err := h.Queue(ctx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if tk := mustLoad(t, h); tk.State != task.StateNotStarted || tk.QueuedAt != nil {
		t.Fatalf("rolled back queue leaked: %v", tk)
	}
	if len(pub.types()) != 0 {
		t.Fatal("rolled back transition emitted an event")
	}
}

func TestFailsIfErrorReturnsOriginalError(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "export")
	if _, err := h.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cause := errors.New("x")
	err := h.FailsIfError(ctx, func(context.Context) error { return cause })
	if err != cause {
		t.Fatalf("expected original error, got %v", err)
	}
	tk := mustLoad(t, h)
	if tk.State != task.StateFailed {
		t.Fatalf("expected failed, got %s", tk.State)
	}
	if len(tk.Errors) != 1 || !strings.Contains(tk.Errors[0].ErrorMessage, "x") {
		t.Fatalf("unexpected errors %+v", tk.Errors)
	}
	if tk.Errors[0].Traceback == "" {
		t.Fatal("expected traceback on error record")
	}
}

func TestFailsIfErrorRepanics(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "export")
	if _, err := h.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Fatalf("expected re-panic with original value, got %v", r)
			}
		}()
		_ = h.FailsIfError(ctx, func(context.Context) error { panic("kaboom") })
	}()

	tk := mustLoad(t, h)
	if tk.State != task.StateFailed || len(tk.Errors) != 1 {
		t.Fatalf("panic not recorded: %s %+v", tk.State, tk.Errors)
	}
	if !strings.Contains(tk.Errors[0].ErrorMessage, "kaboom") {
		t.Fatalf("unexpected message %q", tk.Errors[0].ErrorMessage)
	}
}

func TestFailsIfErrorJoinsBookkeepingError(t *testing.T) {
	svc, _, _ := newService(t)
	h := mustCreate(t, svc, "export")

	cause := errors.New("x")
	err := h.FailsIfError(context.Background(), func(context.Context) error { return cause })
	if !errors.Is(err, cause) || !errors.Is(err, task.ErrIllegalStateTransition) {
		t.Fatalf("expected joined error, got %v", err)
	}
}

func TestRunsSingleStepCountsOutcomes(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "batch")
	if _, err := h.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := h.SetStepsToComplete(ctx, 3); err != nil {
		t.Fatalf("SetStepsToComplete: %v", err)
	}

	bodies := []lifecycle.Body{
		func(context.Context) error { return nil },
		func(context.Context) error { return errors.New("row 2 invalid") },
		func(context.Context) error { panic("row 3 exploded") },
	}
	for _, body := range bodies {
		if err := h.RunsSingleStep(ctx, body); err != nil {
			t.Fatalf("RunsSingleStep: %v", err)
		}
	}

	tk := mustLoad(t, h)
	if tk.State != task.StatePartialSuccess {
		t.Fatalf("expected partial_success, got %s", tk.State)
	}
	if tk.NumFailedSteps() != 2 || len(tk.Errors) != 2 {
		t.Fatalf("unexpected failure accounting %d %+v", tk.NumFailedSteps(), tk.Errors)
	}
}

func TestFinishesWrapper(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	ok := mustCreate(t, svc, "ok")
	bad := mustCreate(t, svc, "bad")
	for _, h := range []*lifecycle.Handle{ok, bad} {
		if _, err := h.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}

	if err := ok.Finishes(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Finishes ok: %v", err)
	}
	if err := bad.Finishes(ctx, func(context.Context) error { return errors.New("nope") }); err != nil {
		t.Fatalf("Finishes bad: %v", err)
	}
	if tk := mustLoad(t, ok); tk.State != task.StateSuccess {
		t.Fatalf("expected success, got %s", tk.State)
	}
	if tk := mustLoad(t, bad); tk.State != task.StateFailed {
		t.Fatalf("expected failed, got %s", tk.State)
	}
}

func TestConcurrentAddSuccessfulSteps(t *testing.T) {
	svc, _, pub := newService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "parallel")

	const steps = 24
	if _, err := h.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := h.SetStepsToComplete(ctx, steps); err != nil {
		t.Fatalf("SetStepsToComplete: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, steps)
	for i := 0; i < steps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.AddSuccessfulSteps(ctx, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AddSuccessfulSteps: %v", err)
		}
	}

	tk := mustLoad(t, h)
	if tk.State != task.StateSuccess || *tk.StepsCompleted != steps {
		t.Fatalf("unexpected final task %s %d", tk.State, *tk.StepsCompleted)
	}
	finished := 0
	for _, typ := range pub.types() {
		if typ == events.TypeFinished {
			finished++
		}
	}
	if finished != 1 {
		t.Fatalf("expected one finish event, got %d", finished)
	}
}

func TestSucceedUsesResultEncoder(t *testing.T) {
	encoder := func(result any) (json.RawMessage, error) {
		return json.RawMessage(`{"wrapped":true}`), nil
	}
	svc, _, _ := newService(t, lifecycle.WithResultEncoder(encoder))
	ctx := context.Background()
	h := mustCreate(t, svc, "export")
	if _, err := h.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := h.Succeed(ctx, struct{ Rows int }{Rows: 3}); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	if tk := mustLoad(t, h); string(tk.Result) != `{"wrapped":true}` {
		t.Fatalf("unexpected result %s", tk.Result)
	}

	failing := func(any) (json.RawMessage, error) { return nil, errors.New("cannot encode") }
	svc2, _, _ := newService(t, lifecycle.WithResultEncoder(failing))
	h2 := mustCreate(t, svc2, "export")
	if _, err := h2.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := h2.Succeed(ctx, 1); err == nil {
		t.Fatal("expected encoder error")
	}
	if tk := mustLoad(t, h2); tk.State != task.StateRunning {
		t.Fatalf("encoder failure changed state to %s", tk.State)
	}
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	svc, _, pub := newService(t)
	pub.err = errors.New("redis down")
	h := mustCreate(t, svc, "export")
	if _, err := h.Queue(context.Background()); err != nil {
		t.Fatalf("Queue should succeed despite publish failure: %v", err)
	}
}

func TestMissingTask(t *testing.T) {
	svc, _, _ := newService(t)
	if _, err := svc.Start(context.Background(), "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
