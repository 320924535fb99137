package position_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"bgtask/internal/lifecycle"
	"bgtask/internal/position"
	"bgtask/internal/queue"
	"bgtask/internal/task"
	"bgtask/internal/testsupport"
)

// tickingClock returns strictly increasing times one millisecond apart.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func setup(t *testing.T) (*lifecycle.Service, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return lifecycle.NewService(store, lifecycle.WithClock(tickingClock())), store
}

func queued(t *testing.T, svc *lifecycle.Service, name string) *lifecycle.Handle {
	t.Helper()
	ctx := context.Background()
	h, err := svc.Create(ctx, "ns", name, nil)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	if _, err := h.Queue(ctx); err != nil {
		t.Fatalf("queue %s: %v", name, err)
	}
	return h
}

func positions(t *testing.T, store *queue.Store, handles ...*lifecycle.Handle) []*int {
	t.Helper()
	ctx := context.Background()
	tasks := make([]*task.Task, len(handles))
	for i, h := range handles {
		tk, err := store.Get(ctx, h.ID())
		if err != nil {
			t.Fatalf("get %s: %v", h.ID(), err)
		}
		tasks[i] = tk
	}
	if err := position.Annotate(ctx, store, tasks); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	out := make([]*int, len(tasks))
	for i, tk := range tasks {
		out[i] = tk.PositionInQueue
	}
	return out
}

// formatPositions renders positions as "0 1 -" with "-" for no position.
func formatPositions(got []*int) string {
	parts := make([]string, len(got))
	for i, p := range got {
		if p == nil {
			parts[i] = "-"
			continue
		}
		parts[i] = strconv.Itoa(*p)
	}
	return strings.Join(parts, " ")
}

func requirePositions(t *testing.T, got []*int, want string) {
	t.Helper()
	if s := formatPositions(got); s != want {
		t.Fatalf("positions = %q, want %q", s, want)
	}
}

func TestPositionsFollowQueueOrder(t *testing.T) {
	svc, store := setup(t)
	a := queued(t, svc, "x")
	b := queued(t, svc, "x")
	c := queued(t, svc, "x")

	requirePositions(t, positions(t, store, a, b, c), "0 1 2")

	if _, err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The running task drops out of the queue.
	requirePositions(t, positions(t, store, a, b, c), "- 0 1")
}

func TestPositionIsZeroWhenOvertaken(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	older := queued(t, svc, "x")
	d := queued(t, svc, "x")
	e := queued(t, svc, "x")

	// e is dispatched and completes before anyone looks at d.
	if _, err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.Finish(ctx); err != nil {
		t.Fatalf("finish: %v", err)
	}

	requirePositions(t, positions(t, store, older, d), "0 0")
}

func TestPositionsAreScopedByKey(t *testing.T) {
	svc, store := setup(t)
	x1 := queued(t, svc, "x")
	y1 := queued(t, svc, "y")
	x2 := queued(t, svc, "x")
	y2 := queued(t, svc, "y")

	requirePositions(t, positions(t, store, x1, y1, x2, y2), "0 0 1 1")
}

func TestAnnotateLeavesUnqueuedTasksAlone(t *testing.T) {
	svc, store := setup(t)
	h, err := svc.Create(context.Background(), "ns", "x", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	requirePositions(t, positions(t, store, h), "-")
}

type failingSource struct{}

func (failingSource) MostRecentlyUnqueued(context.Context, task.Key) (*task.Task, error) {
	return nil, errors.New("db gone")
}

func (failingSource) QueuedInOrder(context.Context, []task.Key) (map[task.Key][]*task.Task, error) {
	return nil, errors.New("db gone")
}

func TestAnnotatePropagatesSourceErrors(t *testing.T) {
	tk := task.New("ns", "x", nil)
	if err := tk.Queue(task.Now()); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := position.Annotate(context.Background(), failingSource{}, []*task.Task{tk}); err == nil {
		t.Fatal("expected source error")
	}

	// Nothing queued means the source is never consulted.
	idle := task.New("ns", "x", nil)
	if err := position.Annotate(context.Background(), failingSource{}, []*task.Task{idle}); err != nil {
		t.Fatalf("Annotate without queued tasks: %v", err)
	}
}

func TestOf(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id string, offset time.Duration) *task.Task {
		at := base.Add(offset)
		return &task.Task{ID: id, State: task.StateQueued, QueuedAt: &at}
	}
	a, b, c := mk("a", 0), mk("b", time.Second), mk("c", 2*time.Second)
	all := []*task.Task{a, b, c}

	cases := []struct {
		name   string
		target *task.Task
		marker *task.Task
		want   int
	}{
		{"head", a, nil, 0},
		{"tail", c, nil, 2},
		{"older marker", c, mk("old", -time.Second), 2},
		{"overtaken", b, mk("newer", 3*time.Second), 0},
	}
	for _, tc := range cases {
		if got := position.Of(tc.target, tc.marker, all); got != tc.want {
			t.Errorf("%s: Of = %d, want %d", tc.name, got, tc.want)
		}
	}
}
