// Package position computes best-effort queue positions for queued tasks.
//
// A task's position is the number of same-key tasks queued strictly before
// it. If a task of the same key queued later than it has already left the
// queue, dispatch evidently overtook it and its position is reported as 0.
package position

import (
	"context"
	"fmt"

	"bgtask/internal/task"
)

// Source answers the two queries the calculator needs. *queue.Store
// implements it.
type Source interface {
	MostRecentlyUnqueued(ctx context.Context, key task.Key) (*task.Task, error)
	QueuedInOrder(ctx context.Context, keys []task.Key) (map[task.Key][]*task.Task, error)
}

// Annotate sets PositionInQueue on every queued task in tasks. Other tasks are
// left with a nil position.
func Annotate(ctx context.Context, src Source, tasks []*task.Task) error {
	var keys []task.Key
	seen := make(map[task.Key]struct{})
	for _, t := range tasks {
		if t == nil {
			continue
		}
		t.PositionInQueue = nil
		if t.State != task.StateQueued {
			continue
		}
		key := t.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}

	markers := make(map[task.Key]*task.Task, len(keys))
	for _, key := range keys {
		marker, err := src.MostRecentlyUnqueued(ctx, key)
		if err != nil {
			return fmt.Errorf("queue position marker: %w", err)
		}
		markers[key] = marker
	}
	queued, err := src.QueuedInOrder(ctx, keys)
	if err != nil {
		return fmt.Errorf("queue position: %w", err)
	}

	for _, t := range tasks {
		if t == nil || t.State != task.StateQueued {
			continue
		}
		pos := Of(t, markers[t.Key()], queued[t.Key()])
		t.PositionInQueue = &pos
	}
	return nil
}

// Of computes the position of queued task t given the key's most recently
// unqueued task (may be nil) and its queued tasks.
func Of(t *task.Task, marker *task.Task, queued []*task.Task) int {
	if t.QueuedAt == nil {
		return 0
	}
	if marker != nil && marker.QueuedAt != nil && marker.QueuedAt.After(*t.QueuedAt) {
		return 0
	}
	pos := 0
	for _, other := range queued {
		if other.ID == t.ID || other.QueuedAt == nil {
			continue
		}
		if other.QueuedAt.Before(*t.QueuedAt) {
			pos++
		}
	}
	return pos
}
