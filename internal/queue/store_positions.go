package queue

import (
	"context"
	"fmt"

	"bgtask/internal/task"
)

// MostRecentlyUnqueued returns the task of key that most recently left the
// queue: queued_at set, state past queued, maximum queued_at. It returns nil
// when no such task exists.
func (s *Store) MostRecentlyUnqueued(ctx context.Context, key task.Key) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM bg_tasks
        WHERE namespace = ? AND name = ? AND queued_at IS NOT NULL AND state NOT IN (?, ?)
        ORDER BY queued_at DESC, id DESC LIMIT 1`
	tasks, err := s.queryTasks(ctx, query,
		key.Namespace, key.Name, string(task.StateNotStarted), string(task.StateQueued))
	if err != nil {
		return nil, fmt.Errorf("most recently unqueued %s: %w", key, err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// QueuedInOrder returns the queued tasks of each key ordered by ascending
// queued_at.
func (s *Store) QueuedInOrder(ctx context.Context, keys []task.Key) (map[task.Key][]*task.Task, error) {
	out := make(map[task.Key][]*task.Task, len(keys))
	query := `SELECT ` + taskColumns + ` FROM bg_tasks
        WHERE namespace = ? AND name = ? AND state = ?
        ORDER BY queued_at, id`
	for _, key := range keys {
		if _, done := out[key]; done {
			continue
		}
		tasks, err := s.queryTasks(ctx, query, key.Namespace, key.Name, string(task.StateQueued))
		if err != nil {
			return nil, fmt.Errorf("queued tasks %s: %w", key, err)
		}
		out[key] = tasks
	}
	return out, nil
}
