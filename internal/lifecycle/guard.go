package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bgtask/internal/events"
	"bgtask/internal/logging"
	"bgtask/internal/task"
)

// ErrCrossTaskLock is returned when a guarded operation on one task is called
// while the context holds another task's lock and the store cannot lock
// both at once.
var ErrCrossTaskLock = errors.New("lock held on another task")

// NestedLocker is implemented by stores that can lock a second record from
// inside WithLock without waiting on their own transaction.
type NestedLocker interface {
	NestedLocks() bool
}

// lockToken marks a context as holding the lock on one task. parent is the
// lock that was held when this one was taken.
type lockToken struct {
	id      string
	task    *task.Task
	pending []events.Event
	parent  *lockToken
}

type lockKey struct{}

func heldLock(ctx context.Context) *lockToken {
	if ctx == nil {
		return nil
	}
	tok, _ := ctx.Value(lockKey{}).(*lockToken)
	return tok
}

func lockFrom(ctx context.Context, id string) *lockToken {
	for tok := heldLock(ctx); tok != nil; tok = tok.parent {
		if tok.id == id {
			return tok
		}
	}
	return nil
}

// Lock runs fn with task id locked and saves whatever fn leaves in the
// record. Guarded operations on the same id called with the context passed
// to fn join the lock, so several operations commit atomically. An error
// from fn rolls everything back.
//
// Guarded operations on a different task inside fn take that task's lock in
// a transaction of their own and commit before fn returns; calls that reach
// back to any task already locked further out rejoin that lock. Stores that
// serialize every writer (SQLite) cannot do this, and such calls fail at
// once with ErrCrossTaskLock.
func (s *Service) Lock(ctx context.Context, id string, fn func(ctx context.Context, t *task.Task) error) (*task.Task, error) {
	return s.guard(ctx, id, fn)
}

func (s *Service) nestedLocks() bool {
	nl, ok := s.store.(NestedLocker)
	return ok && nl.NestedLocks()
}

func (s *Service) guard(ctx context.Context, id string, fn func(context.Context, *task.Task) error) (*task.Task, error) {
	if tok := lockFrom(ctx, id); tok != nil {
		if err := fn(ctx, tok.task); err != nil {
			return nil, err
		}
		return tok.task, nil
	}

	held := heldLock(ctx)
	if held != nil && !s.nestedLocks() {
		return nil, fmt.Errorf("lock task %s while holding %s: %w", id, held.id, ErrCrossTaskLock)
	}

	tok := &lockToken{id: id, parent: held}
	lockedCtx := context.WithValue(logging.WithTaskID(ctx, id), lockKey{}, tok)
	updated, err := s.store.WithLock(ctx, id, func(locked *task.Task) error {
		tok.task = locked
		tok.pending = tok.pending[:0]
		return fn(lockedCtx, locked)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, tok.pending)
	return updated, nil
}

// record queues a transition event for emission after commit.
func record(ctx context.Context, typ events.Type, t *task.Task) {
	tok := lockFrom(ctx, t.ID)
	if tok == nil {
		return
	}
	tok.pending = append(tok.pending, events.FromTask(typ, t, transitionTime(typ, t)))
}

func transitionTime(typ events.Type, t *task.Task) time.Time {
	var at *time.Time
	switch typ {
	case events.TypeQueued:
		at = t.QueuedAt
	case events.TypeStarted:
		at = t.StartedAt
	default:
		at = t.CompletedAt
	}
	if at == nil {
		return task.Now()
	}
	return *at
}

// emit logs and publishes committed transitions.
func (s *Service) emit(ctx context.Context, pending []events.Event) {
	if len(pending) == 0 {
		return
	}
	logger := logging.WithContext(ctx, s.logger)
	for _, ev := range pending {
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, string(ev.Type)),
			logging.String(logging.FieldTaskID, ev.TaskID),
			logging.String(logging.FieldTaskName, ev.Name),
			logging.String(logging.FieldNamespace, ev.Namespace),
			logging.String(logging.FieldState, string(ev.State)),
		}
		if ev.Message != "" {
			attrs = append(attrs, logging.String("error_message", ev.Message))
		}
		logger.Info(eventMessage(ev.Type), logging.Args(attrs...)...)

		if err := s.publisher.Publish(ctx, ev); err != nil {
			logging.WarnWithContext(logger, "task event publish failed", "event_publish_failed",
				logging.String(logging.FieldTaskID, ev.TaskID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.redis_addr and that redis is reachable"),
				logging.String(logging.FieldImpact, "event listeners miss this transition"),
			)
		}
	}
}

func eventMessage(typ events.Type) string {
	switch typ {
	case events.TypeQueued:
		return "task queued"
	case events.TypeStarted:
		return "task started"
	case events.TypeFailed:
		return "task failed"
	case events.TypeSucceeded:
		return "task succeeded"
	case events.TypeFinished:
		return "task finished"
	default:
		return string(typ)
	}
}
