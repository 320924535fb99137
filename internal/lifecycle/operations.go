package lifecycle

import (
	"context"
	"fmt"

	"bgtask/internal/events"
	"bgtask/internal/logging"
	"bgtask/internal/task"
)

// Queue moves a not_started task into the queue.
func (s *Service) Queue(ctx context.Context, id string) (*task.Task, error) {
	return s.guard(ctx, id, func(ctx context.Context, t *task.Task) error {
		if err := t.Queue(s.now()); err != nil {
			return err
		}
		record(ctx, events.TypeQueued, t)
		return nil
	})
}

// Start marks the task running. Starting a running task is a no-op so that
// independent subtasks may each call it.
func (s *Service) Start(ctx context.Context, id string) (*task.Task, error) {
	return s.guard(ctx, id, func(ctx context.Context, t *task.Task) error {
		started, err := t.Start(s.now())
		if err != nil {
			return err
		}
		if started {
			record(ctx, events.TypeStarted, t)
		}
		return nil
	})
}

// Fail terminates the task and records cause.
func (s *Service) Fail(ctx context.Context, id string, cause error) (*task.Task, error) {
	return s.guard(ctx, id, func(ctx context.Context, t *task.Task) error {
		if err := t.Fail(s.now(), cause); err != nil {
			return err
		}
		record(ctx, events.TypeFailed, t)
		return nil
	})
}

// Succeed terminates the task successfully with the encoded result.
func (s *Service) Succeed(ctx context.Context, id string, result any) (*task.Task, error) {
	encoded, err := s.encoder(result)
	if err != nil {
		return nil, fmt.Errorf("encode result for task %s: %w", id, err)
	}
	return s.guard(ctx, id, func(ctx context.Context, t *task.Task) error {
		if err := t.Succeed(s.now(), encoded); err != nil {
			return err
		}
		record(ctx, events.TypeSucceeded, t)
		return nil
	})
}

// Finish terminates the task with the state picked by the finish policy.
func (s *Service) Finish(ctx context.Context, id string) (*task.Task, error) {
	return s.guard(ctx, id, func(ctx context.Context, t *task.Task) error {
		if err := t.Finish(s.now()); err != nil {
			return err
		}
		record(ctx, events.TypeFinished, t)
		return nil
	})
}

// SetStepsToComplete configures progress tracking and resets the completed
// count.
func (s *Service) SetStepsToComplete(ctx context.Context, id string, total int) (*task.Task, error) {
	return s.guard(ctx, id, func(ctx context.Context, t *task.Task) error {
		return t.SetStepsToComplete(total)
	})
}

// AddSuccessfulSteps advances progress by n and finishes a running task once
// every step is accounted for.
func (s *Service) AddSuccessfulSteps(ctx context.Context, id string, n int) (*task.Task, error) {
	return s.guard(ctx, id, func(ctx context.Context, t *task.Task) error {
		if err := t.AddSuccessfulSteps(n); err != nil {
			return err
		}
		s.logProgress(ctx, t)
		return s.autoFinish(ctx, t)
	})
}

// StepsFailed advances progress by failure.Count, records the failure, and
// finishes a running task once every step is accounted for.
func (s *Service) StepsFailed(ctx context.Context, id string, failure task.StepFailure) (*task.Task, error) {
	return s.guard(ctx, id, func(ctx context.Context, t *task.Task) error {
		if err := t.StepsFailed(s.now(), failure); err != nil {
			return err
		}
		s.logProgress(ctx, t)
		return s.autoFinish(ctx, t)
	})
}

func (s *Service) autoFinish(ctx context.Context, t *task.Task) error {
	if !t.ShouldAutoFinish() {
		return nil
	}
	_, err := s.Finish(ctx, t.ID)
	return err
}

func (s *Service) logProgress(ctx context.Context, t *task.Task) {
	if t.StepsToComplete == nil || t.StepsCompleted == nil {
		return
	}
	logging.WithContext(ctx, s.logger).Debug("task progress",
		logging.String(logging.FieldTaskName, t.Name),
		logging.Int("steps_completed", *t.StepsCompleted),
		logging.Int("steps_to_complete", *t.StepsToComplete),
		logging.Int("steps_failed", t.NumFailedSteps()),
	)
}
