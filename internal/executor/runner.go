package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bgtask/internal/lifecycle"
	"bgtask/internal/logging"
	"bgtask/internal/task"
)

// ErrUnknownBody is recorded on tasks whose job names no registered body.
var ErrUnknownBody = errors.New("no body registered")

// Runner executes jobs against the lifecycle service. Every backend funnels
// into Runner.Run.
type Runner struct {
	svc      *lifecycle.Service
	registry *Registry
	logger   *slog.Logger
}

// NewRunner builds a runner.
func NewRunner(svc *lifecycle.Service, registry *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		svc:      svc,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "executor"),
	}
}

// Run executes job. Body errors and panics are logged, not returned; the
// returned error covers only failures to look up or record the job.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	ctx = logging.WithTaskID(ctx, job.TaskID)
	logger := logging.WithContext(ctx, r.logger).With(logging.String(logging.FieldTaskName, job.Name))
	h := r.svc.Handle(job.TaskID)

	body, ok := r.registry.Lookup(job.Name)
	if !ok {
		cause := fmt.Errorf("%w for %q", ErrUnknownBody, job.Name)
		logging.ErrorWithContext(logger, "job has no registered body", "job_unknown_body",
			logging.Error(cause),
			logging.String(logging.FieldErrorHint, "register the body before submitting jobs for it"),
		)
		_, err := h.Lock(ctx, func(ctx context.Context, _ *task.Task) error {
			if _, err := h.Start(ctx); err != nil {
				return err
			}
			_, err := h.Fail(ctx, cause)
			return err
		})
		if err != nil {
			return fmt.Errorf("fail task %s: %w", job.TaskID, err)
		}
		return cause
	}

	logger.Debug("job started")
	if err := r.invoke(ctx, body, h, job.Payload); err != nil {
		logging.ErrorWithContext(logger, "task body returned error", "task_body_error",
			logging.Error(err),
		)
	}

	t, err := h.Task(ctx)
	if err != nil {
		return fmt.Errorf("reload task %s: %w", job.TaskID, err)
	}
	if !t.IsTerminal() {
		logging.WarnWithContext(logger, "task body returned before task finished", "task_left_incomplete",
			logging.String(logging.FieldState, string(t.State)),
			logging.String(logging.FieldErrorHint, "finish the task from the body, e.g. with Handle.Finishes"),
			logging.String(logging.FieldImpact, "task stays "+string(t.State)+" until reaped"),
		)
		return nil
	}
	logger.Debug("job completed", logging.String(logging.FieldState, string(t.State)))
	return nil
}

func (r *Runner) invoke(ctx context.Context, body Body, h *lifecycle.Handle, payload []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = task.PanicError(rec)
		}
	}()
	return body(ctx, h, payload)
}
