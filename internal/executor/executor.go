package executor

import (
	"context"
	"fmt"
	"log/slog"

	"bgtask/internal/config"
	"bgtask/internal/lifecycle"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

// Executor accepts jobs for background execution.
type Executor interface {
	Submit(ctx context.Context, job Job) error
	Close() error
}

// New builds the executor selected by cfg.Executor.Kind. For asynq this is
// only the submitting side; the daemon runs a Worker separately.
func New(cfg *config.Config, runner *Runner, logger *slog.Logger) (Executor, error) {
	switch cfg.Executor.Kind {
	case config.ExecutorPool, "":
		return NewLocal(runner, cfg.Executor.Workers, cfg.Executor.QueueSize, logger), nil
	case config.ExecutorAsynq:
		return NewAsynq(cfg.Executor.RedisAddr, cfg.Executor.AsynqQueue), nil
	default:
		return nil, fmt.Errorf("unsupported executor kind %q", cfg.Executor.Kind)
	}
}

// QueueAndSubmit queues the job's task and hands the job to exec. If
// submission fails the task is failed with the submission error so it does
// not sit in the queue forever.
func QueueAndSubmit(ctx context.Context, svc *lifecycle.Service, exec Executor, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	if _, err := svc.Queue(ctx, job.TaskID); err != nil {
		return fmt.Errorf("queue task %s: %w", job.TaskID, err)
	}
	if err := exec.Submit(ctx, job); err != nil {
		submitErr := fmt.Errorf("submit job: %w", err)
		if _, ferr := svc.Fail(context.WithoutCancel(ctx), job.TaskID, submitErr); ferr != nil {
			return fmt.Errorf("%w (and failing task: %v)", submitErr, ferr)
		}
		return submitErr
	}
	return nil
}
