package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/hibiken/asynq"

	"bgtask/internal/logging"
)

// TypeRunJob is the asynq task type carrying an encoded Job.
const TypeRunJob = "bgtask:run"

// Asynq submits jobs to Redis through asynq. Jobs are enqueued with the task
// id as asynq id, so a task can only be in flight once.
type Asynq struct {
	client *asynq.Client
	queue  string
}

// NewAsynq builds a client for the Redis server at addr.
func NewAsynq(addr, queue string) *Asynq {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = "default"
	}
	return &Asynq{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: addr}),
		queue:  queue,
	}
}

func (a *Asynq) Submit(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	payload, err := sonic.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	t := asynq.NewTask(TypeRunJob, payload)
	_, err = a.client.EnqueueContext(ctx, t,
		asynq.Queue(a.queue),
		asynq.TaskID(job.TaskID),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.TaskID, err)
	}
	return nil
}

func (a *Asynq) Close() error {
	return a.client.Close()
}

// Worker consumes jobs submitted by Asynq.
type Worker struct {
	server *asynq.Server
	runner *Runner
	logger *slog.Logger
}

// NewWorker builds an asynq server running jobs from queue with concurrency
// goroutines.
func NewWorker(addr, queue string, concurrency int, runner *Runner, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = "default"
	}
	if concurrency <= 0 {
		concurrency = defaultWorkers
	}
	logger = logging.NewComponentLogger(logger, "asynq")
	server := asynq.NewServer(asynq.RedisClientOpt{Addr: addr}, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      asynqLogger{logger: logger},
		LogLevel:    asynq.WarnLevel,
	})
	return &Worker{server: server, runner: runner, logger: logger}
}

// Start begins processing in background goroutines.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRunJob, w.handle)
	return w.server.Start(mux)
}

// Shutdown waits for active jobs and stops the server.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handle(ctx context.Context, t *asynq.Task) error {
	var job Job
	if err := sonic.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("decode job: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.runner.Run(ctx, job); err != nil {
		if errors.Is(err, ErrUnknownBody) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// asynqLogger routes asynq's internal logging into slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
