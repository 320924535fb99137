package lifecycle

import (
	"context"
	"errors"

	"bgtask/internal/task"
)

// Body is the unit of work run by the scoped wrappers.
type Body func(ctx context.Context) error

// Handle binds lifecycle operations to one task id. Task bodies receive a
// Handle rather than the record so every mutation goes through the guard.
type Handle struct {
	svc *Service
	id  string
}

// ID returns the task id.
func (h *Handle) ID() string {
	return h.id
}

// Task loads the current record.
func (h *Handle) Task(ctx context.Context) (*task.Task, error) {
	return h.svc.Load(ctx, h.id)
}

// Lock runs fn with the task locked. See Service.Lock.
func (h *Handle) Lock(ctx context.Context, fn func(ctx context.Context, t *task.Task) error) (*task.Task, error) {
	return h.svc.Lock(ctx, h.id, fn)
}

func (h *Handle) Queue(ctx context.Context) (*task.Task, error) {
	return h.svc.Queue(ctx, h.id)
}

func (h *Handle) Start(ctx context.Context) (*task.Task, error) {
	return h.svc.Start(ctx, h.id)
}

func (h *Handle) Fail(ctx context.Context, cause error) (*task.Task, error) {
	return h.svc.Fail(ctx, h.id, cause)
}

func (h *Handle) Succeed(ctx context.Context, result any) (*task.Task, error) {
	return h.svc.Succeed(ctx, h.id, result)
}

func (h *Handle) Finish(ctx context.Context) (*task.Task, error) {
	return h.svc.Finish(ctx, h.id)
}

func (h *Handle) SetStepsToComplete(ctx context.Context, total int) (*task.Task, error) {
	return h.svc.SetStepsToComplete(ctx, h.id, total)
}

func (h *Handle) AddSuccessfulSteps(ctx context.Context, n int) (*task.Task, error) {
	return h.svc.AddSuccessfulSteps(ctx, h.id, n)
}

// StepsFailed records n failed steps. identifier and cause are optional.
func (h *Handle) StepsFailed(ctx context.Context, n int, identifier string, cause error) (*task.Task, error) {
	return h.svc.StepsFailed(ctx, h.id, task.StepFailure{Count: n, Identifier: identifier, Err: cause})
}

// RunsSingleStep runs body as one step: an error or panic counts as a failed
// step, anything else as a successful one. Only bookkeeping errors are
// returned.
func (h *Handle) RunsSingleStep(ctx context.Context, body Body) error {
	if _, err := invoke(ctx, body); err != nil {
		_, serr := h.StepsFailed(ctx, 1, "", task.NewExecutionError(err))
		return serr
	}
	_, err := h.AddSuccessfulSteps(ctx, 1)
	return err
}

// Finishes runs body and then fails or succeeds the task depending on its
// outcome. Only bookkeeping errors are returned.
func (h *Handle) Finishes(ctx context.Context, body Body) error {
	if _, err := invoke(ctx, body); err != nil {
		_, ferr := h.Fail(ctx, task.NewExecutionError(err))
		return ferr
	}
	_, err := h.Succeed(ctx, nil)
	return err
}

// FailsIfError runs body and fails the task if it errors. The body's error is
// returned, joined with any bookkeeping error. A panic is recorded and then
// re-raised.
func (h *Handle) FailsIfError(ctx context.Context, body Body) error {
	recovered, err := invoke(ctx, body)
	if err == nil {
		return nil
	}
	_, ferr := h.Fail(ctx, task.NewExecutionError(err))
	if recovered != nil {
		panic(recovered)
	}
	if ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}

// invoke runs body and returns its error. A panic is recovered into an
// ExecutionError and its raw value returned as recovered.
func invoke(ctx context.Context, body Body) (recovered any, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered = r
			err = task.PanicError(r)
		}
	}()
	return nil, body(ctx)
}
