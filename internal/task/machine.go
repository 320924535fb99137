package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op names a state machine operation.
type Op string

const (
	OpQueue              Op = "queue"
	OpStart              Op = "start"
	OpFail               Op = "fail"
	OpSucceed            Op = "succeed"
	OpFinish             Op = "finish"
	OpAddSuccessfulSteps Op = "add_successful_steps"
	OpStepsFailed        Op = "steps_failed"
	OpSetStepsToComplete Op = "set_steps_to_complete"
)

type rule struct {
	allowed []State
	noop    []State
}

var nonTerminal = []State{StateNotStarted, StateQueued, StateRunning}

// transitions is the single source of truth for which operations may run
// from which states.
var transitions = map[Op]rule{
	OpQueue:              {allowed: []State{StateNotStarted}},
	OpStart:              {allowed: []State{StateNotStarted, StateQueued}, noop: []State{StateRunning}},
	OpFail:               {allowed: []State{StateQueued, StateRunning}},
	OpSucceed:            {allowed: []State{StateRunning}},
	OpFinish:             {allowed: []State{StateRunning}},
	OpAddSuccessfulSteps: {allowed: nonTerminal},
	OpStepsFailed:        {allowed: nonTerminal},
	OpSetStepsToComplete: {allowed: nonTerminal},
}

// AllowedStates returns the states from which op may run.
func AllowedStates(op Op) []State {
	r, ok := transitions[op]
	if !ok {
		return nil
	}
	cp := make([]State, len(r.allowed))
	copy(cp, r.allowed)
	return cp
}

// Check reports whether op must be applied (true), silently skipped (false,
// nil), or rejected with an IllegalTransitionError.
func (t *Task) Check(op Op) (bool, error) {
	r, ok := transitions[op]
	if !ok {
		return false, fmt.Errorf("unknown operation %q", op)
	}
	for _, state := range r.noop {
		if t.State == state {
			return false, nil
		}
	}
	for _, state := range r.allowed {
		if t.State == state {
			return true, nil
		}
	}
	return false, &IllegalTransitionError{TaskID: t.ID, Op: op, State: t.State, Allowed: AllowedStates(op)}
}

// StepFailure describes a batch of failed steps reported by a task body.
type StepFailure struct {
	Count      int
	Identifier string
	Err        error
}

// Queue moves a not_started task into the queue.
func (t *Task) Queue(now time.Time) error {
	if _, err := t.Check(OpQueue); err != nil {
		return err
	}
	stamp := t.stamp(now)
	t.State = StateQueued
	t.QueuedAt = &stamp
	return nil
}

// Start marks the task running. Starting an already running task is a no-op
// and reports false.
func (t *Task) Start(now time.Time) (bool, error) {
	apply, err := t.Check(OpStart)
	if err != nil || !apply {
		return false, err
	}
	stamp := t.stamp(now)
	t.State = StateRunning
	t.StartedAt = &stamp
	return true, nil
}

// Fail terminates the task and records cause as an error entry.
func (t *Task) Fail(now time.Time, cause error) error {
	if _, err := t.Check(OpFail); err != nil {
		return err
	}
	stamp := t.stamp(now)
	message, traceback := describeError(cause)
	t.State = StateFailed
	t.CompletedAt = &stamp
	t.Errors = append(t.Errors, ErrorRecord{
		Datetime:     stamp,
		ErrorMessage: message,
		Traceback:    traceback,
	})
	return nil
}

// Succeed terminates the task successfully, clamping completed steps to the
// configured total.
func (t *Task) Succeed(now time.Time, result json.RawMessage) error {
	if _, err := t.Check(OpSucceed); err != nil {
		return err
	}
	stamp := t.stamp(now)
	t.State = StateSuccess
	if t.StepsToComplete != nil {
		t.StepsCompleted = IntPtr(*t.StepsToComplete)
	}
	t.CompletedAt = &stamp
	t.Result = result
	return nil
}

// Finish terminates the task with the state chosen by Resolve.
func (t *Task) Finish(now time.Time) error {
	if _, err := t.Check(OpFinish); err != nil {
		return err
	}
	stamp := t.stamp(now)
	t.State = t.Resolve()
	t.CompletedAt = &stamp
	return nil
}

// Resolve returns the terminal state Finish would pick right now.
func (t *Task) Resolve() State {
	switch {
	case len(t.Errors) == 0:
		return StateSuccess
	case t.StepsToComplete == nil:
		return StateSuccess
	case t.NumFailedSteps() == *t.StepsToComplete:
		return StateFailed
	default:
		return StatePartialSuccess
	}
}

// SetStepsToComplete configures progress tracking with total steps and resets
// the completed count.
func (t *Task) SetStepsToComplete(total int) error {
	if _, err := t.Check(OpSetStepsToComplete); err != nil {
		return err
	}
	if total < 0 {
		return fmt.Errorf("%w: total %d", ErrInvalidStepCount, total)
	}
	t.StepsToComplete = IntPtr(total)
	t.StepsCompleted = IntPtr(0)
	return nil
}

// AddSuccessfulSteps advances the completed counter by n.
func (t *Task) AddSuccessfulSteps(n int) error {
	if _, err := t.Check(OpAddSuccessfulSteps); err != nil {
		return err
	}
	if err := t.advanceSteps(n); err != nil {
		return err
	}
	return nil
}

// StepsFailed advances the completed counter and records the failure.
func (t *Task) StepsFailed(now time.Time, failure StepFailure) error {
	if _, err := t.Check(OpStepsFailed); err != nil {
		return err
	}
	if err := t.advanceSteps(failure.Count); err != nil {
		return err
	}
	message, traceback := describeError(failure.Err)
	t.Errors = append(t.Errors, ErrorRecord{
		Datetime:        now.UTC().Truncate(time.Microsecond),
		ErrorMessage:    message,
		Traceback:       traceback,
		NumFailedSteps:  IntPtr(failure.Count),
		StepsIdentifier: failure.Identifier,
	})
	return nil
}

// ShouldAutoFinish reports whether step accounting has reached the total on a
// running task.
func (t *Task) ShouldAutoFinish() bool {
	return t.State == StateRunning && t.StepsComplete()
}

func (t *Task) advanceSteps(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: delta %d", ErrInvalidStepCount, n)
	}
	if t.StepsToComplete == nil || t.StepsCompleted == nil {
		return fmt.Errorf("task %s: %w", t.ID, ErrStepsNotConfigured)
	}
	t.StepsCompleted = IntPtr(*t.StepsCompleted + n)
	return nil
}

// stamp returns now unless an earlier lifecycle timestamp is not before it,
// in which case it returns one microsecond past that timestamp.
func (t *Task) stamp(now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	for _, prev := range []*time.Time{t.QueuedAt, t.StartedAt, t.CompletedAt} {
		if prev != nil && !now.After(*prev) {
			now = prev.Add(time.Microsecond)
		}
	}
	return now
}
