package task

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// ErrIllegalStateTransition matches every IllegalTransitionError via errors.Is.
	ErrIllegalStateTransition = errors.New("illegal state transition")
	// ErrStepsNotConfigured is returned when step accounting runs before
	// SetStepsToComplete.
	ErrStepsNotConfigured = errors.New("steps to complete not configured")
	// ErrInvalidStepCount rejects negative step deltas and totals.
	ErrInvalidStepCount = errors.New("invalid step count")
)

// IllegalTransitionError reports an operation invoked from a state that does
// not allow it.
type IllegalTransitionError struct {
	TaskID  string
	Op      Op
	State   State
	Allowed []State
}

func (e *IllegalTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, state := range e.Allowed {
		allowed[i] = string(state)
	}
	return fmt.Sprintf("task %s cannot execute %s as in state %s not one of [%s]",
		e.TaskID, e.Op, e.State, strings.Join(allowed, ", "))
}

// Is lets errors.Is(err, ErrIllegalStateTransition) match.
func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalStateTransition
}

// ExecutionError wraps an error raised by task body code together with the
// stack captured where it was observed.
type ExecutionError struct {
	Err   error
	Stack string
}

// NewExecutionError captures the current goroutine stack. Errors that are
// already ExecutionErrors are returned unchanged.
func NewExecutionError(err error) *ExecutionError {
	if err == nil {
		return nil
	}
	var existing *ExecutionError
	if errors.As(err, &existing) {
		return existing
	}
	return &ExecutionError{Err: err, Stack: string(debug.Stack())}
}

// PanicError converts a recovered panic value into an ExecutionError. Call it
// from the deferred recover so the stack still shows the panic site.
func PanicError(recovered any) *ExecutionError {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", recovered)
	}
	return &ExecutionError{Err: err, Stack: string(debug.Stack())}
}

func (e *ExecutionError) Error() string {
	if e == nil || e.Err == nil {
		return "task execution error"
	}
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// describeError splits err into the message and traceback text stored on an
// error record.
func describeError(err error) (message, traceback string) {
	if err == nil {
		return "", ""
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return err.Error(), execErr.Stack
	}
	return err.Error(), ""
}
