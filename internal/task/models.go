package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle of a background task.
type State string

const (
	StateNotStarted     State = "not_started"
	StateQueued         State = "queued"
	StateRunning        State = "running"
	StateSuccess        State = "success"
	StatePartialSuccess State = "partial_success"
	StateFailed         State = "failed"
)

var allStates = []State{
	StateNotStarted,
	StateQueued,
	StateRunning,
	StateSuccess,
	StatePartialSuccess,
	StateFailed,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

var terminalStates = map[State]struct{}{
	StateSuccess:        {},
	StatePartialSuccess: {},
	StateFailed:         {},
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// TerminalStates returns the states a task can never leave.
func TerminalStates() []State {
	return []State{StateSuccess, StatePartialSuccess, StateFailed}
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

func (s State) String() string { return string(s) }

// IsTerminal reports whether no further transitions are permitted from s.
func (s State) IsTerminal() bool {
	_, ok := terminalStates[s]
	return ok
}

// Key groups tasks into a logical queue. Many tasks share a key.
type Key struct {
	Namespace string
	Name      string
}

func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

// Ref is a weak reference to an external object a task acts on. It is stored
// and exposed, never resolved.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ErrorRecord is one entry of a task's append-only error log.
type ErrorRecord struct {
	Datetime        time.Time `json:"datetime"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Traceback       string    `json:"traceback,omitempty"`
	NumFailedSteps  *int      `json:"num_failed_steps,omitempty"`
	StepsIdentifier string    `json:"steps_identifier,omitempty"`
}

// Task is a persisted background task instance.
type Task struct {
	ID              string
	Namespace       string
	Name            string
	State           State
	StepsToComplete *int
	StepsCompleted  *int
	QueuedAt        *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Result          json.RawMessage
	Errors          []ErrorRecord
	ActedOn         *Ref
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// PositionInQueue is derived by the position calculator and never persisted.
	PositionInQueue *int
}

// New returns a not_started task with a fresh identifier.
func New(namespace, name string, ref *Ref) *Task {
	now := Now()
	t := &Task{
		ID:        uuid.NewString(),
		Namespace: strings.TrimSpace(namespace),
		Name:      strings.TrimSpace(name),
		State:     StateNotStarted,
		Errors:    []ErrorRecord{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ref != nil {
		cp := *ref
		t.ActedOn = &cp
	}
	return t
}

// Now returns the current UTC time truncated to the precision every store
// backend can round-trip.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (t *Task) String() string {
	if t == nil {
		return "Task <nil>"
	}
	return fmt.Sprintf("Task %s %s", t.ID, t.State)
}

// Key returns the (namespace, name) queue key.
func (t *Task) Key() Key {
	return Key{Namespace: t.Namespace, Name: t.Name}
}

// NumFailedSteps sums the failed step counts across all error records.
func (t *Task) NumFailedSteps() int {
	total := 0
	for _, rec := range t.Errors {
		if rec.NumFailedSteps != nil {
			total += *rec.NumFailedSteps
		}
	}
	return total
}

// Incomplete reports whether the task has not begun or is still running.
func (t *Task) Incomplete() bool {
	return t.State == StateNotStarted || t.State == StateRunning
}

// IsTerminal reports whether the task reached a final state.
func (t *Task) IsTerminal() bool {
	return t.State.IsTerminal()
}

// StepsComplete reports whether both counters are set and the completed
// count reached the total.
func (t *Task) StepsComplete() bool {
	return t.StepsToComplete != nil && t.StepsCompleted != nil && *t.StepsCompleted >= *t.StepsToComplete
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.StepsToComplete = cloneInt(t.StepsToComplete)
	cp.StepsCompleted = cloneInt(t.StepsCompleted)
	cp.QueuedAt = cloneTime(t.QueuedAt)
	cp.StartedAt = cloneTime(t.StartedAt)
	cp.CompletedAt = cloneTime(t.CompletedAt)
	cp.PositionInQueue = cloneInt(t.PositionInQueue)
	if t.Result != nil {
		cp.Result = append(json.RawMessage(nil), t.Result...)
	}
	cp.Errors = make([]ErrorRecord, len(t.Errors))
	for i, rec := range t.Errors {
		rec.NumFailedSteps = cloneInt(rec.NumFailedSteps)
		cp.Errors[i] = rec
	}
	if t.ActedOn != nil {
		ref := *t.ActedOn
		cp.ActedOn = &ref
	}
	return &cp
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// IntPtr is a small helper for optional counters.
func IntPtr(v int) *int { return &v }
