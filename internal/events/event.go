package events

import (
	"time"

	"bgtask/internal/task"
)

// Type identifies a state change. The values double as log event_type fields.
type Type string

const (
	TypeQueued    Type = "task_queued"
	TypeStarted   Type = "task_started"
	TypeFailed    Type = "task_failed"
	TypeSucceeded Type = "task_succeeded"
	TypeFinished  Type = "task_finished"
)

// Event describes a committed task transition.
type Event struct {
	Type      Type       `json:"type"`
	TaskID    string     `json:"task_id"`
	Namespace string     `json:"namespace"`
	Name      string     `json:"name"`
	State     task.State `json:"state"`
	At        time.Time  `json:"at"`
	Message   string     `json:"message,omitempty"`
}

// FromTask builds an event of typ from the task's current state.
func FromTask(typ Type, t *task.Task, at time.Time) Event {
	ev := Event{
		Type:      typ,
		TaskID:    t.ID,
		Namespace: t.Namespace,
		Name:      t.Name,
		State:     t.State,
		At:        at,
	}
	if typ == TypeFailed && len(t.Errors) > 0 {
		ev.Message = t.Errors[len(t.Errors)-1].ErrorMessage
	}
	return ev
}
