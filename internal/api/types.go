package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Task describes a task in a transport-friendly format.
type Task struct {
	ID              string          `json:"id"`
	Namespace       string          `json:"namespace"`
	Name            string          `json:"name"`
	State           string          `json:"state"`
	Incomplete      bool            `json:"incomplete"`
	Progress        *TaskProgress   `json:"progress,omitempty"`
	PositionInQueue *int            `json:"positionInQueue,omitempty"`
	QueuedAt        string          `json:"queuedAt,omitempty"`
	StartedAt       string          `json:"startedAt,omitempty"`
	CompletedAt     string          `json:"completedAt,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	Errors          []TaskError     `json:"errors"`
	ActedOn         *Ref            `json:"actedOn,omitempty"`
	CreatedAt       string          `json:"createdAt,omitempty"`
	UpdatedAt       string          `json:"updatedAt,omitempty"`
}

// TaskProgress captures step accounting for tasks that configured it.
type TaskProgress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Failed    int     `json:"failed"`
	Percent   float64 `json:"percent"`
}

// TaskError mirrors one error record.
type TaskError struct {
	Datetime        string `json:"datetime"`
	Message         string `json:"message"`
	Traceback       string `json:"traceback,omitempty"`
	NumFailedSteps  *int   `json:"numFailedSteps,omitempty"`
	StepsIdentifier string `json:"stepsIdentifier,omitempty"`
}

// Ref is the entity a task acts on.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// StoreStatus describes the task database.
type StoreStatus struct {
	Driver        string `json:"driver"`
	Location      string `json:"location"`
	SchemaVersion string `json:"schemaVersion,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StartedAt    string         `json:"startedAt,omitempty"`
	LockFilePath string         `json:"lockFilePath"`
	Store        StoreStatus    `json:"store"`
	Executor     string         `json:"executor"`
	Bodies       []string       `json:"bodies"`
	Counts       map[string]int `json:"counts"`
}

// StatsResponse provides normalized task counts.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// CreateTaskRequest creates a task. With Job set the task is queued and the
// job submitted to the executor; with only Queue set it is just queued.
type CreateTaskRequest struct {
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	ActedOn   *Ref            `json:"actedOn,omitempty"`
	Queue     bool            `json:"queue,omitempty"`
	Job       string          `json:"job,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FailTasksRequest fails a set of tasks with a shared reason.
type FailTasksRequest struct {
	IDs    []string `json:"ids"`
	Reason string   `json:"reason,omitempty"`
}
