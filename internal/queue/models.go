package queue

import (
	"time"

	"bgtask/internal/task"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	States        []task.State
	Namespace     string
	Name          string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

// DatabaseHealth captures diagnostic information about the task database.
type DatabaseHealth struct {
	Driver           string
	Location         string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}

// HealthSummary describes aggregated task counts per lifecycle state.
type HealthSummary struct {
	Total          int
	NotStarted     int
	Queued         int
	Running        int
	Success        int
	PartialSuccess int
	Failed         int
}

// Active counts tasks that have not reached a terminal state.
func (h HealthSummary) Active() int {
	return h.NotStarted + h.Queued + h.Running
}
