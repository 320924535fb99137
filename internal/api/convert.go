package api

import (
	"time"

	"bgtask/internal/task"
)

// FromTask converts a task record to its API representation.
func FromTask(t *task.Task) Task {
	if t == nil {
		return Task{}
	}

	snap := t.Snapshot()
	dto := Task{
		ID:              snap.ID,
		Namespace:       snap.Namespace,
		Name:            snap.Name,
		State:           string(snap.State),
		Incomplete:      t.Incomplete(),
		PositionInQueue: snap.PositionInQueue,
		QueuedAt:        formatTime(snap.QueuedAt),
		StartedAt:       formatTime(snap.StartedAt),
		CompletedAt:     formatTime(snap.CompletedAt),
		Result:          snap.Result,
		Errors:          make([]TaskError, 0, len(snap.Errors)),
	}
	if snap.StepsToComplete != nil && snap.StepsCompleted != nil {
		progress := TaskProgress{
			Completed: *snap.StepsCompleted,
			Total:     *snap.StepsToComplete,
			Failed:    t.NumFailedSteps(),
		}
		if progress.Total > 0 {
			progress.Percent = float64(progress.Completed) * 100 / float64(progress.Total)
		}
		dto.Progress = &progress
	}
	for _, rec := range snap.Errors {
		dto.Errors = append(dto.Errors, TaskError{
			Datetime:        rec.Datetime.UTC().Format(dateTimeFormat),
			Message:         rec.ErrorMessage,
			Traceback:       rec.Traceback,
			NumFailedSteps:  rec.NumFailedSteps,
			StepsIdentifier: rec.StepsIdentifier,
		})
	}
	if snap.ActedOn != nil {
		dto.ActedOn = &Ref{Type: snap.ActedOn.Type, ID: snap.ActedOn.ID}
	}
	if !snap.CreatedAt.IsZero() {
		dto.CreatedAt = snap.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !snap.UpdatedAt.IsZero() {
		dto.UpdatedAt = snap.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromTasks converts a slice of task records into API DTOs.
func FromTasks(tasks []*task.Task) []Task {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, FromTask(t))
	}
	return out
}

// MergeStats converts store counts into a map keyed by state name that
// always carries every state.
func MergeStats(stats map[task.State]int) map[string]int {
	out := make(map[string]int, len(task.AllStates()))
	for _, state := range task.AllStates() {
		out[string(state)] = stats[state]
	}
	return out
}

// ToRef converts the API reference back to the task model.
func (r *Ref) ToRef() *task.Ref {
	if r == nil {
		return nil
	}
	return &task.Ref{Type: r.Type, ID: r.ID}
}

func formatTime(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}
