package api

import (
	"context"
	"errors"
	"strings"

	"bgtask/internal/task"
)

// TaskActionService captures the operations needed by bulk fail workflows.
type TaskActionService interface {
	Describe(ctx context.Context, id string) (*Task, error)
	Fail(ctx context.Context, id string, reason error) error
}

type FailTaskOutcome string

const (
	FailTaskUpdated         FailTaskOutcome = "failed"
	FailTaskNotFound        FailTaskOutcome = "not_found"
	FailTaskAlreadyTerminal FailTaskOutcome = "already_terminal"
	FailTaskNotStarted      FailTaskOutcome = "not_started"
)

type FailTaskResult struct {
	ID         string          `json:"id"`
	Outcome    FailTaskOutcome `json:"outcome"`
	PriorState string          `json:"priorState,omitempty"`
	WasRunning bool            `json:"wasRunning,omitempty"`
}

type FailTasksResult struct {
	UpdatedCount int              `json:"updatedCount"`
	Items        []FailTaskResult `json:"items"`
}

// FailTasksByID fails each queued or running task in ids with reason. Tasks
// that cannot be failed are reported with an outcome rather than an error.
func FailTasksByID(ctx context.Context, service TaskActionService, ids []string, reason string) (FailTasksResult, error) {
	if service == nil {
		return FailTasksResult{}, ErrActionsUnavailable
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "failed by operator"
	}
	result := FailTasksResult{Items: make([]FailTaskResult, 0, len(ids))}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		dto, err := service.Describe(ctx, id)
		if err != nil {
			return FailTasksResult{}, err
		}
		if dto == nil {
			result.Items = append(result.Items, FailTaskResult{ID: id, Outcome: FailTaskNotFound})
			continue
		}
		state, _ := task.ParseState(dto.State)
		item := FailTaskResult{ID: id, PriorState: dto.State}
		switch {
		case state.IsTerminal():
			item.Outcome = FailTaskAlreadyTerminal
		case state == task.StateNotStarted:
			item.Outcome = FailTaskNotStarted
		default:
			if err := service.Fail(ctx, id, errors.New(reason)); err != nil {
				// Lost a race with a worker finishing the task.
				if errors.Is(err, task.ErrIllegalStateTransition) {
					item.Outcome = FailTaskAlreadyTerminal
					result.Items = append(result.Items, item)
					continue
				}
				return FailTasksResult{}, err
			}
			item.Outcome = FailTaskUpdated
			item.WasRunning = state == task.StateRunning
			result.UpdatedCount++
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}
