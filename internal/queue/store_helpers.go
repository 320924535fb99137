package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"bgtask/internal/task"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

var taskColumnList = []string{
	"id",
	"namespace",
	"name",
	"state",
	"steps_to_complete",
	"steps_completed",
	"queued_at",
	"started_at",
	"completed_at",
	"result_json",
	"errors_json",
	"acted_on_type",
	"acted_on_id",
	"created_at",
	"updated_at",
}

var taskColumns = strings.Join(taskColumnList, ", ")

func scanTask(scanner interface{ Scan(dest ...any) error }) (*task.Task, error) {
	var (
		id              string
		namespace       string
		name            string
		stateStr        string
		stepsToComplete sql.NullInt64
		stepsCompleted  sql.NullInt64
		queuedRaw       sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		resultJSON      sql.NullString
		errorsJSON      sql.NullString
		actedOnType     sql.NullString
		actedOnID       sql.NullString
		createdRaw      string
		updatedRaw      string
	)

	if err := scanner.Scan(
		&id,
		&namespace,
		&name,
		&stateStr,
		&stepsToComplete,
		&stepsCompleted,
		&queuedRaw,
		&startedRaw,
		&completedRaw,
		&resultJSON,
		&errorsJSON,
		&actedOnType,
		&actedOnID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	t := &task.Task{
		ID:        id,
		Namespace: namespace,
		Name:      name,
		State:     task.State(stateStr),
		Errors:    []task.ErrorRecord{},
	}
	if stepsToComplete.Valid {
		t.StepsToComplete = task.IntPtr(int(stepsToComplete.Int64))
	}
	if stepsCompleted.Valid {
		t.StepsCompleted = task.IntPtr(int(stepsCompleted.Int64))
	}
	t.QueuedAt = parseNullableTime(queuedRaw)
	t.StartedAt = parseNullableTime(startedRaw)
	t.CompletedAt = parseNullableTime(completedRaw)
	if resultJSON.Valid && resultJSON.String != "" {
		t.Result = json.RawMessage(resultJSON.String)
	}
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := sonic.UnmarshalString(errorsJSON.String, &t.Errors); err != nil {
			return nil, fmt.Errorf("decode errors for task %s: %w", id, err)
		}
	}
	if actedOnType.Valid || actedOnID.Valid {
		t.ActedOn = &task.Ref{Type: actedOnType.String, ID: actedOnID.String}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		t.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		t.UpdatedAt = updated
	}
	return t, nil
}

// taskArgs returns values in taskColumnList order.
func taskArgs(t *task.Task) ([]any, error) {
	errorsJSON := "[]"
	if len(t.Errors) > 0 {
		encoded, err := sonic.MarshalString(t.Errors)
		if err != nil {
			return nil, fmt.Errorf("encode errors: %w", err)
		}
		errorsJSON = encoded
	}
	var actedOnType, actedOnID any
	if t.ActedOn != nil {
		actedOnType = t.ActedOn.Type
		actedOnID = t.ActedOn.ID
	}
	var result any
	if len(t.Result) > 0 {
		result = string(t.Result)
	}
	return []any{
		t.ID,
		t.Namespace,
		t.Name,
		string(t.State),
		nullableInt(t.StepsToComplete),
		nullableInt(t.StepsCompleted),
		nullableTime(t.QueuedAt),
		nullableTime(t.StartedAt),
		nullableTime(t.CompletedAt),
		result,
		errorsJSON,
		actedOnType,
		actedOnID,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	}, nil
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return int64(*value)
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
