package task

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
)

// Snapshot is a read-only progress view of a task for reporting layers.
type Snapshot struct {
	ID              string          `json:"id"`
	Namespace       string          `json:"namespace"`
	Name            string          `json:"name"`
	State           State           `json:"state"`
	StepsToComplete *int            `json:"steps_to_complete,omitempty"`
	StepsCompleted  *int            `json:"steps_completed,omitempty"`
	QueuedAt        *time.Time      `json:"queued_at,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	Errors          []ErrorRecord   `json:"errors"`
	PositionInQueue *int            `json:"position_in_queue,omitempty"`
	ActedOn         *Ref            `json:"acted_on,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Snapshot copies the reportable fields of t.
func (t *Task) Snapshot() Snapshot {
	cp := t.Clone()
	return Snapshot{
		ID:              cp.ID,
		Namespace:       cp.Namespace,
		Name:            cp.Name,
		State:           cp.State,
		StepsToComplete: cp.StepsToComplete,
		StepsCompleted:  cp.StepsCompleted,
		QueuedAt:        cp.QueuedAt,
		StartedAt:       cp.StartedAt,
		CompletedAt:     cp.CompletedAt,
		Result:          cp.Result,
		Errors:          cp.Errors,
		PositionInQueue: cp.PositionInQueue,
		ActedOn:         cp.ActedOn,
		CreatedAt:       cp.CreatedAt,
		UpdatedAt:       cp.UpdatedAt,
	}
}

// ResultEncoder serializes a task body's result before it is stored.
type ResultEncoder func(result any) (json.RawMessage, error)

// JSONEncoder is the default ResultEncoder. A nil result stores nothing and
// raw JSON is kept as-is.
func JSONEncoder(result any) (json.RawMessage, error) {
	switch v := result.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return append(json.RawMessage(nil), v...), nil
	}
	data, err := sonic.Marshal(result)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
