package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bgtask/internal/task"
)

// Create inserts a new task record. The id must not exist yet.
func (s *Store) Create(ctx context.Context, t *task.Task) error {
	if t == nil {
		return errors.New("task is nil")
	}
	if strings.TrimSpace(t.ID) == "" || strings.TrimSpace(t.Name) == "" {
		return errors.New("task id and name are required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = task.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	query := `INSERT INTO bg_tasks (` + taskColumns + `) VALUES (` + makePlaceholders(len(taskColumnList)) + `)`
	if _, err := s.execWithRetry(ctx, query, args...); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get fetches a task by identifier.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.get(ensureContext(ctx), s.db, id)
}

func (s *Store) get(ctx context.Context, q querier, id string) (*task.Task, error) {
	row := q.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+taskColumns+` FROM bg_tasks WHERE id = ?`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Save upserts the full record and refreshes UpdatedAt.
func (s *Store) Save(ctx context.Context, t *task.Task) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		return s.save(ctx, s.db, t)
	})
}

func (s *Store) save(ctx context.Context, q querier, t *task.Task) error {
	if t == nil {
		return errors.New("task is nil")
	}
	now := task.Now()
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt
	}
	t.UpdatedAt = now
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	query := `INSERT INTO bg_tasks (` + taskColumns + `) VALUES (` + makePlaceholders(len(taskColumnList)) + `)` +
		s.dialect.upsertClause(taskColumnList)
	if _, err := q.ExecContext(ctx, s.dialect.rebind(query), args...); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// List returns tasks matching filter ordered by (created_at, id).
func (s *Store) List(ctx context.Context, filter Filter) ([]*task.Task, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.States) > 0 {
		clauses = append(clauses, `state IN (`+makePlaceholders(len(filter.States))+`)`)
		for _, state := range filter.States {
			args = append(args, string(state))
		}
	}
	if filter.Namespace != "" {
		clauses = append(clauses, `namespace = ?`)
		args = append(args, filter.Namespace)
	}
	if filter.Name != "" {
		clauses = append(clauses, `name = ?`)
		args = append(args, filter.Name)
	}
	if !filter.CreatedAfter.IsZero() {
		clauses = append(clauses, `created_at >= ?`)
		args = append(args, formatTime(filter.CreatedAfter))
	}
	if !filter.CreatedBefore.IsZero() {
		clauses = append(clauses, `created_at < ?`)
		args = append(args, formatTime(filter.CreatedBefore))
	}

	query := `SELECT ` + taskColumns + ` FROM bg_tasks`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	tasks, err := s.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Delete removes a task by identifier.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM bg_tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes terminal tasks. With no states given every terminal
// state is cleared; non-terminal states are rejected.
func (s *Store) ClearCompleted(ctx context.Context, states ...task.State) (int64, error) {
	if len(states) == 0 {
		states = task.TerminalStates()
	}
	args := make([]any, len(states))
	for i, state := range states {
		if !state.IsTerminal() {
			return 0, fmt.Errorf("clear completed: state %s is not terminal", state)
		}
		args[i] = string(state)
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM bg_tasks WHERE state IN (`+makePlaceholders(len(states))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}
