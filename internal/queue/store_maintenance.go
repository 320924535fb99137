package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bgtask/internal/task"
)

// Stats returns a count of tasks grouped by state.
func (s *Store) Stats(ctx context.Context) (map[task.State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM bg_tasks GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[task.State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[task.State(state)] = count
	}
	return stats, rows.Err()
}

// Health aggregates task counts for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for state, count := range stats {
		health.Total += count
		switch state {
		case task.StateNotStarted:
			health.NotStarted += count
		case task.StateQueued:
			health.Queued += count
		case task.StateRunning:
			health.Running += count
		case task.StateSuccess:
			health.Success += count
		case task.StatePartialSuccess:
			health.PartialSuccess += count
		case task.StateFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// Stale lists tasks left running or queued since before cutoff. Records whose
// worker died stay in these states forever; reaping them is left to callers.
func (s *Store) Stale(ctx context.Context, cutoff time.Time) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM bg_tasks
        WHERE (state = ? AND started_at < ?) OR (state = ? AND queued_at < ?)
        ORDER BY created_at, id`
	stamp := formatTime(cutoff)
	tasks, err := s.queryTasks(ctx, query,
		string(task.StateRunning), stamp,
		string(task.StateQueued), stamp,
	)
	if err != nil {
		return nil, fmt.Errorf("stale tasks: %w", err)
	}
	return tasks, nil
}

// CheckHealth returns diagnostic information about the task database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		Driver:   string(s.dialect),
		Location: s.location,
	}

	if s.dialect == SQLite {
		path := strings.TrimPrefix(s.location, "file:")
		if idx := strings.Index(path, "?"); idx >= 0 {
			path = path[:idx]
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return health, nil
			}
			return health, fmt.Errorf("stat task database: %w", err)
		}
		if info.IsDir() {
			return health, fmt.Errorf("task database path %q is a directory", path)
		}
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("task database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping task database: %w", err)
	}
	health.DatabaseReadable = true

	version, err := s.SchemaVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	var tables int
	if err := s.db.QueryRowContext(connCtx, s.dialect.rebind(s.dialect.tableExistsQuery()), "bg_tasks").Scan(&tables); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	health.TableExists = tables > 0
	if !health.TableExists {
		return health, nil
	}

	colsRows, err := s.db.QueryContext(connCtx, s.dialect.rebind(s.dialect.columnsQuery()), "bg_tasks")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("table info: %w", err)
	}
	defer colsRows.Close()
	for colsRows.Next() {
		var name string
		if err := colsRows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table info: %w", err)
		}
		health.ColumnsPresent = append(health.ColumnsPresent, strings.ToLower(name))
	}
	if err := colsRows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate table info: %w", err)
	}

	present := make(map[string]struct{}, len(health.ColumnsPresent))
	for _, col := range health.ColumnsPresent {
		present[col] = struct{}{}
	}
	for _, col := range taskColumnList {
		if _, ok := present[col]; !ok {
			health.MissingColumns = append(health.MissingColumns, col)
		}
	}

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM bg_tasks").Scan(&health.TotalTasks); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count tasks: %w", err)
	}

	health.IntegrityCheck = true
	if s.dialect == SQLite {
		var integrity string
		if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("integrity check: %w", err)
		}
		health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	}
	return health, nil
}
