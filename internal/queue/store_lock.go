package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bgtask/internal/task"
)

// WithLock runs fn against the freshly reloaded record while holding an
// exclusive lock on it, then saves the mutated record in the same
// transaction. An error from fn rolls everything back and is returned as is.
//
// Postgres and MySQL lock the row with SELECT ... FOR UPDATE. SQLite opens
// the transaction with BEGIN IMMEDIATE (OpenDSN adds _txlock=immediate when
// the DSN does not set it) and touches the row, which serializes all writers
// on the database. A second WithLock from inside fn therefore waits on
// itself under SQLite; see NestedLocks.
func (s *Store) WithLock(ctx context.Context, id string, fn func(*task.Task) error) (*task.Task, error) {
	ctx = ensureContext(ctx)

	var (
		tx     *sql.Tx
		locked *task.Task
	)
	if err := retryOnBusy(ctx, func() error {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		locked, err = s.lockAndLoad(ctx, tx, id)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		return nil
	}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lock task %s: %w", id, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(locked); err != nil {
		return nil, err
	}
	if err := s.save(ctx, tx, locked); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task %s: %w", id, err)
	}
	return locked, nil
}

// NestedLocks reports whether fn may lock a different task while its own
// lock is held. Only row-locking backends allow it.
func (s *Store) NestedLocks() bool {
	return s.dialect.supportsRowLocks()
}

func (s *Store) lockAndLoad(ctx context.Context, tx *sql.Tx, id string) (*task.Task, error) {
	if s.dialect.supportsRowLocks() {
		row := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+taskColumns+` FROM bg_tasks WHERE id = ? FOR UPDATE`), id)
		t, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lock task %s: %w", id, ErrNotFound)
		}
		return t, err
	}

	res, err := tx.ExecContext(ctx, s.dialect.rebind(`UPDATE bg_tasks SET id = id WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("lock task %s: %w", id, ErrNotFound)
	}
	return s.get(ctx, tx, id)
}
