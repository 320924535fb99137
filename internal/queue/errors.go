package queue

import "errors"

var (
	// ErrNotFound is returned when no task matches the requested id.
	ErrNotFound = errors.New("task not found")
	// ErrSchemaMismatch indicates the database was migrated by a newer build.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrUnsupportedDriver rejects store drivers other than sqlite, postgres and mysql.
	ErrUnsupportedDriver = errors.New("unsupported store driver")
)
