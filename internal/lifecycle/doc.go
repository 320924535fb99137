// Package lifecycle applies task state machine operations under the
// per-record concurrency guard.
//
// Every operation reloads the record inside Store.WithLock, applies the pure
// effect from package task, and saves before the lock is released. The lock
// is carried in the context: an operation called with a context that already
// holds the lock for the same task works on the locked in-memory record
// instead of locking again. Auto-finish after step accounting relies on this.
// Locks taken inside a held lock chain to it, so a subtask that reaches back
// to its parent rejoins the parent's lock. Taking a second task's lock is
// only possible on stores with row locks; SQLite reports ErrCrossTaskLock.
//
// Log lines and events for a transition are emitted only after the enclosing
// transaction commits.
package lifecycle
