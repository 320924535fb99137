// Package queue persists task records in a SQL database and provides the
// row-locked read-modify-write primitive the lifecycle layer builds on.
//
// SQLite (modernc) is the default backend; Postgres (pgx) and MySQL
// (go-sql-driver) share the same schema through per-dialect migrations
// embedded under migrations/<driver>. Timestamps are stored as fixed-width
// UTC text so ordering by queued_at or created_at is plain string ordering
// on every backend.
//
// Besides CRUD the Store answers the two queries the queue position
// calculator needs (MostRecentlyUnqueued and QueuedInOrder) and exposes
// stats, health checks, and stale-task listings for operators.
package queue
