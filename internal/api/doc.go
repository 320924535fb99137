// Package api defines wire-format types and converters for the HTTP API and
// CLI. It translates task records into transport-friendly DTOs that other
// consumers can render without coupling to internal types.
//
// # Key Types
//
// Task: transport representation of a task with progress, queue position,
// error records, and the acted-on reference.
//
// DaemonStatus: daemon running state, store details, executor backend, and
// task counts by state.
//
// # Services
//
// TaskService wraps the store for read paths (List annotates queue
// positions) and, when given a lifecycle service and executor, for create
// and fail actions. Client is the HTTP counterpart used by the CLI when a
// daemon is running.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. States are exposed as their lowercase
// snake_case names. Timestamps use RFC3339 with microseconds so that ordering
// survives the round trip. Task results are passed through as
// json.RawMessage to avoid double-encoding.
package api
