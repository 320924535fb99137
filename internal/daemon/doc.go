// Package daemon coordinates the long-running bgtask process.
//
// It wires configuration, the task store, the lifecycle service, the job
// executor (and, for asynq, the consuming worker), and event publishing into
// a single lifecycle with flock-based locking to prevent multiple instances.
// The daemon serves the JSON HTTP API the CLI talks to.
//
// Keep orchestration here: task semantics live in lifecycle and task, job
// execution in executor. The daemon focuses on startup, shutdown, and
// exposing status.
package daemon
