// Command bgtask is the operator CLI for background task records.
//
// Read commands (tasks list/show/status) go through the daemon's HTTP API
// when it answers and fall back to opening the task store directly. State
// changes issued from the CLI (queue, start, fail, finish) always run
// through the lifecycle service against the store so they take the same row
// locks workers do. `bgtask daemon run` hosts the API and the executor.
package main
