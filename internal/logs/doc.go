// Package logs reads daemon log files for the CLI.
//
// Tail returns the last N lines of a file (or everything after a byte
// offset) with bounded memory. Follow builds on it to stream new lines until
// the context ends, re-resolving the bgtask.log pointer so a daemon restart
// moves the stream onto the new run's file. Waits wake on fsnotify events for
// the log directory and fall back to polling when no watcher is available.
package logs
