// Package logging assembles structured slog loggers and formatting helpers used
// across bgtask.
//
// It owns the configurable console/JSON handlers, tees a JSON copy of every
// record into the log directory, and exposes context-aware helpers so
// lifecycle and executor code can tag log lines with task and correlation
// IDs. The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
