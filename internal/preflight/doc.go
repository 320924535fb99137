// Package preflight provides readiness checks for the filesystem paths and
// external services bgtask depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs a warning for every check
//     that fails, so a misconfigured Redis or data directory shows up before
//     the first job does.
//   - The CLI "bgtask daemon status" command renders the same results under
//     its System section.
//
// Each check is gated by its config toggle; Redis is only probed when the
// asynq executor or event publication is enabled.
package preflight
