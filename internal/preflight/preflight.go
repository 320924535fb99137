package preflight

import (
	"context"

	"bgtask/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckStore(ctx, cfg))

	if cfg.Executor.Kind == config.ExecutorAsynq {
		results = append(results, CheckRedis(ctx, "Executor Redis", cfg.Executor.RedisAddr))
	}
	// Skip the events probe when it would hit the same server twice.
	if cfg.Events.Enabled && !(cfg.Executor.Kind == config.ExecutorAsynq && cfg.Events.RedisAddr == cfg.Executor.RedisAddr) {
		results = append(results, CheckRedis(ctx, "Events Redis", cfg.Events.RedisAddr))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
