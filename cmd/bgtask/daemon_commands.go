package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bgtask/internal/api"
	"bgtask/internal/daemonctl"
	"bgtask/internal/daemonrun"
	"bgtask/internal/preflight"
	"bgtask/internal/task"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the bgtask daemon",
	}
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonLogsCommand(ctx))
	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&development, "development", false, "Enable development logging (source locations)")
	return cmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(
				cmd.Context(),
				ctx.apiClient(),
				exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath, LogLevel: logLevel},
				10*time.Second,
			)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the launched daemon")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cmd.Context(), ctx.apiClient(), cfg, grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in %s; killed pid %d\n", grace, result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 5*time.Second, "How long to wait for a clean shutdown before killing")
	return cmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and task status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.apiClient(), cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			writeSystemChecks(stdout, preflight.RunAll(cmd.Context(), cfg), colorize)
			writeDaemonStatus(stdout, status, ctx.apiBaseURL(), colorize)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func writeDaemonStatus(w io.Writer, status *api.DaemonStatus, apiURL string, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(w, line)
	}
	if status.Running {
		fmt.Fprintln(w, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
		if started := api.ParseTaskTime(status.StartedAt); !started.IsZero() {
			fmt.Fprintln(w, renderStatusLine("Uptime", statusInfo, time.Since(started).Round(time.Second).String(), colorize))
		}
	} else {
		fmt.Fprintln(w, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
	}
	fmt.Fprintln(w, renderStatusLine("API", statusInfo, apiURL, colorize))
	executor := status.Executor
	if executor == "" {
		executor = "unknown"
	}
	if len(status.Bodies) > 0 {
		executor = fmt.Sprintf("%s (%s)", executor, strings.Join(status.Bodies, ", "))
	}
	fmt.Fprintln(w, renderStatusLine("Executor", statusInfo, executor, colorize))
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Store", colorize) {
		fmt.Fprintln(w, line)
	}
	if status.Store.Location == "" {
		fmt.Fprintln(w, renderStatusLine(storeDriverLabel(status.Store.Driver), statusError, "Unavailable", colorize))
	} else {
		detail := status.Store.Location
		if status.Store.SchemaVersion != "" {
			detail = fmt.Sprintf("%s (schema %s)", detail, status.Store.SchemaVersion)
		}
		fmt.Fprintln(w, renderStatusLine(storeDriverLabel(status.Store.Driver), statusOK, detail, colorize))
	}
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Tasks", colorize) {
		fmt.Fprintln(w, line)
	}
	total := 0
	for _, state := range task.AllStates() {
		total += status.Counts[string(state)]
	}
	if total == 0 {
		fmt.Fprintln(w, "No tasks")
		return
	}
	fmt.Fprint(w, renderTable([]string{"State", "Count"}, buildStatusRows(status.Counts), []columnAlignment{alignLeft, alignRight}))
}

func writeSystemChecks(w io.Writer, results []preflight.Result, colorize bool) {
	for _, line := range renderSectionHeader("System", colorize) {
		fmt.Fprintln(w, line)
	}
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		fmt.Fprintln(w, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	fmt.Fprintln(w)
}

func storeDriverLabel(driver string) string {
	if driver == "" {
		return "Store"
	}
	return stateLabel(driver)
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}
