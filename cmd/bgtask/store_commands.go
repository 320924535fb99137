package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStoreCommand(ctx *commandContext) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Task database diagnostics",
	}
	storeCmd.AddCommand(newStoreHealthCommand(ctx))
	return storeCmd
}

func newStoreHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the task database schema and contents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withLocal(cmd.Context(), func(b *localBackend) error {
				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				health, checkErr := b.store.CheckHealth(cmd.Context())
				for _, line := range renderSectionHeader("Database", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Driver", statusInfo, health.Driver, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Location", statusInfo, health.Location, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Exists", boolKind(health.DatabaseExists), yesNo(health.DatabaseExists), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Readable", boolKind(health.DatabaseReadable), yesNo(health.DatabaseReadable), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Schema", statusInfo, health.SchemaVersion, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Table", boolKind(health.TableExists), yesNo(health.TableExists), colorize))
				if len(health.MissingColumns) > 0 {
					fmt.Fprintln(stdout, renderStatusLine("Columns", statusError, "missing "+strings.Join(health.MissingColumns, ", "), colorize))
				} else if health.TableExists {
					fmt.Fprintln(stdout, renderStatusLine("Columns", statusOK, fmt.Sprintf("%d present", len(health.ColumnsPresent)), colorize))
				}
				fmt.Fprintln(stdout, renderStatusLine("Integrity", boolKind(health.IntegrityCheck), yesNo(health.IntegrityCheck), colorize))
				if checkErr != nil {
					fmt.Fprintln(stdout, renderStatusLine("Error", statusError, checkErr.Error(), colorize))
					return checkErr
				}
				fmt.Fprintln(stdout)

				summary, err := b.store.Health(cmd.Context())
				if err != nil {
					return err
				}
				for _, line := range renderSectionHeader("Tasks", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Total", statusInfo, fmt.Sprintf("%d", summary.Total), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Active", statusInfo, fmt.Sprintf("%d", summary.Active()), colorize))
				failedKind := statusOK
				if summary.Failed > 0 {
					failedKind = statusWarn
				}
				fmt.Fprintln(stdout, renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", summary.Failed), colorize))
				return nil
			})
		},
	}
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}
