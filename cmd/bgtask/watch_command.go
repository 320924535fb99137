package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"bgtask/internal/events"
)

func newTasksWatchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var namespace string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream task state changes published over Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Events.Enabled {
				return errors.New("events are disabled; set events.enabled = true in the config")
			}
			client := redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddr})
			defer client.Close()

			watchCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return events.Subscribe(watchCtx, client, cfg.Events.Channel, func(ev events.Event) {
				if namespace != "" && ev.Namespace != namespace {
					return
				}
				writeEvent(out, ev, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per event")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Only show events for this namespace")
	return cmd
}

func writeEvent(w io.Writer, ev events.Event, asJSON bool) {
	if asJSON {
		if encoded, err := jsonLine(ev); err == nil {
			fmt.Fprintln(w, encoded)
		}
		return
	}
	subject := ev.Name
	if ev.Namespace != "" {
		subject = ev.Namespace + "/" + ev.Name
	}
	line := fmt.Sprintf("%s  %-14s %s %s -> %s", ev.At.Local().Format("15:04:05.000"), ev.Type, ev.TaskID, subject, stateLabel(string(ev.State)))
	if ev.Message != "" {
		line += ": " + ev.Message
	}
	fmt.Fprintln(w, line)
}
