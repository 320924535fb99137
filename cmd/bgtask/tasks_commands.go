package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bgtask/internal/api"
	"bgtask/internal/queue"
	"bgtask/internal/task"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Inspect and manage task records",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksShowCommand(ctx))
	tasksCmd.AddCommand(newTasksStatusCommand(ctx))
	tasksCmd.AddCommand(newTasksCreateCommand(ctx))
	tasksCmd.AddCommand(newTasksSubmitCommand(ctx))
	tasksCmd.AddCommand(newTasksQueueCommand(ctx))
	tasksCmd.AddCommand(newTasksStartCommand(ctx))
	tasksCmd.AddCommand(newTasksFailCommand(ctx))
	tasksCmd.AddCommand(newTasksFinishCommand(ctx))
	tasksCmd.AddCommand(newTasksStaleCommand(ctx))
	tasksCmd.AddCommand(newTasksClearCommand(ctx))
	tasksCmd.AddCommand(newTasksWatchCommand(ctx))

	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var (
		states    []string
		namespace string
		name      string
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with their queue positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildFilter(states, namespace, name, limit)
			if err != nil {
				return err
			}
			return ctx.withBackend(cmd, func(b taskBackend) error {
				tasks, err := b.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					if tasks == nil {
						tasks = []api.Task{}
					}
					return writeJSON(cmd, tasks)
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(taskListHeaders, buildTaskListRows(tasks), taskListAligns))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Filter by state (repeatable)")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Filter by namespace")
	cmd.Flags().StringVar(&name, "name", "", "Filter by task name")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum tasks to list (0 uses tasks.list_limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func buildFilter(states []string, namespace, name string, limit int) (queue.Filter, error) {
	filter := queue.Filter{
		Namespace: strings.TrimSpace(namespace),
		Name:      strings.TrimSpace(name),
		Limit:     limit,
	}
	if limit < 0 {
		return queue.Filter{}, errors.New("--limit must be zero or positive")
	}
	for _, raw := range states {
		state, ok := task.ParseState(raw)
		if !ok {
			return queue.Filter{}, fmt.Errorf("unknown state %q", raw)
		}
		filter.States = append(filter.States, state)
	}
	return filter, nil
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd, func(b taskBackend) error {
				dto, err := b.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if dto == nil {
					return fmt.Errorf("task %s not found", args[0])
				}
				if asJSON {
					return writeJSON(cmd, dto)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTaskDetail(*dto))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTasksStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show task counts by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd, func(b taskBackend) error {
				counts, err := b.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.StatsResponse{Counts: counts})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"State", "Count"}, buildStatusRows(counts), []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

type createFlags struct {
	namespace string
	actedOn   string
	asJSON    bool
}

func (f *createFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.namespace, "namespace", "n", "", "Task namespace")
	cmd.Flags().StringVar(&f.actedOn, "acted-on", "", "Entity the task acts on, as type:id")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Output as JSON")
}

func (f *createFlags) request(name string) (api.CreateTaskRequest, error) {
	req := api.CreateTaskRequest{Namespace: strings.TrimSpace(f.namespace), Name: strings.TrimSpace(name)}
	if raw := strings.TrimSpace(f.actedOn); raw != "" {
		typ, id, ok := strings.Cut(raw, ":")
		if !ok || typ == "" || id == "" {
			return api.CreateTaskRequest{}, fmt.Errorf("--acted-on %q must be type:id", raw)
		}
		req.ActedOn = &api.Ref{Type: typ, ID: id}
	}
	return req, nil
}

func printCreated(cmd *cobra.Command, dto *api.Task, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, dto)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task %s (%s) is %s\n", dto.ID, taskSubject(*dto), stateLabel(dto.State))
	return nil
}

func newTasksCreateCommand(ctx *commandContext) *cobra.Command {
	var flags createFlags
	var queueIt bool
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(args[0])
			if err != nil {
				return err
			}
			req.Queue = queueIt
			return ctx.withBackend(cmd, func(b taskBackend) error {
				dto, err := b.Create(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printCreated(cmd, dto, flags.asJSON)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&queueIt, "queue", false, "Queue the task after creating it")
	return cmd
}

func newTasksSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags createFlags
	var payload string
	cmd := &cobra.Command{
		Use:   "submit <job> [name]",
		Short: "Create a task and run a registered job for it",
		Long: "Create a task, queue it, and hand the job to the executor. Through the daemon\n" +
			"this returns once the job is accepted; without a daemon the job runs in this\n" +
			"process and the command waits for it.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if len(args) == 2 {
				name = args[1]
			}
			req, err := flags.request(name)
			if err != nil {
				return err
			}
			req.Job = args[0]
			if p := strings.TrimSpace(payload); p != "" {
				req.Payload = []byte(p)
			}
			return ctx.withBackend(cmd, func(b taskBackend) error {
				dto, err := b.Create(cmd.Context(), req)
				if err != nil {
					return err
				}
				if local, ok := b.(*localBackend); ok {
					if err := local.Drain(); err != nil {
						return err
					}
					if dto, err = local.Describe(cmd.Context(), dto.ID); err != nil {
						return err
					}
				}
				return printCreated(cmd, dto, flags.asJSON)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "JSON payload passed to the job")
	return cmd
}

// transitionCommand builds a command that applies one lifecycle operation to
// each id through the local store.
func transitionCommand(ctx *commandContext, use, short, verb string, apply func(context.Context, *localBackend, string) (*task.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLocal(cmd.Context(), func(b *localBackend) error {
				out := cmd.OutOrStdout()
				var errs []error
				for _, id := range args {
					t, err := apply(cmd.Context(), b, id)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s %s: %w", verb, id, err))
						continue
					}
					fmt.Fprintf(out, "Task %s is %s\n", t.ID, stateLabel(string(t.State)))
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newTasksQueueCommand(ctx *commandContext) *cobra.Command {
	return transitionCommand(ctx, "queue", "Mark tasks queued", "queue",
		func(c context.Context, b *localBackend, id string) (*task.Task, error) {
			return b.lifecycle.Queue(c, id)
		})
}

func newTasksStartCommand(ctx *commandContext) *cobra.Command {
	return transitionCommand(ctx, "start", "Mark tasks running", "start",
		func(c context.Context, b *localBackend, id string) (*task.Task, error) {
			return b.lifecycle.Start(c, id)
		})
}

func newTasksFinishCommand(ctx *commandContext) *cobra.Command {
	return transitionCommand(ctx, "finish", "Finish running tasks, deriving the outcome from recorded errors", "finish",
		func(c context.Context, b *localBackend, id string) (*task.Task, error) {
			return b.lifecycle.Finish(c, id)
		})
}

func newTasksFailCommand(ctx *commandContext) *cobra.Command {
	var reason string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "fail <id>...",
		Short: "Fail queued or running tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd, func(b taskBackend) error {
				result, err := b.FailTasks(cmd.Context(), args, reason)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				for _, item := range result.Items {
					switch item.Outcome {
					case api.FailTaskUpdated:
						fmt.Fprintf(out, "Task %s failed (was %s)\n", item.ID, stateLabel(item.PriorState))
					case api.FailTaskNotFound:
						fmt.Fprintf(out, "Task %s not found\n", item.ID)
					case api.FailTaskAlreadyTerminal:
						fmt.Fprintf(out, "Task %s already finished (%s)\n", item.ID, stateLabel(item.PriorState))
					case api.FailTaskNotStarted:
						fmt.Fprintf(out, "Task %s was never queued or started\n", item.ID)
					}
				}
				fmt.Fprintf(out, "Failed %d task(s)\n", result.UpdatedCount)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Error message recorded on each task")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTasksStaleCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List tasks left queued or running for too long",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			age := olderThan
			if age <= 0 {
				age = time.Duration(cfg.Tasks.StaleAfterMinutes) * time.Minute
			}
			return ctx.withLocal(cmd.Context(), func(b *localBackend) error {
				stale, err := b.store.Stale(cmd.Context(), time.Now().Add(-age))
				if err != nil {
					return err
				}
				if len(stale) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No tasks older than %s\n", age)
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(taskListHeaders, buildTaskListRows(api.FromTasks(stale)), taskListAligns))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold (default tasks.stale_after_minutes)")
	return cmd
}

func newTasksClearCommand(ctx *commandContext) *cobra.Command {
	var states []string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete finished tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var targets []task.State
			for _, raw := range states {
				state, ok := task.ParseState(raw)
				if !ok {
					return fmt.Errorf("unknown state %q", raw)
				}
				targets = append(targets, state)
			}
			return ctx.withLocal(cmd.Context(), func(b *localBackend) error {
				removed, err := b.store.ClearCompleted(cmd.Context(), targets...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d task(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Terminal states to clear (default all terminal states)")
	return cmd
}
