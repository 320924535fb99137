package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"bgtask/internal/api"
	"bgtask/internal/task"
)

// stateLabel renders a state for humans: "partial_success" -> "Partial Success".
func stateLabel(state string) string {
	state = strings.TrimSpace(state)
	if state == "" {
		return "Unknown"
	}
	return cases.Title(language.Und).String(strings.ReplaceAll(state, "_", " "))
}

func taskSubject(t api.Task) string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "/" + t.Name
}

func positionLabel(t api.Task) string {
	if t.PositionInQueue == nil {
		return "-"
	}
	return strconv.Itoa(*t.PositionInQueue)
}

func shortTime(value string) string {
	ts := api.ParseTaskTime(value)
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func buildTaskListRows(tasks []api.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		progress := api.ProgressLabel(t)
		if progress == "" {
			progress = "-"
		}
		rows = append(rows, []string{
			t.ID,
			taskSubject(t),
			stateLabel(t.State),
			positionLabel(t),
			progress,
			shortTime(t.CreatedAt),
		})
	}
	return rows
}

var taskListHeaders = []string{"ID", "Task", "State", "Position", "Progress", "Created"}
var taskListAligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

func buildStatusRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, state := range task.AllStates() {
		rows = append(rows, []string{stateLabel(string(state)), strconv.Itoa(counts[string(state)])})
	}
	return rows
}

func renderTaskDetail(t api.Task) string {
	var b strings.Builder
	line := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "%-14s %s\n", label+":", value)
	}
	line("ID", t.ID)
	line("Task", taskSubject(t))
	line("State", stateLabel(t.State))
	line("Incomplete", yesNo(t.Incomplete))
	line("Position", positionLabel(t))
	line("Progress", api.ProgressLabel(t))
	if t.ActedOn != nil {
		line("Acts on", t.ActedOn.Type+":"+t.ActedOn.ID)
	}
	line("Created", shortTime(t.CreatedAt))
	line("Queued", shortTime(t.QueuedAt))
	line("Started", shortTime(t.StartedAt))
	line("Completed", shortTime(t.CompletedAt))
	if started, completed := api.ParseTaskTime(t.StartedAt), api.ParseTaskTime(t.CompletedAt); !started.IsZero() && !completed.IsZero() {
		line("Duration", completed.Sub(started).Round(time.Millisecond).String())
	}
	if len(t.Result) > 0 {
		line("Result", string(t.Result))
	}
	for i, e := range t.Errors {
		label := fmt.Sprintf("Error %d", i+1)
		msg := e.Message
		if e.StepsIdentifier != "" {
			msg += " [" + e.StepsIdentifier + "]"
		}
		if e.NumFailedSteps != nil {
			msg += fmt.Sprintf(" (%d failed)", *e.NumFailedSteps)
		}
		line(label, shortTime(e.Datetime)+" "+msg)
	}
	return b.String()
}
