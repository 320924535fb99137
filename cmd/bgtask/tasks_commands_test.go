package main

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"bgtask/internal/api"
)

func TestTasksListEmptyLocal(t *testing.T) {
	env := setupLocalCLIEnv(t)
	out := mustRunCLI(t, env, "tasks", "list")
	requireContains(t, out, "No tasks")
}

func TestTasksCreateQueueAndListLocal(t *testing.T) {
	env := setupLocalCLIEnv(t)

	out := mustRunCLI(t, env, "tasks", "create", "reindex", "--namespace", "search", "--acted-on", "index:products")
	requireContains(t, out, "search/reindex")
	requireContains(t, out, "Not Started")

	out = mustRunCLI(t, env, "tasks", "create", "export", "--queue")
	requireContains(t, out, "is Queued")

	out = mustRunCLI(t, env, "tasks", "list", "--json")
	var tasks []api.Task
	if err := sonic.UnmarshalString(out, &tasks); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	var queued *api.Task
	for i := range tasks {
		if tasks[i].State == "queued" {
			queued = &tasks[i]
		}
	}
	if queued == nil || queued.PositionInQueue == nil || *queued.PositionInQueue != 1 {
		t.Fatalf("expected queued task at position 1, got %+v", queued)
	}

	out = mustRunCLI(t, env, "tasks", "list", "--state", "queued")
	requireContains(t, out, "export")
	if strings.Contains(out, "reindex") {
		t.Fatalf("state filter leaked other tasks:\n%s", out)
	}
}

func TestTasksCreateRejectsBadActedOn(t *testing.T) {
	env := setupLocalCLIEnv(t)
	_, _, err := runCLI(t, env, "tasks", "create", "x", "--acted-on", "missing-colon")
	if err == nil || !strings.Contains(err.Error(), "type:id") {
		t.Fatalf("expected acted-on error, got %v", err)
	}
}

func TestTasksListRejectsUnknownState(t *testing.T) {
	env := setupLocalCLIEnv(t)
	_, _, err := runCLI(t, env, "tasks", "list", "--state", "paused")
	if err == nil || !strings.Contains(err.Error(), "unknown state") {
		t.Fatalf("expected unknown state error, got %v", err)
	}
}

func TestTasksSubmitRunsDemoJobLocally(t *testing.T) {
	env := setupLocalCLIEnv(t)

	out := mustRunCLI(t, env, "tasks", "submit", "demo.steps", "--payload", `{"steps":3,"fail_every":2}`, "--json")
	var dto api.Task
	if err := sonic.UnmarshalString(out, &dto); err != nil {
		t.Fatalf("decode task: %v\n%s", err, out)
	}
	if dto.State != "partial_success" {
		t.Fatalf("state = %q, want partial_success", dto.State)
	}
	if dto.Progress == nil || dto.Progress.Completed != 3 || dto.Progress.Failed != 1 {
		t.Fatalf("progress = %+v", dto.Progress)
	}

	out = mustRunCLI(t, env, "tasks", "show", dto.ID)
	requireContains(t, out, "Partial Success")
	requireContains(t, out, "step 2 failed")
}

func TestTasksSubmitUnknownJobFailsTask(t *testing.T) {
	env := setupLocalCLIEnv(t)
	out := mustRunCLI(t, env, "tasks", "submit", "nope", "--json")
	var dto api.Task
	if err := sonic.UnmarshalString(out, &dto); err != nil {
		t.Fatalf("decode task: %v\n%s", err, out)
	}
	if dto.State != "failed" {
		t.Fatalf("state = %q, want failed", dto.State)
	}
	if msg := api.LastError(dto); !strings.Contains(msg, "no body registered") {
		t.Fatalf("last error = %q", msg)
	}
}

func TestTasksLifecycleCommandsLocal(t *testing.T) {
	env := setupLocalCLIEnv(t)

	out := mustRunCLI(t, env, "tasks", "create", "manual", "--json")
	var dto api.Task
	if err := sonic.UnmarshalString(out, &dto); err != nil {
		t.Fatalf("decode task: %v", err)
	}

	requireContains(t, mustRunCLI(t, env, "tasks", "queue", dto.ID), "is Queued")
	requireContains(t, mustRunCLI(t, env, "tasks", "start", dto.ID), "is Running")
	requireContains(t, mustRunCLI(t, env, "tasks", "finish", dto.ID), "is Success")

	if _, _, err := runCLI(t, env, "tasks", "start", dto.ID); err == nil {
		t.Fatal("expected start of a finished task to fail")
	}

	out = mustRunCLI(t, env, "tasks", "status")
	requireContains(t, out, "Success")

	out = mustRunCLI(t, env, "tasks", "clear")
	requireContains(t, out, "Cleared 1 task(s)")
	requireContains(t, mustRunCLI(t, env, "tasks", "list"), "No tasks")
}

func TestTasksFailLocal(t *testing.T) {
	env := setupLocalCLIEnv(t)

	out := mustRunCLI(t, env, "tasks", "create", "stuck", "--queue", "--json")
	var dto api.Task
	if err := sonic.UnmarshalString(out, &dto); err != nil {
		t.Fatalf("decode task: %v", err)
	}

	out = mustRunCLI(t, env, "tasks", "fail", dto.ID, "missing-id", "--reason", "operator cancelled")
	requireContains(t, out, "Task "+dto.ID+" failed (was Queued)")
	requireContains(t, out, "Task missing-id not found")
	requireContains(t, out, "Failed 1 task(s)")

	out = mustRunCLI(t, env, "tasks", "show", dto.ID)
	requireContains(t, out, "operator cancelled")
}

func TestTasksStaleLocal(t *testing.T) {
	env := setupLocalCLIEnv(t)
	mustRunCLI(t, env, "tasks", "create", "old", "--queue")

	out := mustRunCLI(t, env, "tasks", "stale", "--older-than", "1h")
	requireContains(t, out, "No tasks older than 1h0m0s")

	time.Sleep(5 * time.Millisecond)
	out = mustRunCLI(t, env, "tasks", "stale", "--older-than", "1ms")
	requireContains(t, out, "old")
}

func TestTasksWatchRequiresEvents(t *testing.T) {
	env := setupLocalCLIEnv(t)
	_, _, err := runCLI(t, env, "tasks", "watch")
	if err == nil || !strings.Contains(err.Error(), "events are disabled") {
		t.Fatalf("expected disabled events error, got %v", err)
	}
}

func TestTasksThroughDaemon(t *testing.T) {
	env := setupDaemonCLIEnv(t)

	out := mustRunCLI(t, env, "tasks", "submit", "demo.steps", "nightly", "--payload", `{"steps":2}`, "--json")
	var dto api.Task
	if err := sonic.UnmarshalString(out, &dto); err != nil {
		t.Fatalf("decode task: %v\n%s", err, out)
	}
	if dto.Name != "nightly" {
		t.Fatalf("name = %q, want nightly", dto.Name)
	}

	waitFor(t, 5*time.Second, func() bool {
		out, _, err := runCLI(t, env, "tasks", "show", dto.ID, "--json")
		if err != nil {
			return false
		}
		var current api.Task
		if err := sonic.UnmarshalString(out, &current); err != nil {
			return false
		}
		return current.State == "success"
	})

	out = mustRunCLI(t, env, "tasks", "status", "--json")
	var stats api.StatsResponse
	if err := sonic.UnmarshalString(out, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Counts["success"] != 1 {
		t.Fatalf("counts = %v", stats.Counts)
	}

	out = mustRunCLI(t, env, "tasks", "fail", dto.ID)
	requireContains(t, out, "already finished (Success)")
}
