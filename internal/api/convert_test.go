package api

import (
	"errors"
	"testing"
	"time"

	"bgtask/internal/task"
)

func TestFromTaskProgressAndErrors(t *testing.T) {
	created := time.Date(2025, 3, 4, 5, 6, 7, 123456000, time.UTC)
	started := created.Add(time.Second)
	tk := task.New("media", "encode", &task.Ref{Type: "disc", ID: "7"})
	tk.CreatedAt = created
	tk.UpdatedAt = started
	tk.State = task.StateRunning
	tk.StartedAt = &started
	tk.StepsToComplete = task.IntPtr(4)
	tk.StepsCompleted = task.IntPtr(2)
	tk.Errors = []task.ErrorRecord{{
		Datetime:        started,
		ErrorMessage:    "track 3 unreadable",
		NumFailedSteps:  task.IntPtr(1),
		StepsIdentifier: "track-3",
	}}

	dto := FromTask(tk)
	if dto.State != "running" || !dto.Incomplete {
		t.Fatalf("state = %s incomplete = %v", dto.State, dto.Incomplete)
	}
	if dto.CreatedAt != "2025-03-04T05:06:07.123456Z" {
		t.Fatalf("createdAt = %s", dto.CreatedAt)
	}
	if dto.StartedAt != "2025-03-04T05:06:08.123456Z" {
		t.Fatalf("startedAt = %s", dto.StartedAt)
	}
	if dto.QueuedAt != "" || dto.CompletedAt != "" {
		t.Fatalf("unexpected timestamps queued=%q completed=%q", dto.QueuedAt, dto.CompletedAt)
	}
	if dto.Progress == nil {
		t.Fatal("progress missing")
	}
	if dto.Progress.Completed != 2 || dto.Progress.Total != 4 || dto.Progress.Failed != 1 || dto.Progress.Percent != 50 {
		t.Fatalf("progress = %+v", *dto.Progress)
	}
	if len(dto.Errors) != 1 || dto.Errors[0].StepsIdentifier != "track-3" || *dto.Errors[0].NumFailedSteps != 1 {
		t.Fatalf("errors = %+v", dto.Errors)
	}
	if dto.ActedOn == nil || dto.ActedOn.Type != "disc" {
		t.Fatalf("actedOn = %+v", dto.ActedOn)
	}
	if LastError(dto) != "track 3 unreadable" {
		t.Fatalf("LastError = %q", LastError(dto))
	}
	if got := ProgressLabel(dto); got != "2/4 (1 failed)" {
		t.Fatalf("ProgressLabel = %q", got)
	}
}

func TestFromTaskWithoutSteps(t *testing.T) {
	tk := task.New("", "sample", nil)
	if _, err := tk.Start(time.Now()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tk.Fail(time.Now(), errors.New("boom")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	dto := FromTask(tk)
	if dto.Progress != nil {
		t.Fatalf("progress = %+v, want nil", dto.Progress)
	}
	if dto.Errors == nil {
		t.Fatal("errors should be an empty slice, not nil")
	}
	if len(dto.Errors) != 1 || dto.Errors[0].Message != "boom" {
		t.Fatalf("errors = %+v", dto.Errors)
	}
	if ProgressLabel(dto) != "" {
		t.Fatalf("ProgressLabel = %q, want blank", ProgressLabel(dto))
	}
}

func TestMergeStatsFillsMissingStates(t *testing.T) {
	merged := MergeStats(map[task.State]int{task.StateQueued: 3})
	if len(merged) != len(task.AllStates()) {
		t.Fatalf("len = %d", len(merged))
	}
	if merged["queued"] != 3 || merged["running"] != 0 {
		t.Fatalf("merged = %v", merged)
	}
}

func TestSortTasksNewestFirst(t *testing.T) {
	tasks := []Task{
		{ID: "a", CreatedAt: "2025-01-01T00:00:00.000000Z"},
		{ID: "c", CreatedAt: "2025-01-03T00:00:00.000000Z"},
		{ID: "b", CreatedAt: "2025-01-02T00:00:00.000000Z"},
		{ID: "d", CreatedAt: ""},
	}
	SortTasksNewestFirst(tasks)
	got := []string{tasks[0].ID, tasks[1].ID, tasks[2].ID, tasks[3].ID}
	want := []string{"c", "b", "a", "d"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
