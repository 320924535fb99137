package api

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseTaskTime parses a timestamp rendered by FromTask. Blank or malformed
// values yield the zero time.
func ParseTaskTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(dateTimeFormat, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	return time.Time{}
}

// SortTasksNewestFirst orders tasks by creation time descending, falling back
// to id for stable output.
func SortTasksNewestFirst(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ti := ParseTaskTime(tasks[i].CreatedAt)
		tj := ParseTaskTime(tasks[j].CreatedAt)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return tasks[i].ID > tasks[j].ID
	})
}

// ProgressLabel renders step progress as "done/total" or a blank string.
func ProgressLabel(t Task) string {
	if t.Progress == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(t.Progress.Completed))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(t.Progress.Total))
	if t.Progress.Failed > 0 {
		b.WriteString(" (")
		b.WriteString(strconv.Itoa(t.Progress.Failed))
		b.WriteString(" failed)")
	}
	return b.String()
}

// LastError returns the most recent error message on t.
func LastError(t Task) string {
	if len(t.Errors) == 0 {
		return ""
	}
	return t.Errors[len(t.Errors)-1].Message
}
