package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bgtask/internal/queue"
	"bgtask/internal/task"
)

// FilterValues encodes filter as URL query parameters for GET /api/tasks.
func FilterValues(filter queue.Filter) url.Values {
	values := url.Values{}
	for _, state := range filter.States {
		values.Add("state", string(state))
	}
	if filter.Namespace != "" {
		values.Set("namespace", filter.Namespace)
	}
	if filter.Name != "" {
		values.Set("name", filter.Name)
	}
	if !filter.CreatedAfter.IsZero() {
		values.Set("created_after", filter.CreatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if !filter.CreatedBefore.IsZero() {
		values.Set("created_before", filter.CreatedBefore.UTC().Format(time.RFC3339Nano))
	}
	if filter.Limit > 0 {
		values.Set("limit", strconv.Itoa(filter.Limit))
	}
	return values
}

// ParseFilter decodes query parameters produced by FilterValues.
func ParseFilter(values url.Values) (queue.Filter, error) {
	var filter queue.Filter
	for _, raw := range values["state"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			state, ok := task.ParseState(part)
			if !ok {
				return queue.Filter{}, fmt.Errorf("unknown state %q", part)
			}
			filter.States = append(filter.States, state)
		}
	}
	filter.Namespace = strings.TrimSpace(values.Get("namespace"))
	filter.Name = strings.TrimSpace(values.Get("name"))

	var err error
	if filter.CreatedAfter, err = parseQueryTime(values.Get("created_after")); err != nil {
		return queue.Filter{}, fmt.Errorf("created_after: %w", err)
	}
	if filter.CreatedBefore, err = parseQueryTime(values.Get("created_before")); err != nil {
		return queue.Filter{}, fmt.Errorf("created_before: %w", err)
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return queue.Filter{}, fmt.Errorf("invalid limit %q", raw)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func parseQueryTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
