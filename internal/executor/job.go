package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"bgtask/internal/lifecycle"
)

// ErrInvalidJob rejects jobs missing a name or task id.
var ErrInvalidJob = errors.New("invalid job")

// Job asks an executor to run the body registered under Name for task TaskID.
type Job struct {
	Name    string `json:"name"`
	TaskID  string `json:"task_id"`
	Payload []byte `json:"payload,omitempty"`
}

func (j Job) validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidJob)
	}
	if strings.TrimSpace(j.TaskID) == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidJob)
	}
	return nil
}

// Body is the work behind a job.
type Body func(ctx context.Context, h *lifecycle.Handle, payload []byte) error

// Registry maps job names to bodies.
type Registry struct {
	mu     sync.RWMutex
	bodies map[string]Body
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{bodies: make(map[string]Body)}
}

// Register adds body under name. Names may only be registered once.
func (r *Registry) Register(name string, body Body) error {
	name = strings.TrimSpace(name)
	if name == "" || body == nil {
		return errors.New("register: name and body are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bodies[name]; exists {
		return fmt.Errorf("register: body %q already registered", name)
	}
	r.bodies[name] = body
	return nil
}

// Lookup returns the body registered under name.
func (r *Registry) Lookup(name string) (Body, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	body, ok := r.bodies[name]
	return body, ok
}

// Names lists registered bodies in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bodies))
	for name := range r.bodies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
