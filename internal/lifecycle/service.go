package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bgtask/internal/events"
	"bgtask/internal/logging"
	"bgtask/internal/task"
)

// Store is the persistence the lifecycle layer needs. *queue.Store
// satisfies it.
type Store interface {
	Create(ctx context.Context, t *task.Task) error
	Get(ctx context.Context, id string) (*task.Task, error)
	WithLock(ctx context.Context, id string, fn func(*task.Task) error) (*task.Task, error)
}

// Service runs guarded task operations against a Store.
type Service struct {
	store     Store
	logger    *slog.Logger
	encoder   task.ResultEncoder
	clock     func() time.Time
	publisher events.Publisher
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger used for transition logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResultEncoder replaces task.JSONEncoder for Succeed results.
func WithResultEncoder(enc task.ResultEncoder) Option {
	return func(s *Service) {
		if enc != nil {
			s.encoder = enc
		}
	}
}

// WithClock overrides time.Now for transition timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPublisher sends committed transitions to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// NewService builds a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		logger:    logging.NewNop(),
		encoder:   task.JSONEncoder,
		clock:     time.Now,
		publisher: events.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "lifecycle")
	return s
}

// Create persists a new not_started task and returns a handle to it.
func (s *Service) Create(ctx context.Context, namespace, name string, ref *task.Ref) (*Handle, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("task name is required")
	}
	t := task.New(namespace, name, ref)
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	logging.WithContext(ctx, s.logger).Debug("task created",
		logging.String(logging.FieldTaskID, t.ID),
		logging.String(logging.FieldTaskName, t.Name),
		logging.String(logging.FieldNamespace, t.Namespace),
	)
	return s.Handle(t.ID), nil
}

// Load returns the current record. Inside a locked context it returns the
// locked in-memory copy.
func (s *Service) Load(ctx context.Context, id string) (*task.Task, error) {
	if tok := lockFrom(ctx, id); tok != nil {
		return tok.task, nil
	}
	return s.store.Get(ctx, id)
}

// Handle returns a handle bound to task id. The task is not loaded.
func (s *Service) Handle(id string) *Handle {
	return &Handle{svc: s, id: id}
}

func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}
