package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"bgtask/internal/api"
	"bgtask/internal/config"
	"bgtask/internal/executor"
	"bgtask/internal/logging"
	"bgtask/internal/task"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind      string
	listLimit int
	logger    *slog.Logger
	daemon    *Daemon
	tasks     *api.TaskService
	handler   http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		listLimit: cfg.Tasks.ListLimit,
		logger:    logger,
		daemon:    d,
		tasks:     d.tasks,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/tasks", srv.handleTasks)
	mux.HandleFunc("/api/tasks/fail", srv.handleFailTasks)
	mux.HandleFunc("/api/tasks/", srv.handleTask)

	var handler http.Handler = authMiddleware(cfg.Paths.APIToken, mux.ServeHTTP)
	handler = rateLimitMiddleware(cfg.API.RateLimit, cfg.API.Burst, handler)
	srv.handler = correlationMiddleware(handler)
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTasks(w, r)
	case http.MethodPost:
		s.createTask(w, r)
	default:
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := api.ParseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit == 0 {
		filter.Limit = s.listLimit
	}
	tasks, err := s.tasks.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []api.Task{}
	}
	s.writeJSON(w, r, http.StatusOK, api.TaskListResponse{Tasks: tasks})
}

func (s *apiServer) createTask(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	dto, err := s.tasks.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusCreated, api.TaskResponse{Task: *dto})
}

func (s *apiServer) handleFailTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.FailTasksRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.IDs) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "ids are required")
		return
	}
	result, err := api.FailTasksByID(r.Context(), s.tasks, req.IDs, req.Reason)
	if err != nil {
		s.writeError(w, r, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, r, http.StatusNotFound, "task not found")
		return
	}
	dto, err := s.tasks.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if dto == nil {
		s.writeError(w, r, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, r, http.StatusOK, api.TaskResponse{Task: *dto})
}

func decodeBody(r *http.Request, out any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is required")
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, task.ErrIllegalStateTransition):
		return http.StatusConflict
	case errors.Is(err, executor.ErrInvalidJob), errors.Is(err, executor.ErrUnknownBody):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrActionsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		logging.WithContext(r.Context(), s.log()).Error("failed to encode response", logging.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.log()).Error("api request failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.String("error", message),
		)
	}
	s.writeJSON(w, r, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
