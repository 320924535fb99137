package testsupport

import (
	"context"
	"os"
	"testing"

	"bgtask/internal/config"
	"bgtask/internal/queue"
	"bgtask/internal/task"
)

// Environment variables that opt tests into networked backends.
const (
	PostgresDSNEnv = "BGTASK_TEST_POSTGRES_DSN"
	MySQLDSNEnv    = "BGTASK_TEST_MYSQL_DSN"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Backends returns a store per available backend: SQLite always, Postgres
// and MySQL when their DSN environment variables are set. Networked stores
// are emptied before use.
func Backends(t *testing.T) map[string]*queue.Store {
	t.Helper()

	stores := map[string]*queue.Store{
		config.DriverSQLite: MustOpenStore(t, NewConfig(t)),
	}
	for driver, env := range map[string]string{
		config.DriverPostgres: PostgresDSNEnv,
		config.DriverMySQL:    MySQLDSNEnv,
	} {
		dsn := os.Getenv(env)
		if dsn == "" {
			continue
		}
		store := MustOpenStore(t, NewConfig(t, WithStore(driver, dsn)))
		wipeTasks(t, store)
		stores[driver] = store
	}
	return stores
}

func wipeTasks(t testing.TB, store *queue.Store) {
	t.Helper()
	ctx := context.Background()
	tasks, err := store.List(ctx, queue.Filter{})
	if err != nil {
		t.Fatalf("list for reset: %v", err)
	}
	for _, tk := range tasks {
		if _, err := store.Delete(ctx, tk.ID); err != nil {
			t.Fatalf("delete for reset: %v", err)
		}
	}
}

// NewTask creates and persists a not_started task.
func NewTask(t testing.TB, store *queue.Store, namespace, name string) *task.Task {
	t.Helper()

	tk := task.New(namespace, name, nil)
	if err := store.Create(context.Background(), tk); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return tk
}
