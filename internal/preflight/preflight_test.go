package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"bgtask/internal/config"
	"bgtask/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRedis_OK(t *testing.T) {
	srv := miniredis.RunT(t)
	result := CheckRedis(context.Background(), "Redis", srv.Addr())
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckRedis_Unreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	result := CheckRedis(context.Background(), "Redis", addr)
	if result.Passed {
		t.Fatal("expected failure for closed server")
	}
}

func TestCheckRedis_MissingAddr(t *testing.T) {
	result := CheckRedis(context.Background(), "Redis", " ")
	if result.Passed || result.Detail != "missing address" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCheckStore_SQLite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	result := CheckStore(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	results := RunAll(context.Background(), cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_ProbesRedisOnceWhenShared(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testsupport.NewConfig(t, testsupport.WithAsynq(srv.Addr()), testsupport.WithEvents(srv.Addr()))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	results := RunAll(context.Background(), cfg)
	redisChecks := 0
	for _, r := range results {
		if r.Name == "Executor Redis" || r.Name == "Events Redis" {
			redisChecks++
			if !r.Passed {
				t.Fatalf("redis check failed: %s", r.Detail)
			}
		}
	}
	if redisChecks != 1 {
		t.Fatalf("expected one redis check, got %d", redisChecks)
	}
}

func TestRunAll_EventsOnSeparateServer(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testsupport.NewConfig(t, testsupport.WithEvents(srv.Addr()))
	cfg.Executor.Kind = config.ExecutorPool
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	results := RunAll(context.Background(), cfg)
	if len(results) != 4 || results[3].Name != "Events Redis" || !results[3].Passed {
		t.Fatalf("unexpected results: %+v", results)
	}
}
