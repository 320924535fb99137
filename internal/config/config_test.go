package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"bgtask/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BGTASK_STORE_DSN", "")
	t.Setenv("BGTASK_REDIS_ADDR", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "bgtask")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Store.Driver != config.DriverSQLite {
		t.Fatalf("unexpected driver %q", cfg.Store.Driver)
	}
	if cfg.Store.Path != filepath.Join(wantData, "tasks.db") {
		t.Fatalf("unexpected store path %q", cfg.Store.Path)
	}
	if cfg.Executor.Kind != config.ExecutorPool {
		t.Fatalf("unexpected executor kind %q", cfg.Executor.Kind)
	}
	if cfg.APIBaseURL() != "http://127.0.0.1:7491" {
		t.Fatalf("unexpected api url %q", cfg.APIBaseURL())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist", dir)
		}
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BGTASK_STORE_DSN", "")
	t.Setenv("BGTASK_REDIS_ADDR", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := struct {
		Paths    map[string]any `toml:"paths"`
		Store    map[string]any `toml:"store"`
		Executor map[string]any `toml:"executor"`
		Logging  map[string]any `toml:"logging"`
	}{
		Paths:    map[string]any{"data_dir": "~/tasks", "api_bind": "0.0.0.0:9000"},
		Store:    map[string]any{"driver": "PostgreSQL", "dsn": "postgres://localhost/bg"},
		Executor: map[string]any{"kind": "asynq", "workers": 2},
		Logging:  map[string]any{"format": "JSON", "level": "Debug"},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "tasks") {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
	if cfg.Store.Driver != config.DriverPostgres {
		t.Fatalf("expected driver alias to normalize, got %q", cfg.Store.Driver)
	}
	if cfg.Executor.Kind != config.ExecutorAsynq || cfg.Executor.Workers != 2 {
		t.Fatalf("unexpected executor %+v", cfg.Executor)
	}
	if cfg.Executor.AsynqQueue != "bgtask" {
		t.Fatalf("expected default asynq queue, got %q", cfg.Executor.AsynqQueue)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BGTASK_STORE_DSN", "user:pass@tcp(db:3306)/bg?parseTime=true")
	t.Setenv("BGTASK_REDIS_ADDR", "redis:6380")

	cfg := config.Default()
	cfg.Store.Driver = "mysql"
	cfg.Executor.RedisAddr = ""
	cfg.Events.RedisAddr = ""
	path := filepath.Join(t.TempDir(), "config.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !strings.HasPrefix(loaded.Store.DSN, "user:pass@tcp(db:3306)") {
		t.Fatalf("expected DSN from env, got %q", loaded.Store.DSN)
	}
	if loaded.Executor.RedisAddr != "redis:6380" || loaded.Events.RedisAddr != "redis:6380" {
		t.Fatalf("expected redis addr from env, got %q / %q", loaded.Executor.RedisAddr, loaded.Events.RedisAddr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"driver", func(c *config.Config) { c.Store.Driver = "oracle" }, "store.driver"},
		{"dsn", func(c *config.Config) { c.Store.Driver = config.DriverMySQL; c.Store.DSN = "" }, "store.dsn"},
		{"executor", func(c *config.Config) { c.Executor.Kind = "fork" }, "executor.kind"},
		{"bind", func(c *config.Config) { c.Paths.APIBind = "nonsense" }, "paths.api_bind"},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"rate", func(c *config.Config) { c.API.RateLimit = -1 }, "api.rate_limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Store.Path = "/tmp/tasks.db"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BGTASK_STORE_DSN", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.API.RateLimit != 20 || cfg.Tasks.ListLimit != 200 {
		t.Fatalf("unexpected sample values %+v %+v", cfg.API, cfg.Tasks)
	}
}
