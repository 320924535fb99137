package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"bgtask/internal/config"
	"bgtask/internal/daemon"
	"bgtask/internal/testsupport"
)

// unreachableAPI points the CLI at a port nothing listens on so commands
// fall back to the local store.
const unreachableAPI = "http://127.0.0.1:1"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	apiURL     string
}

func setupLocalCLIEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.API.RateLimit = 0
	return &cliTestEnv{
		cfg:        cfg,
		configPath: writeTestConfig(t, cfg),
		apiURL:     unreachableAPI,
	}
}

// setupDaemonCLIEnv starts a daemon that requires the API token written to
// the CLI's config file.
func setupDaemonCLIEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	env := setupLocalCLIEnv(t, testsupport.WithAPIToken("cli-secret"))

	store := testsupport.MustOpenStore(t, env.cfg)
	d, err := daemon.New(env.cfg, store, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Stop()
		d.Close()
	})
	env.apiURL = "http://" + d.APIAddress()
	return env
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath, "--api", env.apiURL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("bgtask %s: %v (stderr: %s)", strings.Join(args, " "), err, stderr)
	}
	return out
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
