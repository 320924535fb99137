package testsupport

import (
	"path/filepath"
	"testing"

	"bgtask/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.Path = filepath.Join(base, "data", "tasks.db")
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStore switches the config to a networked backend.
func WithStore(driver, dsn string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Driver = driver
		b.cfg.Store.DSN = dsn
	}
}

// WithAsynq selects the Redis-backed executor at addr.
func WithAsynq(addr string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Executor.Kind = config.ExecutorAsynq
		b.cfg.Executor.RedisAddr = addr
	}
}

// WithEvents enables Redis event publication at addr.
func WithEvents(addr string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Events.Enabled = true
		b.cfg.Events.RedisAddr = addr
	}
}

// WithAPIToken sets the bearer token the daemon API requires.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
