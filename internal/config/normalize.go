package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeExecutor()
	c.normalizeEvents()
	c.normalizeAPI()
	c.normalizeLogging()
	c.normalizeTasks()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("BGTASK_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "", "sqlite3":
		c.Store.Driver = DriverSQLite
	case "postgresql", "pgx":
		c.Store.Driver = DriverPostgres
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("BGTASK_STORE_DSN"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
	if c.Store.Driver == DriverSQLite {
		if strings.TrimSpace(c.Store.Path) == "" {
			c.Store.Path = filepath.Join(c.Paths.DataDir, "tasks.db")
		}
		var err error
		if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
			return fmt.Errorf("store.path: %w", err)
		}
	}
	if c.Store.BusyTimeoutMS <= 0 {
		c.Store.BusyTimeoutMS = defaultBusyTimeoutMS
	}
	if c.Store.MaxOpenConns <= 0 {
		c.Store.MaxOpenConns = defaultMaxOpenConns
	}
	return nil
}

func redisFallback(value string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv("BGTASK_REDIS_ADDR"); ok && strings.TrimSpace(env) != "" {
		return strings.TrimSpace(env)
	}
	return defaultRedisAddr
}

func (c *Config) normalizeExecutor() {
	c.Executor.Kind = strings.ToLower(strings.TrimSpace(c.Executor.Kind))
	if c.Executor.Kind == "" {
		c.Executor.Kind = ExecutorPool
	}
	if c.Executor.Workers <= 0 {
		c.Executor.Workers = defaultExecutorWorkers
	}
	if c.Executor.QueueSize <= 0 {
		c.Executor.QueueSize = defaultExecutorQueueSize
	}
	c.Executor.RedisAddr = redisFallback(c.Executor.RedisAddr)
	c.Executor.AsynqQueue = strings.TrimSpace(c.Executor.AsynqQueue)
	if c.Executor.AsynqQueue == "" {
		c.Executor.AsynqQueue = defaultAsynqQueue
	}
}

func (c *Config) normalizeEvents() {
	c.Events.RedisAddr = redisFallback(c.Events.RedisAddr)
	c.Events.Channel = strings.TrimSpace(c.Events.Channel)
	if c.Events.Channel == "" {
		c.Events.Channel = DefaultEventsChannel
	}
}

func (c *Config) normalizeAPI() {
	c.API.URL = strings.TrimSpace(c.API.URL)
	if c.API.Burst <= 0 {
		c.API.Burst = defaultAPIBurst
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeTasks() {
	if c.Tasks.StaleAfterMinutes <= 0 {
		c.Tasks.StaleAfterMinutes = defaultStaleAfterMinutes
	}
	if c.Tasks.ListLimit <= 0 {
		c.Tasks.ListLimit = defaultListLimit
	}
}
