package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path must be set for the sqlite driver")
		}
	case DriverPostgres, DriverMySQL:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the %s driver (or set BGTASK_STORE_DSN)", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver %q is not one of sqlite, postgres, mysql", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateExecutor() error {
	switch c.Executor.Kind {
	case ExecutorPool, ExecutorAsynq:
	default:
		return fmt.Errorf("executor.kind %q is not one of pool, asynq", c.Executor.Kind)
	}
	if c.Executor.Kind == ExecutorAsynq && c.Executor.RedisAddr == "" {
		return errors.New("executor.redis_addr must be set for the asynq executor")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of console, json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
