package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"bgtask/internal/api"
	"bgtask/internal/config"
	"bgtask/internal/logging"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) apiBaseURL() string {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimRight(strings.TrimSpace(*c.apiFlag), "/")
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return ""
	}
	return cfg.APIBaseURL()
}

func (c *commandContext) apiClient() *api.Client {
	token := ""
	if cfg, err := c.ensureConfig(); err == nil {
		token = cfg.Paths.APIToken
	}
	return api.NewClient(c.apiBaseURL(), token, nil)
}

// cliLogger keeps CLI output clean: only warnings and errors reach stderr.
func (c *commandContext) cliLogger() *slog.Logger {
	cfg, err := c.ensureConfig()
	format := "console"
	if err == nil {
		format = cfg.Logging.Format
	}
	logger, err := logging.New(logging.Options{Level: "warn", Format: format, OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// withBackend runs fn against the daemon when it answers and against the
// local store otherwise.
func (c *commandContext) withBackend(cmd *cobra.Command, fn func(taskBackend) error) error {
	client := c.apiClient()
	if _, err := client.Status(cmd.Context()); err == nil {
		return fn(&daemonBackend{client: client})
	} else if !api.IsUnavailable(err) {
		return fmt.Errorf("query daemon: %w", err)
	}
	return c.withLocal(cmd.Context(), func(local *localBackend) error {
		return fn(local)
	})
}

func (c *commandContext) withLocal(ctx context.Context, fn func(*localBackend) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	local, err := openLocalBackend(cfg, c.cliLogger())
	if err != nil {
		return err
	}
	runErr := fn(local)
	closeErr := local.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
