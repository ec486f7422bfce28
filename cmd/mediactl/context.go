package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"media-registry/internal/database"
	"media-registry/internal/startup"
	"media-registry/internal/throttle"
)

type commandContext struct {
	configFlag   *string
	databaseFlag *string

	configOnce sync.Once
	config     *startup.Config
	configErr  error
}

func newCommandContext(configFlag, databaseFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		databaseFlag: databaseFlag,
	}
}

// ensureConfig loads the configuration the server would use, then applies
// the --database override.
func (c *commandContext) ensureConfig() (*startup.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		if path == "" {
			path = os.Getenv("CONFIG_FILE")
		}
		cfg, err := startup.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if db := strings.TrimSpace(*c.databaseFlag); db != "" {
			abs, err := filepath.Abs(db)
			if err != nil {
				c.configErr = fmt.Errorf("resolve database path: %w", err)
				return
			}
			cfg.DatabasePath = abs
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the registry for the duration of fn.
func (c *commandContext) withStore(ctx context.Context, fn func(*database.Database) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	db, err := database.New(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open registry %s: %w", cfg.DatabasePath, err)
	}
	defer db.Close()
	return fn(db)
}

// controller returns an adaptive controller that stops sampling with ctx.
func (c *commandContext) controller(ctx context.Context) (*throttle.Controller, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	ctrl := throttle.New(cfg.ThrottleConfig(), throttle.NewSystemSampler())
	ctrl.Start(ctx)
	return ctrl, nil
}
