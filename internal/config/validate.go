package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTransfers(); err != nil {
		return err
	}
	if err := c.validateCategories(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DownloadDir == "" {
		return errors.New("paths.download_dir must be set")
	}
	if c.Paths.APIBind != "" {
		if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
			return fmt.Errorf("paths.api_bind: %w", err)
		}
	}
	return nil
}

func (c *Config) validateTransfers() error {
	if c.Transfers.MaxConcurrent < 1 || c.Transfers.MaxConcurrent > MaxConcurrentLimit {
		return fmt.Errorf("transfers.max_concurrent must be between 1 and %d", MaxConcurrentLimit)
	}
	if !slices.Contains([]string{"continue", "pause", "quit"}, c.Transfers.NextAction) {
		return fmt.Errorf("transfers.next_action must be one of continue, pause, quit (got %q)", c.Transfers.NextAction)
	}
	return nil
}

func (c *Config) validateCategories() error {
	if c.Transfers.DefaultCategory == "" {
		return nil
	}
	if _, ok := c.Categories[c.Transfers.DefaultCategory]; !ok {
		return fmt.Errorf("transfers.default_category %q is not defined under [categories]", c.Transfers.DefaultCategory)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format must be console, json, or auto (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}
