package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTransfers(); err != nil {
		return err
	}
	if err := c.normalizeCategories(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
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
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.DataDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeTransfers() error {
	t := &c.Transfers
	t.NextAction = strings.ToLower(strings.TrimSpace(t.NextAction))
	if t.NextAction == "" {
		t.NextAction = defaultNextAction
	}
	if t.QueueDelayMillis < 0 {
		t.QueueDelayMillis = 0
	}
	if t.ProgressIntervalMS <= 0 {
		t.ProgressIntervalMS = defaultProgressIntervalMS
	}
	if t.CaptchaTimeout <= 0 {
		t.CaptchaTimeout = defaultCaptchaTimeoutSeconds
	}
	if t.SettingsTimeout <= 0 {
		t.SettingsTimeout = defaultSettingsTimeoutSeconds
	}
	if t.RequestTimeout <= 0 {
		t.RequestTimeout = defaultRequestTimeoutSeconds
	}
	t.DefaultCategory = strings.TrimSpace(t.DefaultCategory)
	t.CustomCommand = strings.TrimSpace(t.CustomCommand)
	t.UserAgent = strings.TrimSpace(t.UserAgent)
	if t.UserAgent == "" {
		t.UserAgent = defaultUserAgent
	}

	t.MaxSpeed = strings.TrimSpace(t.MaxSpeed)
	if _, err := parseRate(t.MaxSpeed); err != nil {
		return fmt.Errorf("transfers.max_speed: %w", err)
	}
	return nil
}

// parseRate reads a humanized byte count ("2MiB", "500 kB"); empty and "0" mean unlimited.
func parseRate(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return 0, nil
	}
	rate, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, err
	}
	return int64(rate), nil
}

func (c *Config) normalizeCategories() error {
	if c.Categories == nil {
		c.Categories = map[string]string{}
		return nil
	}
	normalized := make(map[string]string, len(c.Categories))
	for name, dir := range c.Categories {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(dir))
		if err != nil {
			return fmt.Errorf("categories.%s: %w", name, err)
		}
		normalized[name] = expanded
	}
	c.Categories = normalized
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
