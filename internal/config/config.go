package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, socket, and bind address configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	DownloadDir string `toml:"download_dir"`
	SocketPath  string `toml:"socket_path"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Transfers contains scheduler and transfer defaults. MaxSpeed is a humanized
// byte rate per second ("2MiB", "500kB"); empty or "0" disables the cap.
type Transfers struct {
	MaxConcurrent      int    `toml:"max_concurrent"`
	NextAction         string `toml:"next_action"`
	QueueDelayMillis   int    `toml:"queue_delay_ms"`
	DefaultCategory    string `toml:"default_category"`
	CreateSubfolders   bool   `toml:"create_subfolders"`
	StartAutomatically bool   `toml:"start_automatically"`
	CustomCommand      string `toml:"custom_command"`
	MaxSpeed           string `toml:"max_speed"`
	ProgressIntervalMS int    `toml:"progress_interval_ms"`
	CaptchaTimeout     int    `toml:"captcha_timeout"`
	SettingsTimeout    int    `toml:"settings_timeout"`
	RequestTimeout     int    `toml:"request_timeout"`
	UserAgent          string `toml:"user_agent"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Interaction    bool   `toml:"interaction"`
	QueueCompleted bool   `toml:"queue_completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dlq.
//
// Sections:
//   - Paths: data, log, and download directories plus socket and API bind
//   - Transfers: concurrency limit, next action, timeouts, bandwidth cap
//   - Categories: category name to download directory
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths             `toml:"paths"`
	Transfers     Transfers         `toml:"transfers"`
	Categories    map[string]string `toml:"categories"`
	Notifications Notifications     `toml:"notifications"`
	Logging       Logging           `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dlq.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.DownloadDir, c.IncompleteDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath is the SQLite file holding the persisted transfer tree.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "dlq.db")
}

// LockPath is the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "dlqd.lock")
}

// PIDPath holds the running daemon's process ID.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "dlqd.pid")
}

// LogPath is the daemon log file, or "" when file logging is disabled.
func (c *Config) LogPath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "dlqd.log")
}

// IncompleteDir holds partial downloads, one file per transfer ID.
func (c *Config) IncompleteDir() string {
	return filepath.Join(c.Paths.DownloadDir, ".incomplete")
}

// CategoryDir resolves the destination directory for a category, falling back
// to the download directory for unknown or empty categories.
func (c *Config) CategoryDir(category string) string {
	if dir, ok := c.Categories[strings.TrimSpace(category)]; ok && dir != "" {
		return dir
	}
	return c.Paths.DownloadDir
}

// QueueDelay is the coalescing delay between a transfer being queued and the
// scheduler re-evaluating admission.
func (c *Config) QueueDelay() time.Duration {
	return time.Duration(c.Transfers.QueueDelayMillis) * time.Millisecond
}

func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Transfers.ProgressIntervalMS) * time.Millisecond
}

func (c *Config) CaptchaTimeout() time.Duration {
	return time.Duration(c.Transfers.CaptchaTimeout) * time.Second
}

func (c *Config) SettingsTimeout() time.Duration {
	return time.Duration(c.Transfers.SettingsTimeout) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Transfers.RequestTimeout) * time.Second
}

// MaxSpeedBytesPerSec returns the parsed bandwidth cap; zero means unlimited.
func (c *Config) MaxSpeedBytesPerSec() int64 {
	rate, err := parseRate(c.Transfers.MaxSpeed)
	if err != nil {
		return 0
	}
	return rate
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
