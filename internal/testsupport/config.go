package testsupport

import (
	"path/filepath"
	"testing"

	"dlq/internal/config"
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
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.SocketPath = filepath.Join(base, "data", "dlq.sock")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Transfers.QueueDelayMillis = 0
	cfgVal.Transfers.ProgressIntervalMS = 10
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMaxConcurrent sets transfers.max_concurrent.
func WithMaxConcurrent(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transfers.MaxConcurrent = n
	}
}

// WithNextAction sets transfers.next_action.
func WithNextAction(action string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transfers.NextAction = action
	}
}

// WithCategory registers a category directory below the temp root.
func WithCategory(name string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Categories == nil {
			b.cfg.Categories = map[string]string{}
		}
		b.cfg.Categories[name] = filepath.Join(b.baseDir, "categories", name)
	}
}

// WithAPIToken sets paths.api_token.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
