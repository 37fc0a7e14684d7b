package config

const (
	defaultConfigPath             = "~/.config/dlq/config.toml"
	defaultDataDir                = "~/.local/share/dlq"
	defaultLogDir                 = "~/.local/share/dlq/logs"
	defaultDownloadDir            = "~/Downloads"
	defaultSocketName             = "dlq.sock"
	defaultAPIBind                = "127.0.0.1:7489"
	defaultMaxConcurrent          = 1
	defaultNextAction             = "continue"
	defaultQueueDelayMillis       = 1000
	defaultProgressIntervalMS     = 1000
	defaultCaptchaTimeoutSeconds  = 120
	defaultSettingsTimeoutSeconds = 300
	defaultRequestTimeoutSeconds  = 30
	defaultUserAgent              = "dlq/0.1"
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"

	// MaxConcurrentLimit bounds transfers.max_concurrent and runtime limit changes.
	MaxConcurrentLimit = 20
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			DownloadDir: defaultDownloadDir,
			APIBind:     defaultAPIBind,
		},
		Transfers: Transfers{
			MaxConcurrent:      defaultMaxConcurrent,
			NextAction:         defaultNextAction,
			QueueDelayMillis:   defaultQueueDelayMillis,
			StartAutomatically: true,
			ProgressIntervalMS: defaultProgressIntervalMS,
			CaptchaTimeout:     defaultCaptchaTimeoutSeconds,
			SettingsTimeout:    defaultSettingsTimeoutSeconds,
			RequestTimeout:     defaultRequestTimeoutSeconds,
			UserAgent:          defaultUserAgent,
		},
		Categories: map[string]string{},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Interaction:    true,
			QueueCompleted: true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
