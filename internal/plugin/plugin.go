package plugin

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoPlugin reports that no registered service handles a URL.
	ErrNoPlugin = errors.New("no plugin for url")
	// ErrDuplicatePlugin reports a second registration under the same ID.
	ErrDuplicatePlugin = errors.New("plugin already registered")
	// ErrUnknownCallback reports a captcha or settings callback the plugin never issued.
	ErrUnknownCallback = errors.New("unknown callback")
)

// Settings carries per-plugin configuration values.
type Settings map[string]any

// URLResult is one downloadable item discovered by CheckURL.
type URLResult struct {
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size,omitempty"`
	PluginID string `json:"plugin_id,omitempty"`
}

// Result is the answer to a download request or follow-up submission.
type Result interface {
	result()
}

// DownloadRequest is the final, fetchable request.
type DownloadRequest struct {
	URL      string
	Method   string
	Headers  map[string]string
	PostData string
	FileName string
	Size     int64
}

// WaitRequest asks the caller to retry after Delay. Long waits release the
// caller's concurrency slot.
type WaitRequest struct {
	Delay   time.Duration
	Long    bool
	Message string
}

// CaptchaRequest asks for a captcha solution.
type CaptchaRequest struct {
	CaptchaType string
	Data        string
	Callback    string
}

// SettingsField describes one input of a SettingsRequest.
type SettingsField struct {
	Key     string
	Label   string
	Type    string
	Value   any
	Options []string
}

// SettingsRequest asks for a set of values.
type SettingsRequest struct {
	Title    string
	Fields   []SettingsField
	Callback string
}

func (DownloadRequest) result() {}
func (WaitRequest) result()     {}
func (CaptchaRequest) result()  {}
func (SettingsRequest) result() {}

// Service resolves URLs for one site or protocol.
type Service interface {
	ID() string
	Matches(rawURL string) bool
	CheckURL(ctx context.Context, rawURL string, settings Settings) ([]URLResult, error)
	GetDownloadRequest(ctx context.Context, rawURL string, settings Settings) (Result, error)
	SubmitCaptchaResponse(ctx context.Context, callback, response string) (Result, error)
	SubmitSettingsResponse(ctx context.Context, callback string, values map[string]any) (Result, error)
}
