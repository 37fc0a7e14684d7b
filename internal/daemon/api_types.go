package daemon

import (
	"strconv"
	"strings"

	"dlq/internal/plugin"
	"dlq/internal/queue"
	"dlq/internal/workflow"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse reports whether a command took effect.
type OKResponse struct {
	OK bool `json:"ok"`
}

// TransfersResponse lists records.
type TransfersResponse struct {
	Transfers []queue.Record `json:"transfers"`
}

// AppendResponse lists the IDs of the appended transfers.
type AppendResponse struct {
	IDs []string `json:"ids"`
}

// CheckRequest asks the plugins to expand URLs.
type CheckRequest struct {
	URLs []string `json:"urls"`
}

// CheckResponse carries the expanded URL results.
type CheckResponse struct {
	Results []plugin.URLResult `json:"results"`
}

// MoveRequest names the destination parent and index.
type MoveRequest struct {
	Parent string `json:"parent"`
	Index  int    `json:"index"`
}

// CaptchaRequest answers a pending captcha.
type CaptchaRequest struct {
	Response string `json:"response"`
}

// SettingsRequest answers a pending settings request.
type SettingsRequest struct {
	Values map[string]any `json:"values"`
}

// InteractionsResponse lists pending captcha and settings requests.
type InteractionsResponse struct {
	Interactions []workflow.PendingInteraction `json:"interactions"`
}

// ConcurrencyRequest sets the concurrency limit; the reply carries the
// applied, clamped value.
type ConcurrencyRequest struct {
	Limit int `json:"limit"`
}

// NextActionRequest sets the next action.
type NextActionRequest struct {
	Action workflow.NextAction `json:"action"`
}

func intParam(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func boolParam(value string) bool {
	value = strings.TrimSpace(value)
	return value == "1" || strings.EqualFold(value, "true") || strings.EqualFold(value, "yes")
}
