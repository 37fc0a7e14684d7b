package ipc

import (
	"dlq/internal/plugin"
	"dlq/internal/preflight"
	"dlq/internal/queue"
	"dlq/internal/workflow"
)

// Transfer is the wire form of a tree node.
type Transfer = queue.Record

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the download session.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse combines daemon and scheduler status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LockPath     string             `json:"lock_path"`
	DatabasePath string             `json:"database_path"`
	Workflow     workflow.Status    `json:"workflow"`
	Preflight    []preflight.Result `json:"preflight"`
}

// AppendRequest adds transfers.
type AppendRequest = workflow.AppendRequest

// AppendResponse lists the new transfer IDs in request order.
type AppendResponse struct {
	IDs []string `json:"ids"`
}

// CheckRequest asks plugins to expand URLs without adding them.
type CheckRequest struct {
	URLs []string `json:"urls"`
}

// CheckResponse carries the expanded results.
type CheckResponse struct {
	Results []plugin.URLResult `json:"results"`
}

// ListRequest pages through the packages under the root.
type ListRequest struct {
	Offset   int  `json:"offset"`
	Limit    int  `json:"limit"`
	Children bool `json:"children"`
}

// ListResponse holds records.
type ListResponse struct {
	Transfers []Transfer `json:"transfers"`
}

// DescribeRequest fetches one node.
type DescribeRequest struct {
	ID       string `json:"id"`
	Children bool   `json:"children"`
}

// DescribeResponse holds the node.
type DescribeResponse struct {
	Transfer Transfer `json:"transfer"`
}

// SearchRequest matches a property against a value.
type SearchRequest struct {
	Property string `json:"property"`
	Value    string `json:"value"`
	Match    string `json:"match"`
}

// BatchRequest applies one command to several nodes.
type BatchRequest struct {
	IDs         []string `json:"ids"`
	DeleteFiles bool     `json:"delete_files,omitempty"`
}

// BatchResponse counts successes and records failures by ID.
type BatchResponse struct {
	Updated int               `json:"updated"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// EmptyRequest is used by commands without arguments.
type EmptyRequest struct{}

// OKResponse reports whether a command took effect.
type OKResponse struct {
	OK bool `json:"ok"`
}

// MoveRequest moves a node to index within parent.
type MoveRequest struct {
	ID     string `json:"id"`
	Parent string `json:"parent"`
	Index  int    `json:"index"`
}

// SetPropertiesRequest assigns writable properties on one node.
type SetPropertiesRequest struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// InteractionsResponse lists pending captcha and settings requests.
type InteractionsResponse struct {
	Interactions []workflow.PendingInteraction `json:"interactions"`
}

// CaptchaRequest answers a pending captcha.
type CaptchaRequest struct {
	ID       string `json:"id"`
	Response string `json:"response"`
}

// SettingsRequest answers a pending settings request.
type SettingsRequest struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// ConcurrencyRequest sets the concurrency limit.
type ConcurrencyRequest struct {
	Limit int `json:"limit"`
}

// ConcurrencyResponse carries the applied, clamped limit.
type ConcurrencyResponse struct {
	Limit int `json:"limit"`
}

// NextActionRequest sets what happens once the queue drains.
type NextActionRequest struct {
	Action string `json:"action"`
}

// LogTailRequest pages through the daemon log.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// DatabaseHealthRequest requests database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health.
type DatabaseHealthResponse = queue.DatabaseHealth

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the result of a notification test.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
