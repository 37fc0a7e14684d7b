package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dlq/internal/config"
)

const userAgent = "dlq/0.1"

// Event enumerates notification kinds.
type Event string

const (
	EventInteractionRequired Event = "interaction_required"
	EventPackageCompleted    Event = "package_completed"
	EventQueueCompleted      Event = "queue_completed"
	EventError               Event = "error"
	EventTest                Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]any

// Service defines the notification surface exposed to the daemon.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventInteractionRequired: cfg.Notifications.Interaction,
			EventPackageCompleted:    cfg.Notifications.QueueCompleted,
			EventQueueCompleted:      cfg.Notifications.QueueCompleted,
			EventError:               cfg.Notifications.Errors,
			EventTest:                true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventInteractionRequired:
		kind := str(data, "kind")
		action := "Captcha"
		if kind == "settings" {
			action = "Settings"
		}
		return payload{
			title:    "dlq - " + action + " Required",
			message:  fmt.Sprintf("🔐 %s needs a %s response (%s)", str(data, "name"), kind, str(data, "plugin")),
			tags:     []string{"dlq", "interaction", kind},
			priority: "high",
		}, true
	case EventPackageCompleted:
		return payload{
			title:   "dlq - Package Complete",
			message: fmt.Sprintf("✅ Downloaded: %s", str(data, "name")),
			tags:    []string{"dlq", "package", "completed"},
		}, true
	case EventQueueCompleted:
		completed, _ := data["completed"].(int)
		failed, _ := data["failed"].(int)
		duration, _ := data["duration"].(time.Duration)
		duration = max(duration.Round(time.Second), 0)
		if failed == 0 {
			return payload{
				title:   "dlq - Queue Complete",
				message: fmt.Sprintf("Queue complete: %d transfers finished in %s", completed, duration),
				tags:    []string{"dlq", "queue", "completed"},
			}, true
		}
		return payload{
			title:   "dlq - Queue Complete (with errors)",
			message: fmt.Sprintf("Queue complete: %d succeeded, %d failed in %s", completed, failed, duration),
			tags:    []string{"dlq", "queue", "completed"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := str(data, "name"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if msg := str(data, "error"); msg != "" {
			b.WriteString(msg)
		} else {
			b.WriteString("unknown")
		}
		return payload{
			title:    "dlq - Error",
			message:  b.String(),
			tags:     []string{"dlq", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "dlq - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"dlq", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func str(data Payload, key string) string {
	if v, ok := data[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
