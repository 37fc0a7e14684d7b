package notifications

import (
	"context"
	"log/slog"

	"dlq/internal/events"
	"dlq/internal/logging"
	"dlq/internal/queue"
)

// Forward publishes hub events to svc until ctx is done or sub closes.
func Forward(ctx context.Context, svc Service, sub <-chan events.Event, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "notifications")
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-sub:
			if !ok {
				return nil
			}
			event, data, ok := translate(evt)
			if !ok {
				continue
			}
			if err := svc.Publish(ctx, event, data); err != nil {
				logging.WarnWithContext(logger, "notification failed", "notification_failed",
					logging.String("notification", string(event)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
					logging.String(logging.FieldImpact, "push notification not delivered"),
				)
			}
		}
	}
}

func translate(evt events.Event) (Event, Payload, bool) {
	switch evt.Type {
	case events.TypeInteraction:
		if evt.Interaction == nil {
			return "", nil, false
		}
		return EventInteractionRequired, Payload{
			"name":   evt.Name,
			"kind":   string(evt.Interaction.Kind),
			"plugin": evt.Interaction.PluginID,
		}, true
	case events.TypeTransferFailed:
		return EventError, Payload{"name": evt.Name, "error": evt.Error}, true
	case events.TypeStatusChanged:
		if evt.TransferID == "" && evt.PackageID != "" && evt.Status == queue.StatusCompleted {
			return EventPackageCompleted, Payload{"name": evt.Name}, true
		}
		return "", nil, false
	case events.TypeQueueDrained:
		return EventQueueCompleted, Payload{
			"completed": evt.Completed,
			"failed":    evt.Failed,
			"duration":  evt.Duration,
		}, true
	default:
		return "", nil, false
	}
}
