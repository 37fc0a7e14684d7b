package workflow

import (
	"context"
	"time"

	"dlq/internal/events"
	"dlq/internal/logging"
	"dlq/internal/queue"
)

const persistTimeout = 10 * time.Second

// Status is the scheduler summary returned by GetStatus.
type Status struct {
	ActiveCount      int        `json:"active_count"`
	TotalSpeed       int64      `json:"total_speed"`
	TotalCount       int        `json:"total_count"`
	QueuedCount      int        `json:"queued_count"`
	ConcurrencyLimit int        `json:"concurrency_limit"`
	NextAction       NextAction `json:"next_action"`
	LastError        string     `json:"last_error,omitempty"`
	PendingInput     int        `json:"pending_input"`
}

func (m *Manager) status() Status {
	s := Status{
		ActiveCount:      len(m.active),
		TotalSpeed:       m.totalSpeed(),
		ConcurrencyLimit: m.limit,
		NextAction:       m.nextAction,
	}
	for _, n := range m.tree.Transfers() {
		s.TotalCount++
		switch n.Status {
		case queue.StatusQueued:
			s.QueuedCount++
		case queue.StatusAwaitingCaptchaResponse, queue.StatusAwaitingSettingsResponse:
			s.PendingInput++
		}
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

func (m *Manager) totalSpeed() int64 {
	var total int64
	for id := range m.active {
		if n := m.tree.Get(id); n != nil {
			total += n.Speed
		}
	}
	return total
}

func (m *Manager) publish(evt events.Event) {
	if m.hub == nil {
		return
	}
	if evt.Time.IsZero() {
		evt.Time = m.now()
	}
	m.hub.Publish(evt)
}

func (m *Manager) publishCounters() {
	if count := len(m.active); count != m.lastActive {
		m.lastActive = count
		m.publish(events.Event{Type: events.TypeActiveCount, Count: count})
	}
	if speed := m.totalSpeed(); speed != m.lastSpeed {
		m.lastSpeed = speed
		m.publish(events.Event{Type: events.TypeTotalSpeed, Speed: speed})
	}
}

func (m *Manager) publishInteraction(n *queue.Node) {
	if n.Interaction == nil {
		return
	}
	in := *n.Interaction
	m.transferLogger(n).Info("transfer awaiting input",
		logging.String("kind", string(in.Kind)),
		logging.String("plugin", in.PluginID),
		logging.String("deadline", in.Deadline.Format(time.RFC3339)),
	)
	m.publish(events.Event{
		Type:        events.TypeInteraction,
		TransferID:  n.ID,
		PackageID:   n.Parent,
		Name:        n.Name,
		Status:      n.Status,
		Interaction: &in,
	})
}

func (m *Manager) publishCompleted(n *queue.Node, finalPath string) {
	m.publish(events.Event{
		Type:       events.TypeTransferCompleted,
		TransferID: n.ID,
		PackageID:  n.Parent,
		Name:       n.Name,
		Path:       finalPath,
	})
}

// onTreeChange relays tree notifications and package status changes.
func (m *Manager) onTreeChange(c queue.Change) {
	change := c
	m.publish(events.Event{Type: events.TypeTreeChanged, Change: &change})
	if c.Aspect != "status" || c.ParentID != queue.RootID {
		return
	}
	pkg := m.tree.Get(c.NodeID)
	if pkg == nil {
		return
	}
	m.logger.Debug("package status changed",
		logging.String(logging.FieldPackageID, pkg.ID),
		logging.String(logging.FieldStatus, string(pkg.Status)),
	)
	m.publish(events.Event{
		Type:      events.TypeStatusChanged,
		PackageID: pkg.ID,
		Name:      pkg.Name,
		Status:    pkg.Status,
	})
}

// persist schedules a save for the end of the current task, after finished
// packages have been reaped.
func (m *Manager) persist() {
	m.savePending = true
}

// save writes the tree. Failures are recorded but never stop scheduling.
func (m *Manager) save() {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.Save(ctx, m.tree.Snapshot()); err != nil {
		m.lastErr = err
		m.logger.Error("failed to persist transfer tree",
			logging.Error(err),
			logging.String(logging.FieldEventType, "persist_failed"),
			logging.String(logging.FieldErrorHint, "check that the data directory is writable"),
			logging.String(logging.FieldImpact, "changes since the last save are lost if the daemon stops"),
		)
		return
	}
	m.logger.Debug("transfer tree persisted", logging.Int("packages", len(m.tree.Packages())))
}
