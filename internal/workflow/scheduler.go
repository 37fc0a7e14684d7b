package workflow

import (
	"context"
	"time"

	"dlq/internal/events"
	"dlq/internal/logging"
	"dlq/internal/queue"
)

// armQueue (re)starts the coalescing admission timer. With no delay the pass
// runs once the current task finishes.
func (m *Manager) armQueue() {
	if m.queueDelay <= 0 {
		m.pendingStart = true
		return
	}
	if m.queueTimer != nil {
		m.queueTimer.Stop()
	}
	m.queueTimer = time.AfterFunc(m.queueDelay, func() {
		m.post(m.startNext)
	})
}

// startNext admits queued transfers, highest priority band first and tree
// order within a band, until the active set reaches the limit.
func (m *Manager) startNext() {
	if !m.tree.HasPackages() {
		m.logger.Debug("transfer queue is empty")
		m.persist()
		m.checkDrained()
		return
	}
	if len(m.active) >= m.limit {
		m.logger.Debug("concurrency limit reached", logging.Int("limit", m.limit))
		return
	}

	var queued []*queue.Node
	for _, n := range m.tree.Transfers() {
		if n.Status != queue.StatusQueued {
			continue
		}
		if _, busy := m.unwinding[n.ID]; busy {
			continue
		}
		queued = append(queued, n)
	}
	if len(queued) == 0 {
		m.logger.Debug("no queued transfers")
		m.persist()
		m.checkDrained()
		return
	}

	for _, priority := range queue.Priorities() {
		for _, n := range queued {
			if n.Priority != priority {
				continue
			}
			m.activate(n)
			if len(m.active) >= m.limit {
				return
			}
		}
	}
}

// preempt pauses active transfers until the active set fits the limit,
// starting from the lowest band and the end of the tree. Slots held by
// canceling transfers are about to be freed and count as already released.
func (m *Manager) preempt() {
	excess := -m.limit
	for id := range m.active {
		if n := m.tree.Get(id); n == nil || n.Status != queue.StatusCanceling {
			excess++
		}
	}
	if excess <= 0 {
		return
	}
	transfers := m.tree.Transfers()
	priorities := queue.Priorities()
	for p := len(priorities) - 1; p >= 0; p-- {
		for i := len(transfers) - 1; i >= 0; i-- {
			n := transfers[i]
			if n.Priority != priorities[p] || m.active[n.ID] == nil || !n.CanPause() {
				continue
			}
			m.transferLogger(n).Info("pausing transfer to honor concurrency limit",
				logging.Int("limit", m.limit),
				logging.String("priority", n.Priority.String()),
			)
			m.pauseTransfer(n)
			excess--
			if excess == 0 {
				return
			}
		}
	}
}

// activate gives n a slot and starts resolving it.
func (m *Manager) activate(n *queue.Node) {
	n.Attempt++
	ctx, cancel := context.WithCancel(m.runCtx)
	at := &activeTransfer{id: n.ID, attempt: n.Attempt, ctx: ctx, cancel: cancel}
	m.active[n.ID] = at
	n.ErrorString = ""
	n.WaitUntil = time.Time{}
	n.Interaction = nil

	if !m.queueActive {
		m.queueActive = true
		m.queueStart = m.now()
		m.completed, m.failed = 0, 0
	}

	m.setStatus(n, queue.StatusConnecting)
	m.transferLogger(n).Info("transfer started",
		logging.String("priority", n.Priority.String()),
		logging.Int("active", len(m.active)),
	)

	if n.UsePlugins {
		if svc, ok := m.lookupPlugin(n); ok {
			n.PluginID = svc.ID()
			m.requestDownload(n, at, svc)
			return
		}
	}
	m.startEngine(n, at, m.ownRequest(n))
}

func (m *Manager) setLimit(limit int) {
	limit = clampLimit(limit)
	previous := m.limit
	if limit == previous {
		return
	}
	m.limit = limit
	m.logger.Info("concurrency limit changed",
		logging.Int("previous", previous),
		logging.Int("limit", limit),
	)
	if limit > previous {
		m.startNext()
		return
	}
	m.preempt()
}

// checkDrained publishes queue_drained once nothing is active or pending.
func (m *Manager) checkDrained() {
	if !m.queueActive || len(m.active) > 0 {
		return
	}
	for _, n := range m.tree.Transfers() {
		switch n.Status {
		case queue.StatusQueued, queue.StatusWaitingInactive:
			return
		}
	}
	m.queueActive = false
	elapsed := m.now().Sub(m.queueStart)
	m.logger.Info("transfer queue drained",
		logging.Int("completed", m.completed),
		logging.Int("failed", m.failed),
		logging.Duration("duration", elapsed),
	)
	m.publish(events.Event{
		Type:      events.TypeQueueDrained,
		Completed: m.completed,
		Failed:    m.failed,
		Duration:  elapsed,
	})
}
