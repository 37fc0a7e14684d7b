package workflow

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"dlq/internal/events"
	"dlq/internal/logging"
	"dlq/internal/queue"
	"dlq/internal/services"
)

// setStatus moves a transfer to status and applies the transition's side
// effects. It is the only place statuses change outside Restore.
func (m *Manager) setStatus(n *queue.Node, status queue.Status) {
	previous := n.Status
	if previous == status {
		return
	}
	if err := m.tree.SetStatus(n.ID, status); err != nil {
		m.logger.Error("status change rejected", logging.Error(err),
			logging.String(logging.FieldTransferID, n.ID),
			logging.String(logging.FieldStatus, string(status)),
		)
		return
	}
	m.transferLogger(n).Debug("transfer status changed",
		logging.String("from", string(previous)),
		logging.String(logging.FieldStatus, string(status)),
	)
	m.publish(events.Event{
		Type:       events.TypeStatusChanged,
		TransferID: n.ID,
		PackageID:  n.Parent,
		Name:       n.Name,
		Status:     status,
		Error:      n.ErrorString,
	})

	switch status {
	case queue.StatusQueued:
		m.armQueue()
	case queue.StatusPaused, queue.StatusWaitingInactive:
		m.release(n)
		if m.nextAction == NextActionContinue {
			m.armQueue()
		}
	case queue.StatusCompleted, queue.StatusFailed:
		m.release(n)
		if status == queue.StatusCompleted {
			m.completed++
		} else {
			m.failed++
		}
		m.applyNextAction()
	case queue.StatusCanceled, queue.StatusCanceledAndDeleted:
		m.release(n)
		if status == queue.StatusCanceledAndDeleted {
			m.deletePartial(n)
		}
		m.removeCanceled(n)
		if m.nextAction == NextActionContinue {
			m.armQueue()
		} else if len(m.active) == 0 {
			m.persist()
		}
	case queue.StatusAwaitingCaptchaResponse, queue.StatusAwaitingSettingsResponse:
		m.publishInteraction(n)
	}
}

// release frees n's slot and aborts whatever it was running.
func (m *Manager) release(n *queue.Node) {
	if n.Speed != 0 {
		n.Speed = 0
		m.tree.Touch(n.ID, "speed")
	}
	at := m.active[n.ID]
	if at == nil {
		return
	}
	delete(m.active, n.ID)
	at.stopTimer()
	if at.engineRunning {
		m.unwinding[n.ID] = at.attempt
	}
	at.cancel()
}

func (m *Manager) applyNextAction() {
	switch m.nextAction {
	case NextActionPause:
		if len(m.active) == 0 {
			m.logger.Info("next action reached; pausing queue")
			m.pauseAll()
			m.persist()
		}
	case NextActionQuit:
		if len(m.active) == 0 {
			m.logger.Info("next action reached; quitting")
			m.pauseAll()
			m.persist()
			if m.quit != nil {
				m.quit()
			}
		}
	default:
		m.armQueue()
	}
}

// removeCanceled drops a canceled transfer from the tree unless its package
// is itself being canceled, in which case the package goes as a whole.
func (m *Manager) removeCanceled(n *queue.Node) {
	pkg := m.tree.Get(n.Parent)
	if pkg == nil {
		return
	}
	switch pkg.Status {
	case queue.StatusCanceling, queue.StatusCanceled, queue.StatusCanceledAndDeleted:
		return
	}
	m.transferLogger(n).Info("removing canceled transfer")
	m.tree.Remove(n.ID)
}

// reapPackages removes packages whose aggregate is terminal.
func (m *Manager) reapPackages() {
	for _, pkg := range m.tree.Packages() {
		switch pkg.Status {
		case queue.StatusCompleted, queue.StatusCanceled, queue.StatusCanceledAndDeleted:
		default:
			continue
		}
		for _, child := range m.tree.Children(pkg.ID) {
			m.stopWait(child.ID)
			if at := m.active[child.ID]; at != nil {
				m.release(child)
			}
		}
		m.logger.Info("removing finished package",
			logging.String(logging.FieldPackageID, pkg.ID),
			logging.String("name", pkg.Name),
			logging.String(logging.FieldStatus, string(pkg.Status)),
		)
		m.tree.Remove(pkg.ID)
	}
}

func (m *Manager) deletePartial(n *queue.Node) {
	if n.DownloadPath == "" {
		return
	}
	if err := os.Remove(n.DownloadPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.WarnWithContext(m.transferLogger(n), "failed to delete partial download", "partial_delete_failed",
			logging.Error(err),
			logging.String("path", n.DownloadPath),
			logging.String(logging.FieldErrorHint, "remove the file manually"),
			logging.String(logging.FieldImpact, "disk space is not reclaimed"),
		)
	}
}

func (m *Manager) fail(n *queue.Node, err error) {
	n.ErrorString = services.Summary(err)
	n.Interaction = nil
	n.WaitUntil = time.Time{}
	m.tree.Touch(n.ID, "error_string")
	logging.WarnWithContext(m.transferLogger(n), "transfer failed", "transfer_failed",
		logging.Error(err),
		logging.String("url", n.URL),
		logging.String(logging.FieldErrorHint, services.Hint(err)),
		logging.String(logging.FieldImpact, "transfer stays failed until reloaded or queued"),
	)
	m.publish(events.Event{
		Type:       events.TypeTransferFailed,
		TransferID: n.ID,
		PackageID:  n.Parent,
		Name:       n.Name,
		Error:      n.ErrorString,
	})
	m.setStatus(n, queue.StatusFailed)
}

// queueTransfer moves a startable transfer to Queued.
func (m *Manager) queueTransfer(n *queue.Node) bool {
	if !n.CanStart() {
		return false
	}
	n.ErrorString = ""
	m.setStatus(n, queue.StatusQueued)
	return true
}

// pauseTransfer stops a pausable transfer, keeping its partial file.
func (m *Manager) pauseTransfer(n *queue.Node) bool {
	if !n.CanPause() {
		return false
	}
	m.stopWait(n.ID)
	n.WaitUntil = time.Time{}
	n.Interaction = nil
	m.setStatus(n, queue.StatusPaused)
	return true
}

// cancelTransfer cancels n. An engine job is unwound first; anything else
// finishes immediately.
func (m *Manager) cancelTransfer(n *queue.Node, deleteFiles bool) bool {
	if !n.CanCancel() {
		return false
	}
	m.stopWait(n.ID)
	n.WaitUntil = time.Time{}
	n.Interaction = nil
	if at := m.active[n.ID]; at != nil {
		at.deleteFiles = deleteFiles
		at.stopTimer()
		m.setStatus(n, queue.StatusCanceling)
		if at.engineRunning {
			at.cancel()
			return true
		}
		m.finishCancel(n, at)
		return true
	}
	m.setStatus(n, canceledStatus(deleteFiles))
	return true
}

func (m *Manager) finishCancel(n *queue.Node, at *activeTransfer) {
	at.engineRunning = false
	m.setStatus(n, canceledStatus(at.deleteFiles))
}

func canceledStatus(deleteFiles bool) queue.Status {
	if deleteFiles {
		return queue.StatusCanceledAndDeleted
	}
	return queue.StatusCanceled
}

func (m *Manager) pauseAll() {
	for _, n := range m.tree.Transfers() {
		m.pauseTransfer(n)
	}
}

func (m *Manager) queueAll() {
	for _, n := range m.tree.Transfers() {
		m.queueTransfer(n)
	}
}
