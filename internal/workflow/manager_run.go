package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dlq/internal/logging"
	"dlq/internal/queue"
)

// Start launches the manager goroutine. Commands fail with ErrNotRunning
// until Start is called and after Stop or ctx cancellation.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.engine == nil {
		m.mu.Unlock()
		return errors.New("workflow engine not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.runCtx = runCtx
	m.cancel = cancel
	m.done = done
	m.running = true
	m.mu.Unlock()

	go m.run(runCtx, done)

	m.logger.Info("workflow started",
		logging.Int("concurrency_limit", m.limit),
		logging.String("next_action", string(m.nextAction)),
	)
	return nil
}

// Stop cancels in-flight work, persists the tree, and waits for the manager
// goroutine to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Done is closed when the manager goroutine exits.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.done
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case task := <-m.tasks:
			task()
			m.settle()
		}
	}
}

// settle runs after every task: it reaps finished packages, performs a
// pending admission pass, saves if asked to, and publishes counters.
func (m *Manager) settle() {
	m.reapPackages()
	for m.pendingStart {
		m.pendingStart = false
		m.startNext()
		m.reapPackages()
	}
	if m.savePending {
		m.savePending = false
		m.save()
	}
	m.publishCounters()
}

func (m *Manager) shutdown() {
	if m.queueTimer != nil {
		m.queueTimer.Stop()
	}
	for id, timer := range m.waits {
		timer.Stop()
		delete(m.waits, id)
	}
	for id, at := range m.active {
		at.stopTimer()
		at.cancel()
		delete(m.active, id)
	}
drain:
	for {
		select {
		case <-m.tasks:
		default:
			break drain
		}
	}
	m.savePending = false
	m.save()

	m.mu.Lock()
	m.running = false
	m.cancel = nil
	m.mu.Unlock()
	m.logger.Info("workflow stopped")
}

// do runs fn on the manager goroutine and waits for its result.
func (m *Manager) do(ctx context.Context, fn func() error) error {
	m.mu.RLock()
	running, done := m.running, m.done
	m.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	result := make(chan error, 1)
	task := func() { result <- fn() }
	select {
	case m.tasks <- task:
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-done:
		select {
		case err := <-result:
			return err
		default:
			return ErrNotRunning
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. It is dropped when the manager is not running.
func (m *Manager) post(fn func()) {
	m.mu.RLock()
	running, done := m.running, m.done
	m.mu.RUnlock()
	if !running {
		return
	}
	select {
	case m.tasks <- fn:
	case <-done:
	}
}

// Restore loads the persisted tree, requeues transfers whose driver did not
// survive the restart, and arms admission. It returns the number of requeued
// transfers. Restoring into a tree that already holds packages does nothing.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	records, err := m.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	requeued := 0
	err = m.do(ctx, func() error {
		if !m.tree.Restore(records) {
			m.logger.Warn("restore skipped; transfer tree is not empty",
				logging.String(logging.FieldEventType, "restore_skipped"),
				logging.String(logging.FieldErrorHint, "restore must run before transfers are appended"),
				logging.String(logging.FieldImpact, "persisted transfers were not loaded"),
			)
			return nil
		}
		now := m.now()
		requeued = m.tree.RequeueAfterRestore(now)
		queued := false
		for _, n := range m.tree.Transfers() {
			switch n.Status {
			case queue.StatusQueued:
				queued = true
			case queue.StatusWaitingInactive:
				m.scheduleWait(n, n.WaitUntil.Sub(now))
			}
		}
		if queued {
			m.armQueue()
		}
		m.logger.Info("transfer tree restored",
			logging.Int("packages", len(m.tree.Packages())),
			logging.Int("requeued", requeued),
		)
		return nil
	})
	return requeued, err
}

func (m *Manager) scheduleWait(n *queue.Node, delay time.Duration) {
	if timer := m.waits[n.ID]; timer != nil {
		timer.Stop()
	}
	id, attempt := n.ID, n.Attempt
	m.waits[n.ID] = time.AfterFunc(max(delay, 0), func() {
		m.post(func() { m.onWaitElapsed(id, attempt) })
	})
}

func (m *Manager) stopWait(id string) {
	if timer := m.waits[id]; timer != nil {
		timer.Stop()
		delete(m.waits, id)
	}
}
