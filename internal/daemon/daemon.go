package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"dlq/internal/config"
	"dlq/internal/events"
	"dlq/internal/logging"
	"dlq/internal/notifications"
	"dlq/internal/preflight"
	"dlq/internal/queue"
	"dlq/internal/workflow"
)

// Daemon coordinates the download session and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	hub      *events.Hub
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool

	mu     sync.Mutex
	checks []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LockPath     string             `json:"lock_path"`
	DatabasePath string             `json:"database_path"`
	Workflow     workflow.Status    `json:"workflow"`
	Preflight    []preflight.Result `json:"preflight,omitempty"`
}

// New constructs a daemon with initialized dependencies. hub and notifier may
// be nil.
func New(cfg *config.Config, store *queue.Store, wf *workflow.Manager, hub *events.Hub, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		hub:      hub,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, starts the workflow manager, and restores
// the persisted transfer tree.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dlqd instance is already running")
	}

	if err := d.workflow.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	requeued, err := d.workflow.Restore(ctx)
	if err != nil {
		d.logger.Error("restore transfer tree failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "restore_failed"),
			logging.String(logging.FieldErrorHint, "inspect the database with dlq status --db"),
			logging.String(logging.FieldImpact, "previously queued transfers are not loaded"),
		)
	}

	d.runPreflight(ctx)
	d.running.Store(true)
	d.logger.Info("dlq daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("requeued", requeued),
	)
	return nil
}

func (d *Daemon) runPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg)
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or setting named by the check"),
			logging.String(logging.FieldImpact, "transfers depending on it will fail"),
		)
	}
	d.mu.Lock()
	d.checks = results
	d.mu.Unlock()
}

// Stop stops the workflow manager, which persists the tree, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if dlqd refuses to start"),
			logging.String(logging.FieldImpact, "the next start may report another instance running"),
		)
	}
	d.logger.Info("dlq daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Workflow returns the download session.
func (d *Daemon) Workflow() *workflow.Manager {
	return d.workflow
}

// LogPath returns the daemon log file, or "" when file logging is disabled.
func (d *Daemon) LogPath() string {
	return d.cfg.LogPath()
}

// Events returns the event hub, or nil when none is configured.
func (d *Daemon) Events() *events.Hub {
	return d.hub
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockPath:     d.lockPath,
		DatabasePath: d.store.File(),
	}
	if wf, err := d.workflow.GetStatus(ctx); err == nil {
		status.Workflow = wf
	}
	d.mu.Lock()
	status.Preflight = append([]preflight.Result(nil), d.checks...)
	d.mu.Unlock()
	return status
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
