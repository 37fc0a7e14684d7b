package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dlq/internal/config"
	"dlq/internal/engine"
	"dlq/internal/events"
	"dlq/internal/logging"
	"dlq/internal/plugin"
	"dlq/internal/queue"
)

const taskBuffer = 256

// Manager is the download session: it owns the transfer tree and schedules
// transfers onto the engine.
type Manager struct {
	cfg     *config.Config
	tree    *queue.Tree
	store   queue.Snapshotter
	plugins *plugin.Registry
	engine  engine.Engine
	hub     *events.Hub
	logger  *slog.Logger
	quit    func()
	now     func() time.Time

	queueDelay time.Duration

	tasks chan func()

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// State below is touched only from the run goroutine.
	runCtx       context.Context
	limit        int
	nextAction   NextAction
	active       map[string]*activeTransfer
	unwinding    map[string]uint64
	waits        map[string]*time.Timer
	queueTimer   *time.Timer
	pendingStart bool
	savePending  bool
	lastErr      error

	lastActive int
	lastSpeed  int64

	queueActive bool
	queueStart  time.Time
	completed   int
	failed      int
}

// activeTransfer is the slot held by a transfer in an active-equivalent status.
type activeTransfer struct {
	id            string
	attempt       uint64
	ctx           context.Context
	cancel        context.CancelFunc
	timer         *time.Timer
	engineRunning bool
	deleteFiles   bool
}

func (a *activeTransfer) stopTimer() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithQuitHook installs the function called when the next action is quit and
// the last active transfer finishes. It runs on the manager goroutine and must
// not block.
func WithQuitHook(fn func()) ManagerOption {
	return func(m *Manager) { m.quit = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithTreeOptions passes extra options to the tree constructor.
func WithTreeOptions(opts ...queue.TreeOption) ManagerOption {
	return func(m *Manager) {
		base := []queue.TreeOption{
			queue.WithNotifier(m.onTreeChange),
			queue.WithIncompleteDir(m.cfg.IncompleteDir()),
		}
		m.tree = queue.NewTree(append(base, opts...)...)
	}
}

// NewManager constructs a manager. store, hub, and logger may be nil.
func NewManager(cfg *config.Config, store queue.Snapshotter, plugins *plugin.Registry, eng engine.Engine, hub *events.Hub, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if plugins == nil {
		plugins, _ = plugin.NewRegistry()
	}
	nextAction, err := ParseNextAction(cfg.Transfers.NextAction)
	if err != nil {
		nextAction = NextActionContinue
	}
	m := &Manager{
		cfg:        cfg,
		store:      store,
		plugins:    plugins,
		engine:     eng,
		hub:        hub,
		logger:     logging.NewComponentLogger(logger, "workflow"),
		now:        time.Now,
		queueDelay: cfg.QueueDelay(),
		tasks:      make(chan func(), taskBuffer),
		limit:      clampLimit(cfg.Transfers.MaxConcurrent),
		nextAction: nextAction,
		active:     map[string]*activeTransfer{},
		unwinding:  map[string]uint64{},
		waits:      map[string]*time.Timer{},
	}
	m.tree = queue.NewTree(
		queue.WithNotifier(m.onTreeChange),
		queue.WithIncompleteDir(cfg.IncompleteDir()),
	)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func clampLimit(n int) int {
	return min(max(n, 1), config.MaxConcurrentLimit)
}

func (m *Manager) transferLogger(n *queue.Node) *slog.Logger {
	return m.logger.With(
		logging.String(logging.FieldTransferID, n.ID),
		logging.String(logging.FieldPackageID, n.Parent),
	)
}
