// Package daemonrun wires the dlqd process together: logger, store, engine,
// plugins, download session, IPC socket, HTTP API, and notification relay.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"dlq/internal/config"
	"dlq/internal/daemon"
	"dlq/internal/engine"
	"dlq/internal/events"
	"dlq/internal/ipc"
	"dlq/internal/logging"
	"dlq/internal/notifications"
	"dlq/internal/plugin"
	"dlq/internal/queue"
	"dlq/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the dlq daemon and blocks until SIGINT, SIGTERM, the quit next
// action, or a fatal server error.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	signalCtx, stop := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, quit := context.WithCancel(signalCtx)
	defer quit()

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open transfer store", logging.Error(err))
		return err
	}

	plugins, err := plugin.NewRegistry(plugin.NewDirect(cfg.RequestTimeout(), plugin.WithUserAgent(cfg.Transfers.UserAgent)))
	if err != nil {
		store.Close()
		return fmt.Errorf("register plugins: %w", err)
	}
	eng := engine.NewHTTP(
		engine.WithLogger(logger),
		engine.WithUserAgent(cfg.Transfers.UserAgent),
		engine.WithProgressInterval(cfg.ProgressInterval()),
		engine.WithMaxSpeed(cfg.MaxSpeedBytesPerSec()),
	)

	hub := events.NewHub()
	notifier := notifications.NewService(cfg)
	mgr := workflow.NewManager(cfg, store, plugins, eng, hub, logger, workflow.WithQuitHook(func() {
		logger.Info("next action is quit; shutting down", logging.String(logging.FieldEventType, "next_action_quit"))
		quit()
	}))

	d, err := daemon.New(cfg, store, mgr, hub, notifier, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	sub, unsubscribe := hub.Subscribe(256)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.ServeAPI(gctx) })
	g.Go(func() error { return notifications.Forward(gctx, notifier, sub, logger) })

	err = g.Wait()
	logger.Info("dlq daemon shutting down", logging.Int64("dropped_events", hub.Dropped()))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	return logging.NewFromConfig(cfg)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
