package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"dlq/internal/daemon"
	"dlq/internal/logging"
	"dlq/internal/logs"
	"dlq/internal/workflow"
)

const serviceName = "DLQ"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, &service{daemon: d, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Open client
// connections finish their current call first.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun dlq daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) manager() *workflow.Manager {
	return s.daemon.Workflow()
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	*resp = StatusResponse{
		Running:      status.Running,
		PID:          status.PID,
		LockPath:     status.LockPath,
		DatabasePath: status.DatabasePath,
		Workflow:     status.Workflow,
		Preflight:    status.Preflight,
	}
	return nil
}

func (s *service) Append(req AppendRequest, resp *AppendResponse) error {
	ids, err := s.manager().Append(s.ctx, req)
	if err != nil {
		return err
	}
	resp.IDs = ids
	s.logger.Info("transfers appended via IPC",
		logging.String(logging.FieldEventType, "transfers_appended"),
		logging.Int("count", len(ids)))
	return nil
}

func (s *service) CheckURLs(req CheckRequest, resp *CheckResponse) error {
	results, err := s.manager().CheckURLs(s.ctx, req.URLs)
	if err != nil {
		return err
	}
	resp.Results = results
	return nil
}

func (s *service) List(req ListRequest, resp *ListResponse) error {
	recs, err := s.manager().GetTransfers(s.ctx, req.Offset, req.Limit, req.Children)
	if err != nil {
		return err
	}
	resp.Transfers = recs
	return nil
}

func (s *service) Describe(req DescribeRequest, resp *DescribeResponse) error {
	rec, err := s.manager().GetTransfer(s.ctx, req.ID, req.Children)
	if err != nil {
		return err
	}
	resp.Transfer = rec
	return nil
}

func (s *service) Search(req SearchRequest, resp *ListResponse) error {
	recs, err := s.manager().Search(s.ctx, req.Property, req.Value, req.Match)
	if err != nil {
		return err
	}
	resp.Transfers = recs
	return nil
}

func (s *service) QueueAll(_ EmptyRequest, resp *OKResponse) error {
	if err := s.manager().QueueAll(s.ctx); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) PauseAll(_ EmptyRequest, resp *OKResponse) error {
	if err := s.manager().PauseAll(s.ctx); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) Queue(req BatchRequest, resp *BatchResponse) error {
	return s.batch("queue", req, resp, s.manager().Queue)
}

func (s *service) Pause(req BatchRequest, resp *BatchResponse) error {
	return s.batch("pause", req, resp, s.manager().Pause)
}

func (s *service) Reload(req BatchRequest, resp *BatchResponse) error {
	return s.batch("reload", req, resp, s.manager().Reload)
}

func (s *service) Cancel(req BatchRequest, resp *BatchResponse) error {
	return s.batch("cancel", req, resp, func(ctx context.Context, id string) error {
		return s.manager().Cancel(ctx, id, req.DeleteFiles)
	})
}

// batch applies fn to every ID. Per-ID failures are reported in the response;
// only a stopped manager fails the call.
func (s *service) batch(op string, req BatchRequest, resp *BatchResponse, fn func(context.Context, string) error) error {
	if len(req.IDs) == 0 {
		return fmt.Errorf("%s requires at least one id", op)
	}
	for _, id := range req.IDs {
		err := fn(s.ctx, id)
		switch {
		case err == nil:
			resp.Updated++
		case errors.Is(err, workflow.ErrNotRunning):
			return err
		default:
			if resp.Failed == nil {
				resp.Failed = make(map[string]string)
			}
			resp.Failed[id] = err.Error()
		}
	}
	s.logger.Info("batch command applied via IPC",
		logging.String(logging.FieldEventType, "ipc_"+op),
		logging.Int("updated_count", resp.Updated),
		logging.Int("failed_count", len(resp.Failed)))
	return nil
}

func (s *service) Move(req MoveRequest, resp *OKResponse) error {
	moved, err := s.manager().Move(s.ctx, req.ID, req.Parent, req.Index)
	if err != nil {
		return err
	}
	resp.OK = moved
	return nil
}

func (s *service) SetProperties(req SetPropertiesRequest, resp *OKResponse) error {
	ok, err := s.manager().SetProperties(s.ctx, req.ID, req.Values)
	if err != nil {
		return err
	}
	resp.OK = ok
	return nil
}

func (s *service) Interactions(_ EmptyRequest, resp *InteractionsResponse) error {
	pending, err := s.manager().Interactions(s.ctx)
	if err != nil {
		return err
	}
	resp.Interactions = pending
	return nil
}

func (s *service) SubmitCaptcha(req CaptchaRequest, resp *OKResponse) error {
	if err := s.manager().SubmitCaptchaResponse(s.ctx, req.ID, req.Response); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) SubmitSettings(req SettingsRequest, resp *OKResponse) error {
	if err := s.manager().SubmitSettingsResponse(s.ctx, req.ID, req.Values); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) SetConcurrency(req ConcurrencyRequest, resp *ConcurrencyResponse) error {
	applied, err := s.manager().SetConcurrencyLimit(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Limit = applied
	return nil
}

func (s *service) SetNextAction(req NextActionRequest, resp *OKResponse) error {
	if err := s.manager().SetNextAction(s.ctx, workflow.NextAction(req.Action)); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	})
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	*resp = health
	if err != nil && health.Error == "" {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
