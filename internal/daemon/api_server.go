package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"dlq/internal/logging"
	"dlq/internal/plugin"
	"dlq/internal/queue"
	"dlq/internal/workflow"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(d *Daemon, logger *slog.Logger) *apiServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &apiServer{
		bind:   strings.TrimSpace(d.cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/health/db", srv.handleDatabaseHealth)
	mux.HandleFunc("GET /api/events", srv.handleEvents)

	mux.HandleFunc("GET /api/transfers", srv.handleList)
	mux.HandleFunc("POST /api/transfers", srv.handleAppend)
	mux.HandleFunc("POST /api/check", srv.handleCheck)
	mux.HandleFunc("GET /api/search", srv.handleSearch)
	mux.HandleFunc("POST /api/queue/start", srv.handleQueueAll)
	mux.HandleFunc("POST /api/queue/pause", srv.handlePauseAll)

	mux.HandleFunc("GET /api/transfers/{id}", srv.handleGet)
	mux.HandleFunc("PATCH /api/transfers/{id}", srv.handleSetProperties)
	mux.HandleFunc("DELETE /api/transfers/{id}", srv.handleCancel)
	mux.HandleFunc("POST /api/transfers/{id}/queue", srv.handleQueue)
	mux.HandleFunc("POST /api/transfers/{id}/pause", srv.handlePause)
	mux.HandleFunc("POST /api/transfers/{id}/reload", srv.handleReload)
	mux.HandleFunc("POST /api/transfers/{id}/move", srv.handleMove)
	mux.HandleFunc("POST /api/transfers/{id}/captcha", srv.handleCaptcha)
	mux.HandleFunc("POST /api/transfers/{id}/settings", srv.handleSettings)

	mux.HandleFunc("GET /api/interactions", srv.handleInteractions)
	mux.HandleFunc("PUT /api/settings/concurrency", srv.handleConcurrency)
	mux.HandleFunc("PUT /api/settings/next-action", srv.handleNextAction)

	srv.handler = srv.withCorrelation(authMiddleware(d.cfg.Paths.APIToken, mux))
	return srv
}

// ServeAPI runs the HTTP API until ctx is done. It returns nil immediately
// when paths.api_bind is empty.
func (d *Daemon) ServeAPI(ctx context.Context) error {
	srv := newAPIServer(d, d.logger)
	if srv.bind == "" {
		return nil
	}
	return srv.serve(ctx)
}

func (s *apiServer) serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

func (s *apiServer) withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

func (s *apiServer) manager() *workflow.Manager {
	return s.daemon.workflow
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleDatabaseHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.daemon.DatabaseHealth(r.Context())
	if err != nil && health.Error == "" {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	offset, err := intParam(query.Get("offset"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := intParam(query.Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	recs, err := s.manager().GetTransfers(r.Context(), offset, limit, boolParam(query.Get("children")))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TransfersResponse{Transfers: recs})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager().GetTransfer(r.Context(), r.PathValue("id"), boolParam(r.URL.Query().Get("children")))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *apiServer) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req workflow.AppendRequest
	if !s.decode(w, r, &req) {
		return
	}
	ids, err := s.manager().Append(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, AppendResponse{IDs: ids})
}

func (s *apiServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !s.decode(w, r, &req) {
		return
	}
	results, err := s.manager().CheckURLs(r.Context(), req.URLs)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CheckResponse{Results: results})
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	recs, err := s.manager().Search(r.Context(), query.Get("property"), query.Get("value"), query.Get("match"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TransfersResponse{Transfers: recs})
}

func (s *apiServer) handleQueueAll(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, s.manager().QueueAll(r.Context()))
}

func (s *apiServer) handlePauseAll(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, s.manager().PauseAll(r.Context()))
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, s.manager().Queue(r.Context(), r.PathValue("id")))
}

func (s *apiServer) handlePause(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, s.manager().Pause(r.Context(), r.PathValue("id")))
}

func (s *apiServer) handleReload(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, s.manager().Reload(r.Context(), r.PathValue("id")))
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	deleteFiles := boolParam(r.URL.Query().Get("delete_files"))
	s.writeResult(w, r, s.manager().Cancel(r.Context(), r.PathValue("id"), deleteFiles))
}

func (s *apiServer) handleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	moved, err := s.manager().Move(r.Context(), r.PathValue("id"), req.Parent, req.Index)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, OKResponse{OK: moved})
}

func (s *apiServer) handleSetProperties(w http.ResponseWriter, r *http.Request) {
	props := map[string]any{}
	if !s.decode(w, r, &props) {
		return
	}
	ok, err := s.manager().SetProperties(r.Context(), r.PathValue("id"), props)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, OKResponse{OK: ok})
}

func (s *apiServer) handleInteractions(w http.ResponseWriter, r *http.Request) {
	pending, err := s.manager().Interactions(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, InteractionsResponse{Interactions: pending})
}

func (s *apiServer) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	var req CaptchaRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResult(w, r, s.manager().SubmitCaptchaResponse(r.Context(), r.PathValue("id"), req.Response))
}

func (s *apiServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResult(w, r, s.manager().SubmitSettingsResponse(r.Context(), r.PathValue("id"), req.Values))
}

func (s *apiServer) handleConcurrency(w http.ResponseWriter, r *http.Request) {
	var req ConcurrencyRequest
	if !s.decode(w, r, &req) {
		return
	}
	applied, err := s.manager().SetConcurrencyLimit(r.Context(), req.Limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ConcurrencyRequest{Limit: applied})
}

func (s *apiServer) handleNextAction(w http.ResponseWriter, r *http.Request) {
	var req NextActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResult(w, r, s.manager().SetNextAction(r.Context(), req.Action))
}

// handleEvents streams hub events as server-sent events until the client
// disconnects.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.Events()
	flusher, ok := w.(http.Flusher)
	if hub == nil || !ok {
		s.writeError(w, http.StatusNotImplemented, "event stream unavailable")
		return
	}
	sub, cancel := hub.Subscribe(256)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-sub:
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *apiServer) writeResult(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("api request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String(logging.FieldErrorHint, "check dlqd logs for the underlying failure"),
			logging.String(logging.FieldImpact, "the request was not applied"),
		)
	}
	s.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, queue.ErrInvalidSpec),
		errors.Is(err, queue.ErrUnknownProperty),
		errors.Is(err, workflow.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, plugin.ErrNoPlugin):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
