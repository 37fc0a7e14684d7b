package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dlq/internal/fileutil"
	"dlq/internal/logging"
	"dlq/internal/services"
)

const (
	chunkSize               = 32 * 1024
	defaultProgressInterval = time.Second
)

// HTTP downloads over http and https.
type HTTP struct {
	client    *http.Client
	limiter   *rate.Limiter
	interval  time.Duration
	userAgent string
	logger    *slog.Logger
}

// Option customizes HTTP.
type Option func(*HTTP)

// WithClient replaces the HTTP client.
func WithClient(client *http.Client) Option {
	return func(h *HTTP) {
		if client != nil {
			h.client = client
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *HTTP) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithUserAgent sets the User-Agent for requests that do not carry one.
func WithUserAgent(ua string) Option {
	return func(h *HTTP) { h.userAgent = strings.TrimSpace(ua) }
}

// WithProgressInterval sets how often Progress is reported.
func WithProgressInterval(d time.Duration) Option {
	return func(h *HTTP) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithMaxSpeed caps the combined throughput of all jobs in bytes per second.
func WithMaxSpeed(bytesPerSec int64) Option {
	return func(h *HTTP) { h.SetMaxSpeed(bytesPerSec) }
}

// NewHTTP constructs the HTTP engine.
func NewHTTP(opts ...Option) *HTTP {
	h := &HTTP{
		client:   &http.Client{},
		limiter:  rate.NewLimiter(rate.Inf, chunkSize),
		interval: defaultProgressInterval,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.NewComponentLogger(h.logger, "engine")
	return h
}

// SetMaxSpeed changes the bandwidth cap; zero or less removes it.
func (h *HTTP) SetMaxSpeed(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		h.limiter.SetLimit(rate.Inf)
		return
	}
	h.limiter.SetLimit(rate.Limit(bytesPerSec))
}

// Start runs job in the background.
func (h *HTTP) Start(ctx context.Context, job Job, reporter Reporter) {
	go h.run(ctx, job, reporter)
}

func (h *HTTP) run(ctx context.Context, job Job, reporter Reporter) {
	logger := h.logger.With(logging.String(logging.FieldTransferID, job.TransferID))
	if err := h.fetch(ctx, job, reporter); err != nil {
		if ctx.Err() != nil {
			logger.Debug("transfer stopped", logging.String("reason", context.Cause(ctx).Error()))
			reporter.Stopped()
			return
		}
		reporter.Failed(err)
		return
	}

	finalPath, err := h.finish(ctx, job, logger)
	if err != nil {
		reporter.Failed(err)
		return
	}
	reporter.Completed(finalPath)
}

func (h *HTTP) newRequest(ctx context.Context, job Job, offset int64) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(job.Method))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if job.PostData != "" {
		body = strings.NewReader(job.PostData)
	}
	req, err := http.NewRequestWithContext(ctx, method, job.URL, body)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "engine", "build request", "", err)
	}
	for k, v := range job.Headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if h.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	return req, nil
}

func (h *HTTP) fetch(ctx context.Context, job Job, reporter Reporter) error {
	if job.DownloadPath == "" {
		return services.Wrap(services.ErrConfiguration, "engine", "fetch", "transfer has no download path", nil)
	}
	var offset int64
	if info, err := os.Stat(job.DownloadPath); err == nil && info.Mode().IsRegular() {
		offset = info.Size()
	}

	req, err := h.newRequest(ctx, job, offset)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "engine", "request", "", err)
		}
		return services.Wrap(services.ErrTransient, "engine", "request", "", err)
	}
	defer resp.Body.Close()

	size := int64(0)
	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		start, total, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if !ok || start != offset {
			return services.Wrap(services.ErrRemote, "engine", "resume",
				fmt.Sprintf("server resumed at an unexpected offset (%q)", resp.Header.Get("Content-Range")), nil)
		}
		size = total
		flags |= os.O_APPEND
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		reporter.Started()
		reporter.Progress(offset, offset, 0)
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		offset = 0
		flags |= os.O_TRUNC
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return services.Wrap(services.ErrNotFound, "engine", "fetch", "HTTP "+resp.Status, nil)
	default:
		return services.Wrap(services.ErrRemote, "engine", "fetch", "HTTP "+resp.Status, nil)
	}
	if size <= 0 && resp.ContentLength > 0 {
		size = offset + resp.ContentLength
	}

	if err := os.MkdirAll(filepath.Dir(job.DownloadPath), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "engine", "create incomplete dir", "", err)
	}
	file, err := os.OpenFile(job.DownloadPath, flags, 0o644)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "engine", "open partial file", "", err)
	}
	defer file.Close()

	reporter.Started()
	reporter.Progress(offset, size, 0)

	written, err := h.copy(ctx, file, resp.Body, offset, size, reporter)
	if err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return services.Wrap(services.ErrTransient, "engine", "close partial file", "", err)
	}
	if size > 0 && offset+written < size {
		return services.Wrap(services.ErrTransient, "engine", "fetch",
			fmt.Sprintf("connection closed after %d of %d bytes", offset+written, size), nil)
	}
	return nil
}

func (h *HTTP) copy(ctx context.Context, dst io.Writer, src io.Reader, offset, size int64, reporter Reporter) (int64, error) {
	buf := make([]byte, chunkSize)
	var written, sampled int64
	lastSample := time.Now()
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if err := h.limiter.WaitN(ctx, n); err != nil {
				return written, err
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, services.Wrap(services.ErrConfiguration, "engine", "write partial file", "", err)
			}
			written += int64(n)
			if elapsed := time.Since(lastSample); elapsed >= h.interval {
				speed := int64(float64(written-sampled) / elapsed.Seconds())
				reporter.Progress(offset+written, size, speed)
				sampled, lastSample = written, time.Now()
			}
		}
		if errors.Is(readErr, io.EOF) {
			reporter.Progress(offset+written, max(size, offset+written), 0)
			return written, nil
		}
		if readErr != nil {
			return written, services.Wrap(services.ErrTransient, "engine", "read body", "", readErr)
		}
	}
}

func (h *HTTP) finish(ctx context.Context, job Job, logger *slog.Logger) (string, error) {
	name := job.FileName
	if name == "" {
		name = filepath.Base(job.DownloadPath)
	}
	finalPath := fileutil.UniquePath(filepath.Join(job.FinalDir, name))
	if err := fileutil.MoveFile(job.DownloadPath, finalPath); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "engine", "move to final path", finalPath, err)
	}
	logger.Info("transfer file stored", logging.String("path", finalPath))

	if err := runCommand(ctx, job.CustomCommand, finalPath); err != nil {
		logging.WarnWithContext(logger, "custom command failed", "custom_command_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "file downloaded; post-processing skipped"),
		)
	}
	return finalPath, nil
}

// parseContentRange reads "bytes start-end/total". An unknown total ("*")
// yields zero.
func parseContentRange(header string) (start, total int64, ok bool) {
	spec, found := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !found {
		return 0, 0, false
	}
	rng, totalStr, found := strings.Cut(spec, "/")
	if !found {
		return 0, 0, false
	}
	startStr, _, found := strings.Cut(rng, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if totalStr != "*" {
		total, err = strconv.ParseInt(totalStr, 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}
	return start, total, true
}
