package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"dlq/internal/engine"
	"dlq/internal/logging"
	"dlq/internal/plugin"
	"dlq/internal/queue"
)

func (m *Manager) lookupPlugin(n *queue.Node) (plugin.Service, bool) {
	if n.PluginID != "" {
		if svc, ok := m.plugins.Get(n.PluginID); ok {
			return svc, true
		}
	}
	return m.plugins.Lookup(n.URL)
}

// current returns the node and slot for a callback, or nil when the callback
// belongs to an attempt that is no longer running.
func (m *Manager) current(id string, attempt uint64) (*queue.Node, *activeTransfer) {
	n := m.tree.Get(id)
	if n == nil || n.Attempt != attempt {
		return nil, nil
	}
	at := m.active[id]
	if at == nil || at.attempt != attempt {
		return nil, nil
	}
	return n, at
}

func (m *Manager) requestDownload(n *queue.Node, at *activeTransfer, svc plugin.Service) {
	rawURL, settings := n.URL, m.plugins.Settings(svc.ID())
	m.callPlugin(at, func(ctx context.Context) (plugin.Result, error) {
		return svc.GetDownloadRequest(ctx, rawURL, settings)
	})
}

// callPlugin runs call off the manager goroutine and posts its result back.
func (m *Manager) callPlugin(at *activeTransfer, call func(context.Context) (plugin.Result, error)) {
	id, attempt, ctx := at.id, at.attempt, at.ctx
	timeout := m.cfg.RequestTimeout()
	go func() {
		reqCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()
		res, err := call(reqCtx)
		m.post(func() { m.onPluginResult(id, attempt, res, err) })
	}()
}

func (m *Manager) onPluginResult(id string, attempt uint64, res plugin.Result, err error) {
	n, at := m.current(id, attempt)
	if n == nil || n.Status != queue.StatusConnecting {
		return
	}
	if err != nil {
		m.fail(n, fmt.Errorf("plugin %s: %w", n.PluginID, err))
		return
	}
	switch r := res.(type) {
	case plugin.DownloadRequest:
		m.startEngine(n, at, r)
	case plugin.WaitRequest:
		m.wait(n, at, r)
	case plugin.CaptchaRequest:
		m.awaitInteraction(n, at, queue.Interaction{
			Kind:        queue.InteractionCaptcha,
			CaptchaType: r.CaptchaType,
			Data:        r.Data,
			Callback:    r.Callback,
		}, queue.StatusAwaitingCaptchaResponse, m.cfg.CaptchaTimeout())
	case plugin.SettingsRequest:
		fields := make([]queue.SettingsField, 0, len(r.Fields))
		for _, f := range r.Fields {
			fields = append(fields, queue.SettingsField{Key: f.Key, Label: f.Label, Type: f.Type, Value: f.Value, Options: f.Options})
		}
		m.awaitInteraction(n, at, queue.Interaction{
			Kind:     queue.InteractionSettings,
			Title:    r.Title,
			Fields:   fields,
			Callback: r.Callback,
		}, queue.StatusAwaitingSettingsResponse, m.cfg.SettingsTimeout())
	default:
		m.fail(n, fmt.Errorf("plugin %s returned unsupported result %T", n.PluginID, res))
	}
}

func (m *Manager) ownRequest(n *queue.Node) plugin.DownloadRequest {
	return plugin.DownloadRequest{
		URL:      n.URL,
		Method:   n.RequestMethod,
		Headers:  n.RequestHeaders,
		PostData: n.PostData,
	}
}

func (m *Manager) startEngine(n *queue.Node, at *activeTransfer, req plugin.DownloadRequest) {
	if name := strings.TrimSpace(req.FileName); name != "" {
		n.FileName = queue.SanitizeFileName(name)
		n.Name = n.FileName
		m.tree.Touch(n.ID, queue.PropFileName)
	}
	if req.Size > 0 && req.Size != n.Size {
		n.Size = req.Size
		m.tree.Touch(n.ID, "size")
	}
	if req.URL == "" {
		req.URL = n.URL
	}
	method := req.Method
	if method == "" {
		method = n.RequestMethod
	}
	job := engine.Job{
		TransferID:    n.ID,
		URL:           req.URL,
		Method:        method,
		Headers:       req.Headers,
		PostData:      req.PostData,
		DownloadPath:  n.DownloadPath,
		FinalDir:      m.finalDir(n),
		FileName:      n.FileName,
		CustomCommand: m.customCommand(n),
	}
	at.engineRunning = true
	m.engine.Start(at.ctx, job, &reporter{m: m, id: n.ID, attempt: at.attempt})
}

// finalDir is the category directory, plus the package name when the
// transfer asks for a subfolder.
func (m *Manager) finalDir(n *queue.Node) string {
	dir := m.cfg.CategoryDir(n.Category)
	if n.CreateSubfolder {
		if pkg := m.tree.Get(n.Parent); pkg != nil && pkg.Name != "" {
			dir = filepath.Join(dir, queue.SanitizeFileName(pkg.Name))
		}
	}
	return dir
}

func (m *Manager) customCommand(n *queue.Node) string {
	if n.CustomCommandOverride {
		return n.CustomCommand
	}
	return m.cfg.Transfers.CustomCommand
}

func (m *Manager) wait(n *queue.Node, at *activeTransfer, r plugin.WaitRequest) {
	delay := max(r.Delay, 0)
	n.WaitUntil = m.now().Add(delay)
	m.tree.Touch(n.ID, "wait_until")
	m.transferLogger(n).Info("plugin requested wait",
		logging.Duration("delay", delay),
		logging.Bool("long", r.Long),
		logging.String("message", r.Message),
	)
	if r.Long {
		m.setStatus(n, queue.StatusWaitingInactive)
		m.scheduleWait(n, delay)
		return
	}
	id, attempt := n.ID, at.attempt
	at.stopTimer()
	at.timer = time.AfterFunc(delay, func() {
		m.post(func() { m.onShortWaitElapsed(id, attempt) })
	})
}

func (m *Manager) onShortWaitElapsed(id string, attempt uint64) {
	n, at := m.current(id, attempt)
	if n == nil || n.Status != queue.StatusConnecting {
		return
	}
	at.timer = nil
	n.WaitUntil = time.Time{}
	m.tree.Touch(n.ID, "wait_until")
	svc, ok := m.lookupPlugin(n)
	if !ok {
		m.fail(n, fmt.Errorf("%w: %s", plugin.ErrNoPlugin, n.URL))
		return
	}
	m.requestDownload(n, at, svc)
}

func (m *Manager) onWaitElapsed(id string, attempt uint64) {
	n := m.tree.Get(id)
	if n == nil || n.Attempt != attempt || n.Status != queue.StatusWaitingInactive {
		return
	}
	delete(m.waits, id)
	n.WaitUntil = time.Time{}
	m.setStatus(n, queue.StatusQueued)
}

func (m *Manager) awaitInteraction(n *queue.Node, at *activeTransfer, in queue.Interaction, status queue.Status, timeout time.Duration) {
	in.PluginID = n.PluginID
	at.stopTimer()
	if timeout > 0 {
		in.Deadline = m.now().Add(timeout)
		id, attempt := n.ID, at.attempt
		at.timer = time.AfterFunc(timeout, func() {
			m.post(func() { m.onInteractionTimeout(id, attempt, status) })
		})
	}
	n.Interaction = &in
	m.setStatus(n, status)
}

func (m *Manager) onInteractionTimeout(id string, attempt uint64, status queue.Status) {
	n, at := m.current(id, attempt)
	if n == nil || n.Status != status {
		return
	}
	at.timer = nil
	err := errCaptchaTimeout
	if status == queue.StatusAwaitingSettingsResponse {
		err = errSettingsTimeout
	}
	m.fail(n, err)
}

// resume hands an interaction response back to the plugin.
func (m *Manager) resume(n *queue.Node, call func(ctx context.Context, svc plugin.Service, callback string) (plugin.Result, error)) error {
	at := m.active[n.ID]
	svc, ok := m.plugins.Get(n.PluginID)
	if at == nil || !ok {
		m.fail(n, fmt.Errorf("%w: %s", plugin.ErrNoPlugin, n.PluginID))
		return fmt.Errorf("%w: %s", plugin.ErrNoPlugin, n.PluginID)
	}
	callback := ""
	if n.Interaction != nil {
		callback = n.Interaction.Callback
	}
	at.stopTimer()
	n.Interaction = nil
	m.setStatus(n, queue.StatusConnecting)
	m.callPlugin(at, func(ctx context.Context) (plugin.Result, error) {
		return call(ctx, svc, callback)
	})
	return nil
}

// reporter forwards engine reports to the manager goroutine.
type reporter struct {
	m       *Manager
	id      string
	attempt uint64
}

func (r *reporter) Started() {
	r.m.post(func() { r.m.onEngineStarted(r.id, r.attempt) })
}

func (r *reporter) Progress(bytesTransferred, size, speed int64) {
	r.m.post(func() { r.m.onEngineProgress(r.id, r.attempt, bytesTransferred, size, speed) })
}

func (r *reporter) Completed(finalPath string) {
	r.m.post(func() { r.m.onEngineCompleted(r.id, r.attempt, finalPath) })
}

func (r *reporter) Failed(err error) {
	r.m.post(func() { r.m.onEngineFailed(r.id, r.attempt, err) })
}

func (r *reporter) Stopped() {
	r.m.post(func() { r.m.onEngineStopped(r.id, r.attempt) })
}

func (m *Manager) onEngineStarted(id string, attempt uint64) {
	n, _ := m.current(id, attempt)
	if n == nil || n.Status != queue.StatusConnecting {
		return
	}
	m.setStatus(n, queue.StatusDownloading)
}

func (m *Manager) onEngineProgress(id string, attempt uint64, bytesTransferred, size, speed int64) {
	n, _ := m.current(id, attempt)
	if n == nil {
		return
	}
	n.BytesTransferred = bytesTransferred
	if size > 0 {
		n.Size = size
	}
	n.Speed = speed
	m.tree.Touch(n.ID, "progress")
	m.tree.Refresh(n.Parent)
}

// unwound clears the record of a released job once it reports its end, and
// lets admission pick the transfer up again.
func (m *Manager) unwound(id string, attempt uint64) bool {
	if pending, ok := m.unwinding[id]; !ok || pending != attempt {
		return false
	}
	delete(m.unwinding, id)
	if m.nextAction == NextActionContinue {
		m.armQueue()
	}
	return true
}

func (m *Manager) onEngineCompleted(id string, attempt uint64, finalPath string) {
	n, at := m.current(id, attempt)
	if n == nil {
		if m.unwound(id, attempt) {
			// The job finished while being released; the file is already in place.
			if late := m.tree.Get(id); late != nil && (late.Status == queue.StatusPaused || late.Status == queue.StatusQueued) {
				m.complete(late, finalPath)
			}
		}
		return
	}
	at.engineRunning = false
	if n.Status == queue.StatusCanceling {
		m.finishCancel(n, at)
		return
	}
	m.complete(n, finalPath)
}

func (m *Manager) complete(n *queue.Node, finalPath string) {
	if n.Size > 0 {
		n.BytesTransferred = n.Size
	} else {
		n.Size = n.BytesTransferred
	}
	m.tree.Touch(n.ID, "progress")
	m.transferLogger(n).Info("transfer completed",
		logging.String("path", finalPath),
		logging.Int64("bytes", n.BytesTransferred),
	)
	m.publishCompleted(n, finalPath)
	m.setStatus(n, queue.StatusCompleted)
}

func (m *Manager) onEngineFailed(id string, attempt uint64, err error) {
	n, at := m.current(id, attempt)
	if n == nil {
		m.unwound(id, attempt)
		return
	}
	at.engineRunning = false
	if n.Status == queue.StatusCanceling {
		m.finishCancel(n, at)
		return
	}
	m.fail(n, err)
}

func (m *Manager) onEngineStopped(id string, attempt uint64) {
	n, at := m.current(id, attempt)
	if n == nil {
		m.unwound(id, attempt)
		return
	}
	at.engineRunning = false
	if n.Status == queue.StatusCanceling {
		m.finishCancel(n, at)
		return
	}
	m.pauseTransfer(n)
}
