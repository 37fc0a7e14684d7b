package workflow

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"dlq/internal/logging"
	"dlq/internal/plugin"
	"dlq/internal/queue"
	"dlq/internal/textutil"
)

const checkURLWorkers = 4

// AppendRequest adds URLs or checked URL results to the tree. Nil pointer
// fields take the configured defaults.
type AppendRequest struct {
	URLs               []string           `json:"urls,omitempty"`
	Results            []plugin.URLResult `json:"results,omitempty"`
	PackageName        string             `json:"package_name,omitempty"`
	Category           *string            `json:"category,omitempty"`
	CreateSubfolder    *bool              `json:"create_subfolder,omitempty"`
	Priority           queue.Priority     `json:"priority"`
	CustomCommand      string             `json:"custom_command,omitempty"`
	OverrideCommand    bool               `json:"override_command,omitempty"`
	StartAutomatically *bool              `json:"start_automatically,omitempty"`
	Method             string             `json:"method,omitempty"`
	Headers            map[string]string  `json:"headers,omitempty"`
	PostData           string             `json:"post_data,omitempty"`
}

func (m *Manager) specsFor(req AppendRequest) []queue.TransferSpec {
	category := m.cfg.Transfers.DefaultCategory
	if req.Category != nil {
		category = strings.TrimSpace(*req.Category)
	}
	subfolder := m.cfg.Transfers.CreateSubfolders
	if req.CreateSubfolder != nil {
		subfolder = *req.CreateSubfolder
	}
	base := queue.TransferSpec{
		Method:                req.Method,
		Headers:               req.Headers,
		PostData:              req.PostData,
		Category:              category,
		CreateSubfolder:       subfolder,
		Priority:              req.Priority,
		CustomCommand:         req.CustomCommand,
		CustomCommandOverride: req.OverrideCommand,
	}
	specs := make([]queue.TransferSpec, 0, len(req.URLs)+len(req.Results))
	for _, raw := range req.URLs {
		spec := base
		spec.URL = strings.TrimSpace(raw)
		specs = append(specs, spec)
	}
	for _, res := range req.Results {
		spec := base
		spec.URL = res.URL
		spec.FileName = res.FileName
		spec.Size = res.Size
		spec.PluginID = res.PluginID
		spec.UsePlugins = true
		specs = append(specs, spec)
	}
	return specs
}

// Append adds transfers and returns their IDs in order. A list with a package
// name becomes one package; otherwise each item finds or creates its own.
func (m *Manager) Append(ctx context.Context, req AppendRequest) ([]string, error) {
	specs := m.specsFor(req)
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no urls given", queue.ErrInvalidSpec)
	}
	start := m.cfg.Transfers.StartAutomatically
	if req.StartAutomatically != nil {
		start = *req.StartAutomatically
	}
	packageName := strings.TrimSpace(req.PackageName)

	var ids []string
	err := m.do(ctx, func() error {
		var nodes []*queue.Node
		if len(specs) > 1 && packageName != "" {
			added, err := m.tree.AppendBatch(specs, packageName)
			if err != nil {
				return err
			}
			nodes = added
		} else {
			for _, spec := range specs {
				if err := spec.Validate(); err != nil {
					return err
				}
			}
			for _, spec := range specs {
				n, err := m.tree.Append(spec, packageName)
				if err != nil {
					return err
				}
				nodes = append(nodes, n)
			}
		}
		for _, n := range nodes {
			ids = append(ids, n.ID)
			m.transferLogger(n).Info("transfer added",
				logging.String("url", n.URL),
				logging.String("file_name", n.FileName),
			)
			if start {
				m.queueTransfer(n)
			}
		}
		m.persist()
		return nil
	})
	return ids, err
}

// CheckURLs expands URLs through their plugins without touching the tree.
// URLs no plugin claims come back as a single direct result.
func (m *Manager) CheckURLs(ctx context.Context, urls []string) ([]plugin.URLResult, error) {
	batches := make([][]plugin.URLResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkURLWorkers)
	for i, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		g.Go(func() error {
			svc, ok := m.plugins.Lookup(raw)
			if !ok {
				batches[i] = []plugin.URLResult{{URL: raw, FileName: queue.FileNameFromURL(raw)}}
				return nil
			}
			reqCtx, cancel := gctx, context.CancelFunc(func() {})
			if timeout := m.cfg.RequestTimeout(); timeout > 0 {
				reqCtx, cancel = context.WithTimeout(gctx, timeout)
			}
			defer cancel()
			results, err := svc.CheckURL(reqCtx, raw, m.plugins.Settings(svc.ID()))
			if err != nil {
				return fmt.Errorf("check %s: %w", raw, err)
			}
			for j := range results {
				if results[j].PluginID == "" {
					results[j].PluginID = svc.ID()
				}
			}
			batches[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []plugin.URLResult
	for _, batch := range batches {
		out = append(out, batch...)
	}
	return out, nil
}

// QueueAll queues every startable transfer.
func (m *Manager) QueueAll(ctx context.Context) error {
	return m.do(ctx, func() error {
		m.queueAll()
		return nil
	})
}

// PauseAll pauses every pausable transfer.
func (m *Manager) PauseAll(ctx context.Context) error {
	return m.do(ctx, func() error {
		m.pauseAll()
		m.persist()
		return nil
	})
}

// targets resolves id to the transfers a command applies to: the transfer
// itself or every child of a package.
func (m *Manager) targets(id string) (*queue.Node, []*queue.Node, error) {
	n := m.tree.Get(id)
	if n == nil || n.Kind == queue.KindRoot {
		return nil, nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	if n.Kind == queue.KindPackage {
		return n, m.tree.Children(id), nil
	}
	return n, []*queue.Node{n}, nil
}

// Queue queues a transfer, or every startable child of a package.
func (m *Manager) Queue(ctx context.Context, id string) error {
	return m.do(ctx, func() error {
		n, transfers, err := m.targets(id)
		if err != nil {
			return err
		}
		changed := false
		for _, t := range transfers {
			changed = m.queueTransfer(t) || changed
		}
		if !changed && n.Kind == queue.KindTransfer {
			return fmt.Errorf("%w: cannot queue %s transfer", queue.ErrInvalidTransition, n.Status)
		}
		return nil
	})
}

// Pause pauses a transfer, or every pausable child of a package.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.do(ctx, func() error {
		n, transfers, err := m.targets(id)
		if err != nil {
			return err
		}
		changed := false
		for _, t := range transfers {
			changed = m.pauseTransfer(t) || changed
		}
		if !changed && n.Kind == queue.KindTransfer {
			return fmt.Errorf("%w: cannot pause %s transfer", queue.ErrInvalidTransition, n.Status)
		}
		return nil
	})
}

// Cancel cancels a transfer or a whole package. deleteFiles also removes the
// partial downloads.
func (m *Manager) Cancel(ctx context.Context, id string, deleteFiles bool) error {
	return m.do(ctx, func() error {
		n, transfers, err := m.targets(id)
		if err != nil {
			return err
		}
		if n.Kind == queue.KindPackage {
			n.CancelRequested = true
			m.tree.Touch(n.ID, "cancel_requested")
			m.tree.Refresh(n.ID)
		}
		changed := false
		for _, t := range transfers {
			changed = m.cancelTransfer(t, deleteFiles) || changed
		}
		if n.Kind == queue.KindPackage {
			m.tree.Refresh(n.ID)
			return nil
		}
		if !changed {
			return fmt.Errorf("%w: cannot cancel %s transfer", queue.ErrInvalidTransition, n.Status)
		}
		return nil
	})
}

// Reload restarts a failed or canceled transfer from scratch.
func (m *Manager) Reload(ctx context.Context, id string) error {
	return m.do(ctx, func() error {
		n, transfers, err := m.targets(id)
		if err != nil {
			return err
		}
		reloaded := 0
		for _, t := range transfers {
			if t.Status != queue.StatusFailed && t.Status != queue.StatusCanceled {
				continue
			}
			m.deletePartial(t)
			t.BytesTransferred = 0
			t.Speed = 0
			t.ErrorString = ""
			m.tree.Touch(t.ID, "progress")
			m.queueTransfer(t)
			reloaded++
		}
		if reloaded == 0 && n.Kind == queue.KindTransfer {
			return fmt.Errorf("%w: cannot reload %s transfer", queue.ErrInvalidTransition, n.Status)
		}
		return nil
	})
}

// Move places sourceID at destIndex under destParentID. Packages move under
// the root; transfers move between packages. It returns false for any move
// the tree shape does not allow.
func (m *Manager) Move(ctx context.Context, sourceID, destParentID string, destIndex int) (bool, error) {
	var moved bool
	err := m.do(ctx, func() error {
		if n := m.tree.Get(sourceID); n == nil || n.Kind == queue.KindRoot {
			return fmt.Errorf("%w: %s", queue.ErrNotFound, sourceID)
		}
		if m.tree.Get(destParentID) == nil {
			return fmt.Errorf("%w: %s", queue.ErrNotFound, destParentID)
		}
		moved = m.tree.MoveTo(sourceID, destParentID, destIndex)
		return nil
	})
	return moved, err
}

// GetTransfer returns one node's record.
func (m *Manager) GetTransfer(ctx context.Context, id string, includeChildren bool) (queue.Record, error) {
	var rec queue.Record
	err := m.do(ctx, func() error {
		r, err := m.tree.Record(id, includeChildren)
		if err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
		rec = r
		return nil
	})
	return rec, err
}

// GetTransfers returns a window of packages in tree order. limit <= 0 means all.
func (m *Manager) GetTransfers(ctx context.Context, offset, limit int, includeChildren bool) ([]queue.Record, error) {
	var recs []queue.Record
	err := m.do(ctx, func() error {
		recs = m.tree.Records(offset, limit, includeChildren)
		return nil
	})
	return recs, err
}

// Search matches a property of every package and transfer.
func (m *Manager) Search(ctx context.Context, property, value, match string) ([]queue.Record, error) {
	mode, err := textutil.ParseMatchMode(match)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	var recs []queue.Record
	err = m.do(ctx, func() error {
		nodes, err := m.tree.Search(property, value, mode)
		if err != nil {
			return err
		}
		recs = make([]queue.Record, 0, len(nodes))
		for _, n := range nodes {
			recs = append(recs, m.tree.ToRecord(n, false))
		}
		return nil
	})
	return recs, err
}

// SetProperty assigns one writable property. It reports false when the name
// is unknown or the value is rejected.
func (m *Manager) SetProperty(ctx context.Context, id, name string, value any) (bool, error) {
	var ok bool
	err := m.do(ctx, func() error {
		set, err := m.tree.SetProperty(id, name, value)
		if err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
		ok = set
		if set && name == queue.PropPriority {
			m.armQueue()
		}
		return nil
	})
	return ok, err
}

// SetProperties assigns several properties; nothing changes unless every
// name is writable and every value is accepted.
func (m *Manager) SetProperties(ctx context.Context, id string, props map[string]any) (bool, error) {
	var ok bool
	err := m.do(ctx, func() error {
		set, err := m.tree.SetProperties(id, props)
		if err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
		ok = set
		if _, touched := props[queue.PropPriority]; set && touched {
			m.armQueue()
		}
		return nil
	})
	return ok, err
}

// GetStatus returns the scheduler summary.
func (m *Manager) GetStatus(ctx context.Context) (Status, error) {
	var s Status
	err := m.do(ctx, func() error {
		s = m.status()
		return nil
	})
	return s, err
}

// PendingInteraction is a transfer waiting for a captcha or settings response.
type PendingInteraction struct {
	TransferID  string            `json:"transfer_id"`
	Name        string            `json:"name"`
	Status      queue.Status      `json:"status"`
	Interaction queue.Interaction `json:"interaction"`
}

// Interactions lists the transfers waiting for input, in tree order.
func (m *Manager) Interactions(ctx context.Context) ([]PendingInteraction, error) {
	var out []PendingInteraction
	err := m.do(ctx, func() error {
		for _, n := range m.tree.Transfers() {
			if n.Interaction == nil {
				continue
			}
			if n.Status != queue.StatusAwaitingCaptchaResponse && n.Status != queue.StatusAwaitingSettingsResponse {
				continue
			}
			out = append(out, PendingInteraction{
				TransferID:  n.ID,
				Name:        n.Name,
				Status:      n.Status,
				Interaction: *n.Interaction,
			})
		}
		return nil
	})
	return out, err
}

// SubmitCaptchaResponse answers a pending captcha request.
func (m *Manager) SubmitCaptchaResponse(ctx context.Context, id, response string) error {
	return m.do(ctx, func() error {
		n, err := m.awaiting(id, queue.StatusAwaitingCaptchaResponse)
		if err != nil {
			return err
		}
		return m.resume(n, func(ctx context.Context, svc plugin.Service, callback string) (plugin.Result, error) {
			return svc.SubmitCaptchaResponse(ctx, callback, response)
		})
	})
}

// SubmitSettingsResponse answers a pending settings request.
func (m *Manager) SubmitSettingsResponse(ctx context.Context, id string, values map[string]any) error {
	return m.do(ctx, func() error {
		n, err := m.awaiting(id, queue.StatusAwaitingSettingsResponse)
		if err != nil {
			return err
		}
		return m.resume(n, func(ctx context.Context, svc plugin.Service, callback string) (plugin.Result, error) {
			return svc.SubmitSettingsResponse(ctx, callback, values)
		})
	})
}

func (m *Manager) awaiting(id string, status queue.Status) (*queue.Node, error) {
	n := m.tree.Get(id)
	if n == nil || n.Kind != queue.KindTransfer {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	if n.Status != status {
		return nil, fmt.Errorf("%w: transfer is %s, not %s", queue.ErrInvalidTransition, n.Status, status)
	}
	return n, nil
}

// SetConcurrencyLimit changes the limit, clamped to [1, 20]. Raising it admits
// more transfers; lowering it pauses the excess. It returns the applied limit.
func (m *Manager) SetConcurrencyLimit(ctx context.Context, limit int) (int, error) {
	var applied int
	err := m.do(ctx, func() error {
		m.setLimit(limit)
		applied = m.limit
		return nil
	})
	return applied, err
}

// SetNextAction changes what happens after transfers finish.
func (m *Manager) SetNextAction(ctx context.Context, action NextAction) error {
	parsed, err := ParseNextAction(string(action))
	if err != nil {
		return err
	}
	return m.do(ctx, func() error {
		if parsed == m.nextAction {
			return nil
		}
		m.logger.Info("next action changed",
			logging.String("previous", string(m.nextAction)),
			logging.String("next_action", string(parsed)),
		)
		m.nextAction = parsed
		if parsed == NextActionContinue {
			m.armQueue()
		}
		return nil
	})
}
