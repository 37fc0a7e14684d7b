package workflow_test

import (
	"context"
	"testing"
	"time"

	"dlq/internal/config"
	"dlq/internal/events"
	"dlq/internal/plugin"
	"dlq/internal/queue"
	"dlq/internal/testsupport"
	"dlq/internal/workflow"
)

type harness struct {
	t      *testing.T
	cfg    *config.Config
	store  *queue.Store
	engine *testsupport.FakeEngine
	hub    *events.Hub
	mgr    *workflow.Manager
}

type harnessOption func(*harnessSetup)

type harnessSetup struct {
	cfgOpts  []testsupport.ConfigOption
	plugins  []plugin.Service
	mgrOpts  []workflow.ManagerOption
	tweakCfg func(*config.Config)
	manual   bool
}

func withConfig(opts ...testsupport.ConfigOption) harnessOption {
	return func(s *harnessSetup) { s.cfgOpts = append(s.cfgOpts, opts...) }
}

func withPlugins(services ...plugin.Service) harnessOption {
	return func(s *harnessSetup) { s.plugins = append(s.plugins, services...) }
}

func withManagerOptions(opts ...workflow.ManagerOption) harnessOption {
	return func(s *harnessSetup) { s.mgrOpts = append(s.mgrOpts, opts...) }
}

func withTweak(fn func(*config.Config)) harnessOption {
	return func(s *harnessSetup) { s.tweakCfg = fn }
}

// withManualStop keeps canceled engine jobs running until the test stops them.
func withManualStop() harnessOption {
	return func(s *harnessSetup) { s.manual = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	setup := &harnessSetup{}
	for _, opt := range opts {
		opt(setup)
	}
	cfg := testsupport.NewConfig(t, setup.cfgOpts...)
	if setup.tweakCfg != nil {
		setup.tweakCfg(cfg)
	}
	registry, err := plugin.NewRegistry(setup.plugins...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	h := &harness{
		t:      t,
		cfg:    cfg,
		store:  testsupport.MustOpenStore(t, cfg),
		engine: testsupport.NewFakeEngine(),
		hub:    events.NewHub(),
	}
	h.engine.AutoStop = !setup.manual
	mgrOpts := append([]workflow.ManagerOption{
		workflow.WithTreeOptions(queue.WithIDGenerator(testsupport.SequentialIDs("n"))),
	}, setup.mgrOpts...)
	h.mgr = workflow.NewManager(cfg, h.store, registry, h.engine, h.hub, nil, mgrOpts...)
	return h
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.mgr.Start(context.Background()); err != nil {
		h.t.Fatalf("Start failed: %v", err)
	}
	h.t.Cleanup(h.mgr.Stop)
}

func boolPtr(v bool) *bool { return &v }

// add appends one paused transfer and returns its ID.
func (h *harness) add(url string, priority queue.Priority) string {
	h.t.Helper()
	ids, err := h.mgr.Append(context.Background(), workflow.AppendRequest{
		URLs:               []string{url},
		Priority:           priority,
		StartAutomatically: boolPtr(false),
	})
	if err != nil {
		h.t.Fatalf("Append failed: %v", err)
	}
	if len(ids) != 1 {
		h.t.Fatalf("expected 1 id, got %v", ids)
	}
	return ids[0]
}

func (h *harness) status() workflow.Status {
	h.t.Helper()
	s, err := h.mgr.GetStatus(context.Background())
	if err != nil {
		h.t.Fatalf("GetStatus failed: %v", err)
	}
	return s
}

func (h *harness) record(id string) queue.Record {
	h.t.Helper()
	rec, err := h.mgr.GetTransfer(context.Background(), id, false)
	if err != nil {
		h.t.Fatalf("GetTransfer(%s) failed: %v", id, err)
	}
	return rec
}

// waitForStatus polls until id reaches want.
func (h *harness) waitForStatus(id string, want queue.Status) queue.Record {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		rec, err := h.mgr.GetTransfer(context.Background(), id, false)
		if err == nil && rec.Status == want {
			return rec
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("transfer %s has status %q (err %v), want %q", id, rec.Status, err, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitForRemoval polls until id is gone from the tree.
func (h *harness) waitForRemoval(id string) {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, err := h.mgr.GetTransfer(context.Background(), id, false)
		if err != nil {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("transfer %s still present", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// activeIDs returns the transfers the engine is currently running, in start order.
func (h *harness) activeIDs() []string {
	h.t.Helper()
	h.status()
	var ids []string
	for _, job := range h.engine.Jobs() {
		if job.Ctx.Err() == nil {
			rec, err := h.mgr.GetTransfer(context.Background(), job.Job.TransferID, false)
			if err == nil && rec.Status.IsActive() {
				ids = append(ids, job.Job.TransferID)
			}
		}
	}
	return ids
}
