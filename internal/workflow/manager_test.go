package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dlq/internal/events"
	"dlq/internal/queue"
	"dlq/internal/testsupport"
	"dlq/internal/workflow"
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCommandsRequireRunningManager(t *testing.T) {
	h := newHarness(t)

	if _, err := h.mgr.GetStatus(context.Background()); !errors.Is(err, workflow.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before Start, got %v", err)
	}

	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.mgr.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	h.mgr.Stop()

	if _, err := h.mgr.Append(context.Background(), workflow.AppendRequest{URLs: []string{"http://example.com/a"}}); !errors.Is(err, workflow.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after Stop, got %v", err)
	}
}

func TestAppendGroupsSplitArchives(t *testing.T) {
	h := newHarness(t)
	h.start()

	a := h.add("http://example.com/movie.part1.rar", queue.PriorityNormal)
	b := h.add("http://example.com/movie.part2.rar", queue.PriorityNormal)
	c := h.add("http://example.com/other.zip", queue.PriorityNormal)

	pkgs, err := h.mgr.GetTransfers(context.Background(), 0, 0, true)
	if err != nil {
		t.Fatalf("GetTransfers failed: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(pkgs))
	}
	if pkgs[0].Name != "movie" || pkgs[0].Suffix != "rar" || len(pkgs[0].Children) != 2 {
		t.Fatalf("unexpected archive package: %+v", pkgs[0])
	}
	if pkgs[0].Children[0].ID != a || pkgs[0].Children[1].ID != b || pkgs[1].Children[0].ID != c {
		t.Fatalf("unexpected transfer order: %+v", pkgs)
	}
	if pkgs[0].Status != queue.StatusPaused {
		t.Fatalf("expected paused package, got %s", pkgs[0].Status)
	}
}

func TestAppendBatchUsesNamedPackage(t *testing.T) {
	h := newHarness(t, withConfig(testsupport.WithCategory("video")))
	h.start()

	category := "video"
	ids, err := h.mgr.Append(context.Background(), workflow.AppendRequest{
		URLs:               []string{"http://example.com/a.mkv", "http://example.com/b.mkv"},
		PackageName:        "Season 1",
		Category:           &category,
		CreateSubfolder:    boolPtr(true),
		Priority:           queue.PriorityHigh,
		StartAutomatically: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}

	pkg, err := h.mgr.GetTransfer(context.Background(), h.record(ids[0]).ParentID, true)
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if pkg.Name != "Season 1" || len(pkg.Children) != 2 || pkg.Priority != queue.PriorityHigh {
		t.Fatalf("unexpected package: %+v", pkg)
	}
	for _, child := range pkg.Children {
		if child.Category != "video" || !child.CreateSubfolder || child.UsePlugins {
			t.Fatalf("unexpected child: %+v", child)
		}
	}

	if err := h.mgr.Queue(context.Background(), pkg.ID); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	job := h.engine.Next(t)
	want := filepath.Join(h.cfg.Categories["video"], "Season 1")
	if job.Job.FinalDir != want {
		t.Fatalf("expected final dir %q, got %q", want, job.Job.FinalDir)
	}
}

func TestAppendRejectsEmptyURL(t *testing.T) {
	h := newHarness(t)
	h.start()

	_, err := h.mgr.Append(context.Background(), workflow.AppendRequest{URLs: []string{"http://example.com/a", "  "}})
	if !errors.Is(err, queue.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
	if status := h.status(); status.TotalCount != 0 {
		t.Fatalf("expected nothing appended, got %d", status.TotalCount)
	}
	if _, err := h.mgr.Append(context.Background(), workflow.AppendRequest{}); !errors.Is(err, queue.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec for empty request, got %v", err)
	}
}

func TestCommandsOnUnknownNodes(t *testing.T) {
	h := newHarness(t)
	h.start()
	ctx := context.Background()

	if err := h.mgr.Queue(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Queue: expected ErrNotFound, got %v", err)
	}
	if err := h.mgr.Cancel(ctx, "missing", false); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Cancel: expected ErrNotFound, got %v", err)
	}
	if _, err := h.mgr.SetProperty(ctx, "missing", queue.PropName, "x"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("SetProperty: expected ErrNotFound, got %v", err)
	}
	if err := h.mgr.SubmitCaptchaResponse(ctx, "missing", "x"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("SubmitCaptchaResponse: expected ErrNotFound, got %v", err)
	}

	id := h.add("http://example.com/a.bin", queue.PriorityNormal)
	if err := h.mgr.Pause(ctx, id); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("Pause of paused transfer: expected ErrInvalidTransition, got %v", err)
	}
	if err := h.mgr.SubmitCaptchaResponse(ctx, id, "x"); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("SubmitCaptchaResponse: expected ErrInvalidTransition, got %v", err)
	}
}

func TestMoveAndPropertiesThroughManager(t *testing.T) {
	h := newHarness(t)
	h.start()
	ctx := context.Background()

	a := h.add("http://example.com/a.bin", queue.PriorityNormal)
	b := h.add("http://example.com/b.bin", queue.PriorityNormal)
	pkgA, pkgB := h.record(a).ParentID, h.record(b).ParentID

	moved, err := h.mgr.Move(ctx, pkgB, queue.RootID, 0)
	if err != nil || !moved {
		t.Fatalf("Move package failed: moved=%v err=%v", moved, err)
	}
	pkgs, _ := h.mgr.GetTransfers(ctx, 0, 1, false)
	if len(pkgs) != 1 || pkgs[0].ID != pkgB {
		t.Fatalf("expected %s first, got %+v", pkgB, pkgs)
	}

	moved, err = h.mgr.Move(ctx, a, a, 0)
	if err != nil || moved {
		t.Fatalf("expected transfer-into-transfer move rejected, moved=%v err=%v", moved, err)
	}

	moved, err = h.mgr.Move(ctx, a, pkgB, 1)
	if err != nil || !moved {
		t.Fatalf("cross-package move failed: moved=%v err=%v", moved, err)
	}
	if _, err := h.mgr.GetTransfer(ctx, pkgA, false); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected emptied package removed, got %v", err)
	}

	ok, err := h.mgr.SetProperties(ctx, pkgB, map[string]any{queue.PropPriority: "highest", queue.PropCategory: "iso"})
	if err != nil || !ok {
		t.Fatalf("SetProperties failed: ok=%v err=%v", ok, err)
	}
	for _, id := range []string{a, b} {
		rec := h.record(id)
		if rec.Priority != queue.PriorityHighest || rec.Category != "iso" {
			t.Fatalf("expected propagated properties on %s, got %+v", id, rec)
		}
	}

	ok, err = h.mgr.SetProperty(ctx, a, "size", 10)
	if err != nil || ok {
		t.Fatalf("expected read-only property rejected, ok=%v err=%v", ok, err)
	}

	found, err := h.mgr.Search(ctx, "url", "*/b.bin", "wildcard")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != b {
		t.Fatalf("unexpected search result: %+v", found)
	}
	if _, err := h.mgr.Search(ctx, "url", "x", "fuzzy"); !errors.Is(err, workflow.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for unknown match mode, got %v", err)
	}
}

func TestReloadRestartsFailedTransfer(t *testing.T) {
	h := newHarness(t)
	h.start()
	ctx := context.Background()

	id := h.add("http://example.com/flaky.bin", queue.PriorityNormal)
	if err := h.mgr.Queue(ctx, id); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	job := h.engine.Next(t)
	job.Progress(100, 1000, 10)
	job.Fail(errors.New("timeout"))
	h.waitForStatus(id, queue.StatusFailed)

	if err := h.mgr.Reload(ctx, id); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	h.engine.Next(t)
	rec := h.record(id)
	if rec.Status != queue.StatusConnecting || rec.BytesTransferred != 0 || rec.ErrorString != "" {
		t.Fatalf("unexpected record after reload: %+v", rec)
	}
	if err := h.mgr.Reload(ctx, id); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition reloading an active transfer, got %v", err)
	}
}

func TestPackageCancelKeepsChildrenUntilAllTerminal(t *testing.T) {
	h := newHarness(t, withManualStop())
	h.start()
	ctx := context.Background()

	ids, err := h.mgr.Append(ctx, workflow.AppendRequest{
		URLs:               []string{"http://example.com/1.bin", "http://example.com/2.bin"},
		PackageName:        "bundle",
		StartAutomatically: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	job := h.engine.Next(t)
	pkgID := h.record(ids[0]).ParentID

	if err := h.mgr.Cancel(ctx, pkgID, false); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	pkg, err := h.mgr.GetTransfer(ctx, pkgID, true)
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if pkg.Status != queue.StatusCanceling || len(pkg.Children) != 2 {
		t.Fatalf("expected canceling package with both children, got %+v", pkg)
	}
	if pkg.Children[1].Status != queue.StatusCanceled {
		t.Fatalf("expected queued child canceled immediately, got %s", pkg.Children[1].Status)
	}

	job.Stop()
	h.waitForRemoval(pkgID)
}

func TestRestoreRequeuesInFlightTransfers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	seed := queue.NewTree(queue.WithIDGenerator(testsupport.SequentialIDs("r")))
	downloading, err := seed.Append(queue.TransferSpec{URL: "http://example.com/a.bin"}, "")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	paused, _ := seed.Append(queue.TransferSpec{URL: "http://example.com/b.bin"}, "")
	waiting, _ := seed.Append(queue.TransferSpec{URL: "http://example.com/c.bin"}, "")
	captcha, _ := seed.Append(queue.TransferSpec{URL: "http://example.com/d.bin"}, "")
	_ = seed.SetStatus(downloading.ID, queue.StatusDownloading)
	waiting.WaitUntil = time.Now().Add(-time.Minute)
	_ = seed.SetStatus(waiting.ID, queue.StatusWaitingInactive)
	_ = seed.SetStatus(captcha.ID, queue.StatusAwaitingCaptchaResponse)
	if err := store.Save(context.Background(), seed.Snapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	eng := testsupport.NewFakeEngine()
	mgr := workflow.NewManager(cfg, store, nil, eng, nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	requeued, err := mgr.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if requeued != 3 {
		t.Fatalf("expected 3 requeued transfers, got %d", requeued)
	}

	job := eng.Next(t)
	if job.Job.TransferID != downloading.ID {
		t.Fatalf("expected first restored transfer admitted, got %s", job.Job.TransferID)
	}
	rec, err := mgr.GetTransfer(context.Background(), paused.ID, false)
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if rec.Status != queue.StatusPaused {
		t.Fatalf("expected paused transfer untouched, got %s", rec.Status)
	}
	status, err := mgr.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.ActiveCount != 1 || status.QueuedCount != 2 || status.TotalCount != 4 {
		t.Fatalf("unexpected status after restore: %+v", status)
	}

	again, err := mgr.Restore(context.Background())
	if err != nil || again != 0 {
		t.Fatalf("expected second restore to be a no-op, got %d, %v", again, err)
	}
}

func TestEventsFollowTransitions(t *testing.T) {
	h := newHarness(t)
	sub, cancel := h.hub.Subscribe(256)
	defer cancel()
	h.start()

	id := h.add("http://example.com/e.bin", queue.PriorityNormal)
	if err := h.mgr.Queue(context.Background(), id); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	job := h.engine.Next(t)
	job.Start()
	job.Complete("/downloads/e.bin")
	h.waitForRemoval(id)

	var statuses []queue.Status
	var completedPath string
	sawActive, sawDrained := false, false
	timeout := time.After(3 * time.Second)
	for !sawDrained {
		select {
		case evt := <-sub:
			switch evt.Type {
			case events.TypeStatusChanged:
				if evt.TransferID == id {
					statuses = append(statuses, evt.Status)
				}
			case events.TypeTransferCompleted:
				completedPath = evt.Path
			case events.TypeActiveCount:
				if evt.Count == 1 {
					sawActive = true
				}
			case events.TypeQueueDrained:
				sawDrained = true
				if evt.Completed != 1 {
					t.Fatalf("expected 1 completed in drain event, got %d", evt.Completed)
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for events; statuses so far %v", statuses)
		}
	}

	want := []queue.Status{queue.StatusQueued, queue.StatusConnecting, queue.StatusDownloading, queue.StatusCompleted}
	if len(statuses) != len(want) {
		t.Fatalf("expected statuses %v, got %v", want, statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("expected statuses %v, got %v", want, statuses)
		}
	}
	if completedPath != "/downloads/e.bin" || !sawActive {
		t.Fatalf("missing completion or active events: path=%q active=%v", completedPath, sawActive)
	}
}
