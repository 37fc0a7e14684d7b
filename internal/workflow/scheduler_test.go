package workflow_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"dlq/internal/queue"
	"dlq/internal/testsupport"
	"dlq/internal/workflow"
)

func TestAdmissionFollowsPriorityThenTreeOrder(t *testing.T) {
	h := newHarness(t, withConfig(testsupport.WithMaxConcurrent(2)))
	h.start()

	priorities := []queue.Priority{queue.PriorityNormal, queue.PriorityHighest, queue.PriorityHigh, queue.PriorityHighest}
	ids := make([]string, len(priorities))
	for i, p := range priorities {
		ids[i] = h.add("http://example.com/file"+string(rune('a'+i))+".bin", p)
	}

	if err := h.mgr.QueueAll(context.Background()); err != nil {
		t.Fatalf("QueueAll failed: %v", err)
	}

	active := h.activeIDs()
	if !slices.Equal(active, []string{ids[1], ids[3]}) {
		t.Fatalf("expected highest-priority transfers %v active, got %v", []string{ids[1], ids[3]}, active)
	}
	if got := h.record(ids[0]).Status; got != queue.StatusQueued {
		t.Fatalf("expected normal-priority transfer to stay queued, got %s", got)
	}

	h.engine.Latest(ids[1]).Complete("/tmp/done")
	h.waitForRemoval(ids[1])

	active = h.activeIDs()
	if !slices.Equal(active, []string{ids[3], ids[2]}) {
		t.Fatalf("expected high-priority transfer admitted next, got %v", active)
	}
	status := h.status()
	if status.ActiveCount != 2 || status.QueuedCount != 1 {
		t.Fatalf("unexpected status after completion: %+v", status)
	}
}

func TestLoweringLimitPausesLowestPriorityFirst(t *testing.T) {
	h := newHarness(t, withConfig(testsupport.WithMaxConcurrent(3)))
	h.start()

	ids := []string{
		h.add("http://example.com/zero.bin", queue.PriorityHighest),
		h.add("http://example.com/one.bin", queue.PriorityHigh),
		h.add("http://example.com/two.bin", queue.PriorityNormal),
	}
	if err := h.mgr.QueueAll(context.Background()); err != nil {
		t.Fatalf("QueueAll failed: %v", err)
	}
	if got := len(h.activeIDs()); got != 3 {
		t.Fatalf("expected 3 active transfers, got %d", got)
	}

	applied, err := h.mgr.SetConcurrencyLimit(context.Background(), 1)
	if err != nil {
		t.Fatalf("SetConcurrencyLimit failed: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected limit 1, got %d", applied)
	}

	if got := h.record(ids[0]).Status; got != queue.StatusConnecting {
		t.Fatalf("expected highest-priority transfer to keep running, got %s", got)
	}
	for _, id := range ids[1:] {
		if got := h.record(id).Status; got != queue.StatusPaused {
			t.Fatalf("expected %s paused, got %s", id, got)
		}
	}
	if status := h.status(); status.ActiveCount != 1 || status.ConcurrencyLimit != 1 {
		t.Fatalf("unexpected status after limit change: %+v", status)
	}
}

func TestLoweringLimitDiscountsCancelingTransfers(t *testing.T) {
	h := newHarness(t, withManualStop(), withConfig(testsupport.WithMaxConcurrent(2)))
	h.start()

	high := h.add("http://example.com/high.bin", queue.PriorityHighest)
	low := h.add("http://example.com/low.bin", queue.PriorityLowest)
	if err := h.mgr.QueueAll(context.Background()); err != nil {
		t.Fatalf("QueueAll failed: %v", err)
	}
	jobs := map[string]*testsupport.FakeJob{}
	for range 2 {
		job := h.engine.Next(t)
		jobs[job.Job.TransferID] = job
	}
	lowJob := jobs[low]
	if lowJob == nil {
		t.Fatalf("expected an engine job for %s, got %v", low, jobs)
	}
	lowJob.Start()
	h.waitForStatus(low, queue.StatusDownloading)

	if err := h.mgr.Cancel(context.Background(), low, false); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := h.mgr.SetConcurrencyLimit(context.Background(), 1); err != nil {
		t.Fatalf("SetConcurrencyLimit failed: %v", err)
	}
	if got := h.record(high).Status; got != queue.StatusConnecting {
		t.Fatalf("expected %s to keep running while %s cancels, got %s", high, low, got)
	}

	lowJob.Stop()
	h.waitForRemoval(low)
	if got := h.activeIDs(); !slices.Equal(got, []string{high}) {
		t.Fatalf("expected only %s active, got %v", high, got)
	}
}

func TestRaisingLimitAdmitsMore(t *testing.T) {
	h := newHarness(t)
	h.start()

	a := h.add("http://example.com/a.bin", queue.PriorityNormal)
	b := h.add("http://example.com/b.bin", queue.PriorityNormal)
	if err := h.mgr.QueueAll(context.Background()); err != nil {
		t.Fatalf("QueueAll failed: %v", err)
	}
	if got := h.activeIDs(); !slices.Equal(got, []string{a}) {
		t.Fatalf("expected only %s active, got %v", a, got)
	}

	if _, err := h.mgr.SetConcurrencyLimit(context.Background(), 2); err != nil {
		t.Fatalf("SetConcurrencyLimit failed: %v", err)
	}
	if got := h.activeIDs(); !slices.Equal(got, []string{a, b}) {
		t.Fatalf("expected both active, got %v", got)
	}
}

func TestConcurrencyLimitIsClamped(t *testing.T) {
	h := newHarness(t)
	h.start()

	for _, tc := range []struct {
		in, want int
	}{
		{0, 1},
		{-4, 1},
		{7, 7},
		{99, 20},
	} {
		got, err := h.mgr.SetConcurrencyLimit(context.Background(), tc.in)
		if err != nil {
			t.Fatalf("SetConcurrencyLimit(%d) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("SetConcurrencyLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestNextActionPauseStopsQueueWhenIdle(t *testing.T) {
	h := newHarness(t)
	h.start()

	first := h.add("http://example.com/first.bin", queue.PriorityNormal)
	second := h.add("http://example.com/second.bin", queue.PriorityNormal)
	if err := h.mgr.QueueAll(context.Background()); err != nil {
		t.Fatalf("QueueAll failed: %v", err)
	}
	if err := h.mgr.SetNextAction(context.Background(), workflow.NextActionPause); err != nil {
		t.Fatalf("SetNextAction failed: %v", err)
	}

	h.engine.Latest(first).Complete("/tmp/first.bin")
	h.waitForRemoval(first)

	if got := h.record(second).Status; got != queue.StatusPaused {
		t.Fatalf("expected remaining transfer paused, got %s", got)
	}
	if status := h.status(); status.ActiveCount != 0 || status.NextAction != workflow.NextActionPause {
		t.Fatalf("unexpected status: %+v", status)
	}

	saved, err := h.store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(saved) != 1 || len(saved[0].Children) != 1 || saved[0].Children[0].Status != queue.StatusPaused {
		t.Fatalf("expected paused transfer persisted, got %+v", saved)
	}
}

func TestNextActionQuitCallsHook(t *testing.T) {
	quit := make(chan struct{})
	h := newHarness(t,
		withConfig(testsupport.WithNextAction("quit")),
		withManagerOptions(workflow.WithQuitHook(func() { close(quit) })),
	)
	h.start()

	id := h.add("http://example.com/only.bin", queue.PriorityNormal)
	if err := h.mgr.Queue(context.Background(), id); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	h.engine.Next(t).Fail(errors.New("connection reset"))

	select {
	case <-quit:
	case <-h.mgr.Done():
		t.Fatal("manager stopped before the quit hook ran")
	case <-time.After(3 * time.Second):
		t.Fatal("quit hook not called")
	}
	if got := h.record(id); got.Status != queue.StatusFailed || got.ErrorString != "connection reset" {
		t.Fatalf("unexpected record after failure: %+v", got)
	}
}

func TestStaleEngineReportsAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.start()

	id := h.add("http://example.com/stale.bin", queue.PriorityNormal)
	if err := h.mgr.Queue(context.Background(), id); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	first := h.engine.Next(t)

	if err := h.mgr.Pause(context.Background(), id); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := h.mgr.Queue(context.Background(), id); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	second := h.engine.Next(t)
	if second.Job.TransferID != id {
		t.Fatalf("expected a second job for %s, got %s", id, second.Job.TransferID)
	}

	first.Reporter.Progress(500, 1000, 10)
	first.Reporter.Completed("/tmp/stale.bin")

	rec := h.record(id)
	if rec.Status != queue.StatusConnecting || rec.BytesTransferred != 0 {
		t.Fatalf("stale reports changed the transfer: %+v", rec)
	}

	second.Start()
	second.Progress(250, 1000, 50)
	rec = h.waitForStatus(id, queue.StatusDownloading)
	if rec.BytesTransferred != 250 || rec.Speed != 50 {
		t.Fatalf("expected live progress applied, got %+v", rec)
	}
	if status := h.status(); status.TotalSpeed != 50 {
		t.Fatalf("expected total speed 50, got %d", status.TotalSpeed)
	}
}

func TestCancelActiveWaitsForEngineAndDeletesPartial(t *testing.T) {
	h := newHarness(t, withManualStop())
	h.start()

	id := h.add("http://example.com/big.iso", queue.PriorityNormal)
	if err := h.mgr.Queue(context.Background(), id); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	job := h.engine.Next(t)
	job.Start()
	h.waitForStatus(id, queue.StatusDownloading)
	testsupport.WritePartial(t, job.Job.DownloadPath, 2048)

	if err := h.mgr.Cancel(context.Background(), id, true); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got := h.record(id).Status; got != queue.StatusCanceling {
		t.Fatalf("expected canceling while the engine unwinds, got %s", got)
	}
	if job.Ctx.Err() == nil {
		t.Fatal("expected job context canceled")
	}
	if status := h.status(); status.ActiveCount != 1 {
		t.Fatalf("canceling transfer should hold its slot, got %d active", status.ActiveCount)
	}

	job.Stop()
	h.waitForRemoval(id)

	if _, err := h.mgr.GetTransfer(context.Background(), id, false); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if fileExists(job.Job.DownloadPath) {
		t.Fatalf("expected partial file %s deleted", job.Job.DownloadPath)
	}
	if status := h.status(); status.ActiveCount != 0 || status.TotalCount != 0 {
		t.Fatalf("unexpected status after cancel: %+v", status)
	}
}
