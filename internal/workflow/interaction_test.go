package workflow_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"dlq/internal/config"
	"dlq/internal/plugin"
	"dlq/internal/queue"
	"dlq/internal/testsupport"
	"dlq/internal/workflow"
)

func addViaPlugin(t *testing.T, h *harness, rawURL, pluginID string) string {
	t.Helper()
	ids, err := h.mgr.Append(context.Background(), workflow.AppendRequest{
		Results:            []plugin.URLResult{{URL: rawURL, FileName: "video.mp4", PluginID: pluginID}},
		StartAutomatically: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	return ids[0]
}

func TestCaptchaFlowResumesDownload(t *testing.T) {
	fake := testsupport.NewFakePlugin("hoster", "https://hoster.test/",
		testsupport.FakeResult{Result: plugin.CaptchaRequest{CaptchaType: "image", Data: "aGk=", Callback: "cb-1"}},
		testsupport.FakeResult{Result: plugin.DownloadRequest{URL: "https://cdn.hoster.test/video.mp4", FileName: "final.mp4", Size: 4096}},
	)
	h := newHarness(t, withPlugins(fake))
	h.start()

	id := addViaPlugin(t, h, "https://hoster.test/f/1", "hoster")
	rec := h.waitForStatus(id, queue.StatusAwaitingCaptchaResponse)
	if rec.Interaction == nil || rec.Interaction.Callback != "cb-1" || rec.Interaction.PluginID != "hoster" {
		t.Fatalf("unexpected interaction: %+v", rec.Interaction)
	}
	if rec.Interaction.Deadline.IsZero() {
		t.Fatal("expected interaction deadline")
	}
	if status := h.status(); status.ActiveCount != 1 || status.PendingInput != 1 {
		t.Fatalf("captcha should hold the slot, got %+v", status)
	}

	pending, err := h.mgr.Interactions(context.Background())
	if err != nil {
		t.Fatalf("Interactions failed: %v", err)
	}
	if len(pending) != 1 || pending[0].TransferID != id || pending[0].Interaction.Kind != queue.InteractionCaptcha {
		t.Fatalf("unexpected pending interactions: %+v", pending)
	}

	if err := h.mgr.SubmitCaptchaResponse(context.Background(), id, "abc"); err != nil {
		t.Fatalf("SubmitCaptchaResponse failed: %v", err)
	}
	job := h.engine.Next(t)
	if job.Job.URL != "https://cdn.hoster.test/video.mp4" || job.Job.FileName != "final.mp4" {
		t.Fatalf("unexpected engine job: %+v", job.Job)
	}
	if got := h.record(id); got.Size != 4096 || got.Interaction != nil {
		t.Fatalf("unexpected record after captcha: %+v", got)
	}

	calls := fake.Calls()
	if !slices.Equal(calls, []string{"get https://hoster.test/f/1", "captcha cb-1 abc"}) {
		t.Fatalf("unexpected plugin calls: %v", calls)
	}
}

func TestCancelDuringCaptchaRemovesTransfer(t *testing.T) {
	fake := testsupport.NewFakePlugin("hoster", "https://hoster.test/",
		testsupport.FakeResult{Result: plugin.CaptchaRequest{Callback: "cb-2"}},
	)
	h := newHarness(t, withPlugins(fake))
	h.start()

	id := addViaPlugin(t, h, "https://hoster.test/f/2", "hoster")
	h.waitForStatus(id, queue.StatusAwaitingCaptchaResponse)

	if err := h.mgr.Cancel(context.Background(), id, false); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	h.waitForRemoval(id)

	if err := h.mgr.SubmitCaptchaResponse(context.Background(), id, "late"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a late response, got %v", err)
	}
	if status := h.status(); status.ActiveCount != 0 || status.PendingInput != 0 {
		t.Fatalf("unexpected status after cancel: %+v", status)
	}
	if len(h.engine.Jobs()) != 0 {
		t.Fatal("engine should never have been started")
	}
}

func TestCaptchaTimeoutFailsTransfer(t *testing.T) {
	fake := testsupport.NewFakePlugin("hoster", "https://hoster.test/",
		testsupport.FakeResult{Result: plugin.CaptchaRequest{Callback: "cb-3"}},
	)
	h := newHarness(t,
		withPlugins(fake),
		withTweak(func(cfg *config.Config) { cfg.Transfers.CaptchaTimeout = 1 }),
	)
	h.start()

	id := addViaPlugin(t, h, "https://hoster.test/f/3", "hoster")
	h.waitForStatus(id, queue.StatusAwaitingCaptchaResponse)

	deadline := time.Now().Add(3 * time.Second)
	for {
		rec := h.record(id)
		if rec.Status == queue.StatusFailed {
			if rec.ErrorString != "captcha response timed out" || rec.Interaction != nil {
				t.Fatalf("unexpected failed record: %+v", rec)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("captcha did not time out, status %s", rec.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status := h.status(); status.ActiveCount != 0 {
		t.Fatalf("expected slot released, got %d active", status.ActiveCount)
	}
}

func TestSettingsFlow(t *testing.T) {
	fake := testsupport.NewFakePlugin("hoster", "https://hoster.test/",
		testsupport.FakeResult{Result: plugin.SettingsRequest{
			Title:    "Choose quality",
			Fields:   []plugin.SettingsField{{Key: "quality", Label: "Quality", Type: "list", Value: "720p", Options: []string{"480p", "720p"}}},
			Callback: "cb-s",
		}},
	)
	h := newHarness(t, withPlugins(fake))
	h.start()

	id := addViaPlugin(t, h, "https://hoster.test/f/4", "hoster")
	rec := h.waitForStatus(id, queue.StatusAwaitingSettingsResponse)
	if rec.Interaction == nil || rec.Interaction.Title != "Choose quality" || len(rec.Interaction.Fields) != 1 {
		t.Fatalf("unexpected settings interaction: %+v", rec.Interaction)
	}
	if err := h.mgr.SubmitCaptchaResponse(context.Background(), id, "x"); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition answering settings with a captcha, got %v", err)
	}

	if err := h.mgr.SubmitSettingsResponse(context.Background(), id, map[string]any{"quality": "480p"}); err != nil {
		t.Fatalf("SubmitSettingsResponse failed: %v", err)
	}
	h.engine.Next(t)
	if calls := fake.Calls(); len(calls) != 2 || calls[1] != "settings cb-s 1" {
		t.Fatalf("unexpected plugin calls: %v", calls)
	}
}

func TestPluginErrorFailsTransfer(t *testing.T) {
	fake := testsupport.NewFakePlugin("hoster", "https://hoster.test/",
		testsupport.FakeResult{Err: errors.New("file removed")},
	)
	h := newHarness(t, withPlugins(fake))
	h.start()

	id := addViaPlugin(t, h, "https://hoster.test/f/5", "hoster")
	rec := h.waitForStatus(id, queue.StatusFailed)
	if rec.ErrorString != "plugin hoster: file removed" {
		t.Fatalf("unexpected error string %q", rec.ErrorString)
	}
}

func TestLongWaitReleasesSlot(t *testing.T) {
	fake := testsupport.NewFakePlugin("hoster", "https://hoster.test/",
		testsupport.FakeResult{Result: plugin.WaitRequest{Delay: 200 * time.Millisecond, Long: true, Message: "slots full"}},
	)
	h := newHarness(t, withPlugins(fake))
	h.start()

	waiting := addViaPlugin(t, h, "https://hoster.test/f/6", "hoster")
	h.waitForStatus(waiting, queue.StatusWaitingInactive)

	other := h.add("http://example.com/direct.bin", queue.PriorityNormal)
	if err := h.mgr.Queue(context.Background(), other); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	job := h.engine.Next(t)
	if job.Job.TransferID != other {
		t.Fatalf("expected %s to take the free slot, got %s", other, job.Job.TransferID)
	}

	h.waitForStatus(waiting, queue.StatusQueued)
	job.Complete("/downloads/direct.bin")

	resumed := h.engine.Next(t)
	if resumed.Job.TransferID != waiting {
		t.Fatalf("expected waiting transfer resumed, got %s", resumed.Job.TransferID)
	}
	if calls := fake.Calls(); len(calls) != 2 {
		t.Fatalf("expected the plugin asked twice, got %v", calls)
	}
}

func TestShortWaitKeepsSlot(t *testing.T) {
	fake := testsupport.NewFakePlugin("hoster", "https://hoster.test/",
		testsupport.FakeResult{Result: plugin.WaitRequest{Delay: 50 * time.Millisecond}},
	)
	h := newHarness(t, withPlugins(fake))
	h.start()

	id := addViaPlugin(t, h, "https://hoster.test/f/7", "hoster")
	other := h.add("http://example.com/direct.bin", queue.PriorityNormal)
	if err := h.mgr.Queue(context.Background(), other); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}

	job := h.engine.Next(t)
	if job.Job.TransferID != id {
		t.Fatalf("expected %s to keep its slot through the wait, got %s", id, job.Job.TransferID)
	}
	if got := h.record(other).Status; got != queue.StatusQueued {
		t.Fatalf("expected %s still queued, got %s", other, got)
	}
}
