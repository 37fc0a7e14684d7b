package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dlq/internal/daemon"
	"dlq/internal/events"
	"dlq/internal/ipc"
	"dlq/internal/logging"
	"dlq/internal/queue"
	"dlq/internal/testsupport"
	"dlq/internal/workflow"
)

func boolPtr(v bool) *bool { return &v }

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	hub := events.NewHub()
	eng := testsupport.NewFakeEngine()
	mgr := workflow.NewManager(cfg, store, nil, eng, hub, logger,
		workflow.WithTreeOptions(queue.WithIDGenerator(testsupport.SequentialIDs("i"))))
	d, err := daemon.New(cfg, store, mgr, hub, nil, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if _, err := client.List(ipc.ListRequest{}); err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("expected not running error before start, got %v", err)
	}

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	added, err := client.Append(ipc.AppendRequest{
		URLs:               []string{"http://example.com/a.bin", "http://example.com/b.bin"},
		StartAutomatically: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(added.IDs) != 2 {
		t.Fatalf("expected 2 ids, got %v", added.IDs)
	}

	list, err := client.List(ipc.ListRequest{Children: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list.Transfers) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(list.Transfers))
	}

	desc, err := client.Describe(added.IDs[0], false)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if desc.Transfer.Status != queue.StatusPaused || desc.Transfer.FileName != "a.bin" {
		t.Fatalf("unexpected transfer: %+v", desc.Transfer)
	}
	if _, err := client.Describe("missing", false); err == nil {
		t.Fatal("expected error describing unknown id")
	}

	paused, err := client.Pause([]string{added.IDs[0], "missing"})
	if err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if paused.Updated != 0 || len(paused.Failed) != 2 {
		t.Fatalf("expected both pauses to fail, got %+v", paused)
	}

	queued, err := client.Queue([]string{added.IDs[0]})
	if err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	if queued.Updated != 1 {
		t.Fatalf("expected 1 queued, got %+v", queued)
	}
	if job := eng.Next(t); job.Job.TransferID != added.IDs[0] {
		t.Fatalf("unexpected engine job %s", job.Job.TransferID)
	}

	found, err := client.Search(ipc.SearchRequest{Property: "file_name", Value: "b.bin", Match: "exact"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found.Transfers) != 1 || found.Transfers[0].ID != added.IDs[1] {
		t.Fatalf("unexpected search result: %+v", found.Transfers)
	}

	set, err := client.SetProperties(added.IDs[1], map[string]any{"priority": "low"})
	if err != nil || !set.OK {
		t.Fatalf("SetProperties failed: %v %+v", err, set)
	}

	limit, err := client.SetConcurrency(0)
	if err != nil {
		t.Fatalf("SetConcurrency failed: %v", err)
	}
	if limit.Limit != 1 {
		t.Fatalf("expected clamped limit 1, got %d", limit.Limit)
	}
	if _, err := client.SetNextAction("reboot"); err == nil {
		t.Fatal("expected error for unknown next action")
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.Workflow.ActiveCount != 1 || status.Workflow.TotalCount != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}

	if err := os.WriteFile(cfg.LogPath(), []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if filepath.Base(dbHealth.DBPath) != "dlq.db" {
		t.Fatalf("unexpected db path: %s", dbHealth.DBPath)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message == "" {
		t.Fatalf("expected unsent notification with message, got %#v", notifyResp)
	}

	canceled, err := client.Cancel([]string{added.IDs[1]}, false)
	if err != nil || canceled.Updated != 1 {
		t.Fatalf("Cancel failed: %v %+v", err, canceled)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestIPCLogTailFollow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil, testsupport.NewFakeEngine(), nil, nil)
	d, err := daemon.New(cfg, store, mgr, nil, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	srv, err := ipc.NewServer(context.Background(), cfg.Paths.SocketPath, d, nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := os.WriteFile(cfg.LogPath(), []byte("one\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	initial, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("LogTail failed: %v", err)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		resp, err := client.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 2000})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "two" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
	}(initial.Offset)

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(cfg.LogPath(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("append log: %v", err)
	}
	_, _ = f.WriteString("two\n")
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}
}
