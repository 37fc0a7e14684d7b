package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dlq/internal/daemonctl"
	"dlq/internal/queue"
	"dlq/internal/testsupport"
)

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tree := queue.NewTree(queue.WithIDGenerator(testsupport.SequentialIDs("s")))
	for _, url := range []string{"http://example.com/a.bin", "http://example.com/b.bin"} {
		if _, err := tree.Append(queue.TransferSpec{URL: url, Priority: queue.PriorityNormal}, ""); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := store.Save(context.Background(), tree.Snapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot failed: %v", err)
	}
	if snap.Reachable || snap.Daemon.Running {
		t.Fatalf("expected offline snapshot, got %+v", snap.Daemon)
	}
	total := 0
	for _, count := range snap.StoredCounts {
		total += count
	}
	if total != 2 {
		t.Fatalf("expected 2 stored transfers, got %v", snap.StoredCounts)
	}
	if len(snap.Daemon.Preflight) == 0 {
		t.Fatal("expected local preflight results")
	}
	if len(snap.SystemChecks) < 3 || snap.SystemChecks[0].Label != "Daemon" || snap.SystemChecks[0].Severity != "warn" {
		t.Fatalf("unexpected system checks: %+v", snap.SystemChecks)
	}
}

func TestStopAndTerminateWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemonctl.StopAndTerminate(cfg, 0); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	alive, pid, err := daemonctl.ProcessInfo(cfg.Paths.SocketPath)
	if err != nil || alive || pid != 0 {
		t.Fatalf("expected no process, got alive=%v pid=%d err=%v", alive, pid, err)
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dlqd.pid")

	if pid, err := daemonctl.ReadPID(path); err != nil || pid != 0 {
		t.Fatalf("expected 0 for missing file, got %d %v", pid, err)
	}
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if pid, err := daemonctl.ReadPID(path); err != nil || pid != 4242 {
		t.Fatalf("expected 4242, got %d %v", pid, err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if pid, err := daemonctl.ReadPID(path); err != nil || pid != 0 {
		t.Fatalf("expected 0 for garbage, got %d %v", pid, err)
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlqd.pid")
	if _, err := daemonctl.ForceKillProcess(path, os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
	if _, err := daemonctl.ForceKillProcess(path, 0); err == nil {
		t.Fatal("expected error without a pid")
	}
}
