package queue_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"dlq/internal/queue"
	"dlq/internal/testsupport"
)

func TestStoreRoundTripsSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	tree := newTree(t, queue.WithIncompleteDir(cfg.IncompleteDir()))
	a := mustAppend(t, tree, "https://example.com/a.part1.rar", "")
	b := mustAppend(t, tree, "https://example.com/a.part2.rar", "")
	c := mustAppend(t, tree, "https://example.com/c.bin", "")
	_ = tree.SetStatus(a.ID, queue.StatusQueued)
	_ = tree.SetStatus(b.ID, queue.StatusFailed)
	b.ErrorString = "connection reset"
	c.Priority = queue.PriorityHigh
	c.RequestHeaders = map[string]string{"Cookie": "session=1"}
	c.WaitUntil = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	_ = tree.SetStatus(c.ID, queue.StatusWaitingInactive)

	if err := store.Save(ctx, tree.Snapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, tree.Snapshot()); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	records, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 2 || len(records[0].Children) != 2 || len(records[1].Children) != 1 {
		t.Fatalf("unexpected snapshot shape: %+v", records)
	}

	restored := queue.NewTree()
	if !restored.Restore(records) {
		t.Fatal("expected restore into empty tree")
	}
	want := []string{a.ID, b.ID, c.ID}
	var got []string
	for _, n := range restored.Transfers() {
		got = append(got, n.ID)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("restored order %v want %v", got, want)
	}
	rb := restored.Get(b.ID)
	if rb.Status != queue.StatusFailed || rb.ErrorString != "connection reset" {
		t.Fatalf("unexpected restored failed transfer: %+v", rb)
	}
	rc := restored.Get(c.ID)
	if rc.Priority != queue.PriorityHigh || rc.RequestHeaders["Cookie"] != "session=1" || !rc.WaitUntil.Equal(c.WaitUntil) {
		t.Fatalf("unexpected restored transfer: %+v", rc)
	}
	if rc.DownloadPath != c.DownloadPath {
		t.Fatalf("expected download path %q, got %q", c.DownloadPath, rc.DownloadPath)
	}
	if restored.Get(a.Parent).Status != queue.StatusFailed {
		t.Fatalf("expected recomputed package status, got %s", restored.Get(a.Parent).Status)
	}

	if restored.Restore(records) {
		t.Fatal("expected restore into populated tree to be refused")
	}
}

func TestRestoreSkipsEmptyPackagesAndDuplicates(t *testing.T) {
	records := []queue.Record{
		{ID: "p1", Kind: "package", Name: "empty"},
		{ID: "p2", Kind: "package", Name: "full", Children: []queue.Record{
			{ID: "t1", Kind: "transfer", URL: "https://example.com/x", Status: queue.StatusDownloading},
			{ID: "t1", Kind: "transfer", URL: "https://example.com/x"},
		}},
	}
	tree := queue.NewTree()
	tree.Restore(records)
	if tree.Get("p1") != nil {
		t.Fatal("expected empty package skipped")
	}
	if tree.RowCount("p2") != 1 {
		t.Fatalf("expected duplicate skipped, got %d children", tree.RowCount("p2"))
	}

	if n := tree.RequeueAfterRestore(time.Now()); n != 1 {
		t.Fatalf("expected one requeued transfer, got %d", n)
	}
	if tree.Get("t1").Status != queue.StatusQueued {
		t.Fatalf("expected in-flight transfer requeued, got %s", tree.Get("t1").Status)
	}
}

func TestStoreHealthAndEmptySave(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	tree := newTree(t)
	mustAppend(t, tree, "https://example.com/a.bin", "")
	if err := store.Save(ctx, tree.Snapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.IntegrityCheck || health.Packages != 1 || health.Transfers != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.DBPath != store.File() || store.File() != cfg.DatabasePath() {
		t.Fatalf("unexpected database file %q", health.DBPath)
	}
	if err := store.Save(ctx, nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	records, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty snapshot, got %d", len(records))
	}
}
