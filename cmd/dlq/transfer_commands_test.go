package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"dlq/internal/queue"
)

func addedIDs(t *testing.T, out string) []string {
	t.Helper()
	var ids []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Added transfer "):
			ids = append(ids, strings.TrimPrefix(line, "Added transfer "))
		case strings.HasPrefix(line, "c-"):
			ids = append(ids, line)
		}
	}
	if len(ids) == 0 {
		t.Fatalf("no ids in output %q", out)
	}
	return ids
}

func TestAddListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "add", "--paused", "--priority", "high",
		"http://example.com/alpha.bin", "http://example.com/beta.bin")
	requireContains(t, out, "Added 2 transfers")
	ids := addedIDs(t, out)
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}

	rec := env.record(t, ids[0])
	if rec.Status != queue.StatusPaused || rec.Priority != queue.PriorityHigh {
		t.Fatalf("unexpected record: %+v", rec)
	}

	out = env.run(t, "list")
	requireContains(t, out, "alpha.bin")
	requireContains(t, out, "beta.bin")
	requireContains(t, out, "Paused")

	out = env.run(t, "list", "--json")
	var records []queue.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode list json: %v", err)
	}
	if len(records) != 2 || len(records[0].Children) != 1 {
		t.Fatalf("unexpected list json: %+v", records)
	}

	out = env.run(t, "show", ids[1])
	requireContains(t, out, "http://example.com/beta.bin")
	requireContains(t, out, "Kind:")
	requireContains(t, out, "transfer")
}

func TestAddGroupsIntoPackage(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "add", "--paused", "--package", "Holiday",
		"http://example.com/one.jpg", "http://example.com/two.jpg")
	ids := addedIDs(t, out)

	first := env.record(t, ids[0])
	second := env.record(t, ids[1])
	if first.ParentID == "" || first.ParentID != second.ParentID {
		t.Fatalf("expected both transfers in one package, got %q and %q", first.ParentID, second.ParentID)
	}
	pkg := env.record(t, first.ParentID)
	if pkg.Name != "Holiday" {
		t.Fatalf("expected package name Holiday, got %q", pkg.Name)
	}
}

func TestAddRejectsBadPriority(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"add", "--priority", "urgent", "http://example.com/a.bin"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid priority") {
		t.Fatalf("expected invalid priority error, got %v", err)
	}
}

func TestSearchAndSet(t *testing.T) {
	env := setupCLITestEnv(t)
	ids := addedIDs(t, env.run(t, "add", "--paused", "http://example.com/report.pdf", "http://example.com/photo.png"))

	out := env.run(t, "search", "file_name", "*.pdf", "--match", "wildcard")
	requireContains(t, out, "report.pdf")
	if strings.Contains(out, "photo.png") {
		t.Fatalf("search matched too much: %q", out)
	}

	out = env.run(t, "search", "url", "nothing-like-this", "-m", "contains")
	requireContains(t, out, "No matches")

	env.run(t, "set", ids[1], "priority=lowest", "file_name=picture.png", "use_plugins=false")
	rec := env.record(t, ids[1])
	if rec.Priority != queue.PriorityLowest || rec.FileName != "picture.png" {
		t.Fatalf("unexpected record after set: %+v", rec)
	}

	if _, _, err := runCLI(t, []string{"set", ids[1], "bogus=1"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for unknown property")
	}
	if _, _, err := runCLI(t, []string{"set", ids[1], "use_plugins=maybe"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for non-boolean value")
	}
}

func TestQueuePauseAndCancel(t *testing.T) {
	env := setupCLITestEnv(t)
	ids := addedIDs(t, env.run(t, "add", "--paused", "http://example.com/big.iso"))
	id := ids[0]

	out := env.run(t, "queue", id)
	requireContains(t, out, "Queued 1 of 1")
	job := env.engine.Next(t)
	if job.Job.TransferID != id {
		t.Fatalf("expected engine job for %s, got %s", id, job.Job.TransferID)
	}

	out = env.run(t, "pause", id, "missing")
	requireContains(t, out, "Paused 1 of 2")
	requireContains(t, out, "missing:")
	waitFor(t, 2*time.Second, func() bool {
		return env.record(t, id).Status == queue.StatusPaused
	})

	out = env.run(t, "queue", "--all")
	requireContains(t, out, "Queued all transfers")

	out = env.run(t, "cancel", id)
	requireContains(t, out, "Canceled 1 of 1")
	waitFor(t, 2*time.Second, func() bool {
		out, _, err := runCLI(t, []string{"list"}, env.socketPath, env.configPath)
		return err == nil && strings.Contains(out, "Queue is empty")
	})

	if _, _, err := runCLI(t, []string{"queue"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error without ids")
	}
}

func TestMoveReordersPackages(t *testing.T) {
	env := setupCLITestEnv(t)
	ids := addedIDs(t, env.run(t, "add", "--paused", "http://example.com/first.bin", "http://example.com/second.bin"))
	secondPkg := env.record(t, ids[1]).ParentID

	env.run(t, "move", secondPkg, "0")

	out := env.run(t, "list", "--json", "--packages-only")
	var records []queue.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode list json: %v", err)
	}
	if len(records) != 2 || records[0].ID != secondPkg {
		t.Fatalf("expected %s first, got %+v", secondPkg, records)
	}
}
