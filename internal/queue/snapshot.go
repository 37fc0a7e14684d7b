package queue

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// Snapshotter persists and reloads an ordered tree snapshot.
type Snapshotter interface {
	Save(ctx context.Context, packages []Record) error
	Load(ctx context.Context) ([]Record, error)
}

// Snapshot returns every package, with its transfers, in tree order.
func (t *Tree) Snapshot() []Record {
	return t.Records(0, 0, true)
}

// Restore rebuilds the tree from records. It does nothing and returns false
// when the tree already holds packages. IDs, statuses and priorities are kept;
// records with a duplicate ID and packages without transfers are skipped.
func (t *Tree) Restore(packages []Record) bool {
	if t.HasPackages() {
		return false
	}
	for _, rec := range packages {
		if !rec.IsPackage() || rec.ID == "" || t.nodes[rec.ID] != nil {
			continue
		}
		var transfers []*Node
		seen := map[string]struct{}{}
		for _, child := range rec.Children {
			if child.ID == "" || t.nodes[child.ID] != nil {
				continue
			}
			if _, dup := seen[child.ID]; dup {
				continue
			}
			seen[child.ID] = struct{}{}
			transfers = append(transfers, t.transferFromRecord(child))
		}
		if len(transfers) == 0 {
			continue
		}
		pkg := &Node{
			ID:              rec.ID,
			Kind:            KindPackage,
			Status:          StatusPaused,
			Priority:        rec.Priority,
			Name:            rec.Name,
			Suffix:          rec.Suffix,
			Category:        rec.Category,
			CreateSubfolder: rec.CreateSubfolder,
			CancelRequested: rec.CancelRequested,
		}
		if !pkg.Priority.Valid() {
			pkg.Priority = PriorityNormal
		}
		t.insert(t.root, pkg, len(t.root.Children))
		for _, n := range transfers {
			t.insert(pkg, n, len(pkg.Children))
		}
		t.Refresh(pkg.ID)
	}
	return true
}

func (t *Tree) transferFromRecord(rec Record) *Node {
	status := rec.Status
	if !status.ValidFor(KindTransfer) {
		status = StatusPaused
	}
	priority := rec.Priority
	if !priority.Valid() {
		priority = PriorityNormal
	}
	method := strings.ToUpper(rec.RequestMethod)
	if method == "" {
		method = "GET"
	}
	n := &Node{
		ID:                    rec.ID,
		Kind:                  KindTransfer,
		Status:                status,
		Priority:              priority,
		Name:                  rec.Name,
		Category:              rec.Category,
		CreateSubfolder:       rec.CreateSubfolder,
		ErrorString:           rec.ErrorString,
		URL:                   rec.URL,
		RequestMethod:         method,
		RequestHeaders:        cloneHeaders(rec.RequestHeaders),
		PostData:              rec.PostData,
		DownloadPath:          rec.DownloadPath,
		FileName:              rec.FileName,
		CustomCommand:         rec.CustomCommand,
		CustomCommandOverride: rec.CustomCommandOverride,
		UsePlugins:            rec.UsePlugins,
		PluginID:              rec.PluginID,
		PluginIconPath:        rec.PluginIconPath,
		BytesTransferred:      rec.BytesTransferred,
		Size:                  rec.Size,
	}
	if rec.Interaction != nil {
		cp := *rec.Interaction
		n.Interaction = &cp
	}
	if rec.WaitUntil != nil {
		n.WaitUntil = *rec.WaitUntil
	}
	if n.DownloadPath == "" && t.incompleteDir != "" {
		n.DownloadPath = filepath.Join(t.incompleteDir, n.ID)
	}
	if n.FileName == "" {
		n.FileName = FileNameFromURL(n.URL)
	}
	if n.Name == "" {
		n.Name = n.FileName
	}
	return n
}

// Restorable reports whether a restored status must be requeued because
// whatever was driving it did not survive the restart.
func Restorable(s Status) bool {
	return s.IsActive()
}

// RequeueAfterRestore resets in-flight transfers to Queued and returns how
// many were changed.
func (t *Tree) RequeueAfterRestore(now time.Time) int {
	count := 0
	for _, n := range t.Transfers() {
		switch {
		case Restorable(n.Status):
			n.Interaction = nil
			n.WaitUntil = time.Time{}
			n.Speed = 0
			_ = t.SetStatus(n.ID, StatusQueued)
			count++
		case n.Status == StatusWaitingInactive && !n.WaitUntil.After(now):
			n.WaitUntil = time.Time{}
			_ = t.SetStatus(n.ID, StatusQueued)
			count++
		}
	}
	return count
}
