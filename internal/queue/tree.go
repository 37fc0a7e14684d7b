package queue

import (
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ChangeType classifies a tree notification.
type ChangeType string

const (
	ChangeInserted ChangeType = "inserted"
	ChangeRemoved  ChangeType = "removed"
	ChangeMoved    ChangeType = "moved"
	ChangeChanged  ChangeType = "changed"
)

// Change describes one structural or attribute mutation.
type Change struct {
	Type     ChangeType `json:"type"`
	NodeID   string     `json:"node_id"`
	ParentID string     `json:"parent_id"`
	Index    int        `json:"index"`
	Aspect   string     `json:"aspect,omitempty"`
}

// TreeOption customizes a Tree.
type TreeOption func(*Tree)

// WithNotifier registers the callback that receives every Change.
func WithNotifier(fn func(Change)) TreeOption {
	return func(t *Tree) { t.notify = fn }
}

// WithIDGenerator replaces uuid.NewString for node IDs.
func WithIDGenerator(fn func() string) TreeOption {
	return func(t *Tree) { t.newID = fn }
}

// WithIncompleteDir sets the directory holding partial downloads; each
// transfer's DownloadPath is <dir>/<transferID>.
func WithIncompleteDir(dir string) TreeOption {
	return func(t *Tree) { t.incompleteDir = dir }
}

// TransferSpec describes a transfer to append.
type TransferSpec struct {
	URL                   string
	FileName              string
	Method                string
	Headers               map[string]string
	PostData              string
	Category              string
	CreateSubfolder       bool
	Priority              Priority
	CustomCommand         string
	CustomCommandOverride bool
	UsePlugins            bool
	PluginID              string
	Size                  int64
}

// Validate reports ErrInvalidSpec for an empty URL or an unknown priority.
func (s TransferSpec) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidSpec)
	}
	if !s.Priority.Valid() {
		return fmt.Errorf("%w: priority %d out of range", ErrInvalidSpec, s.Priority)
	}
	return nil
}

// Tree is the Root → Package → Transfer hierarchy.
type Tree struct {
	nodes         map[string]*Node
	root          *Node
	notify        func(Change)
	newID         func() string
	incompleteDir string
}

// NewTree returns an empty tree holding only the root.
func NewTree(opts ...TreeOption) *Tree {
	root := &Node{ID: RootID, Kind: KindRoot}
	t := &Tree{
		nodes: map[string]*Node{RootID: root},
		root:  root,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Get returns the node with id, or nil.
func (t *Tree) Get(id string) *Node { return t.nodes[id] }

// Len returns the number of packages and transfers.
func (t *Tree) Len() int { return len(t.nodes) - 1 }

// HasPackages reports whether the root has any children.
func (t *Tree) HasPackages() bool { return len(t.root.Children) > 0 }

// Packages returns the packages in tree order.
func (t *Tree) Packages() []*Node {
	return t.children(t.root)
}

// Children returns the children of id in order.
func (t *Tree) Children(id string) []*Node {
	n := t.nodes[id]
	if n == nil {
		return nil
	}
	return t.children(n)
}

func (t *Tree) children(n *Node) []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, id := range n.Children {
		out = append(out, t.nodes[id])
	}
	return out
}

// RowCount returns the number of children of parentID.
func (t *Tree) RowCount(parentID string) int {
	if n := t.nodes[parentID]; n != nil {
		return len(n.Children)
	}
	return 0
}

// ChildAt returns the child of parentID at index, or nil.
func (t *Tree) ChildAt(parentID string, index int) *Node {
	n := t.nodes[parentID]
	if n == nil || index < 0 || index >= len(n.Children) {
		return nil
	}
	return t.nodes[n.Children[index]]
}

// ParentOf returns the parent of id, or nil for the root and unknown IDs.
func (t *Tree) ParentOf(id string) *Node {
	n := t.nodes[id]
	if n == nil || n.Kind == KindRoot {
		return nil
	}
	return t.nodes[n.Parent]
}

// IndexOf returns the row of id within its parent, or -1.
func (t *Tree) IndexOf(id string) int {
	parent := t.ParentOf(id)
	if parent == nil {
		return -1
	}
	return slices.Index(parent.Children, id)
}

// Walk visits packages and their transfers in tree order until fn returns false.
func (t *Tree) Walk(fn func(*Node) bool) {
	for _, pid := range t.root.Children {
		pkg := t.nodes[pid]
		if !fn(pkg) {
			return
		}
		for _, cid := range pkg.Children {
			if !fn(t.nodes[cid]) {
				return
			}
		}
	}
}

// Find returns the first node in tree order satisfying pred.
func (t *Tree) Find(pred func(*Node) bool) *Node {
	var found *Node
	t.Walk(func(n *Node) bool {
		if pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// Transfers returns every transfer in tree order.
func (t *Tree) Transfers() []*Node {
	var out []*Node
	t.Walk(func(n *Node) bool {
		if n.Kind == KindTransfer {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Append adds one transfer. Split-archive file names join the package holding
// their siblings; anything else gets a new package named packageHint, or named
// after the file when the hint is empty.
func (t *Tree) Append(spec TransferSpec, packageHint string) (*Node, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	fileName := resolveFileName(spec)

	var pkg *Node
	if name, suffix, ok := SplitArchive(fileName); ok {
		pkg = t.findArchivePackage(name, suffix)
		if pkg == nil {
			pkg = t.newPackage(name, suffix, spec)
		}
	} else {
		name, suffix := PackageNameFor(fileName)
		if hint := strings.TrimSpace(packageHint); hint != "" {
			name, suffix = hint, ""
		}
		pkg = t.newPackage(name, suffix, spec)
	}

	transfer := t.newTransfer(spec, fileName)
	t.insert(pkg, transfer, len(pkg.Children))
	t.Refresh(pkg.ID)
	return transfer, nil
}

// AppendBatch adds every spec to one new package named packageName. An empty
// list is a no-op.
func (t *Tree) AppendBatch(specs []TransferSpec, packageName string) ([]*Node, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}
	packageName = strings.TrimSpace(packageName)
	if packageName == "" {
		packageName, _ = PackageNameFor(resolveFileName(specs[0]))
	}
	pkg := t.newPackage(packageName, "", specs[0])
	out := make([]*Node, 0, len(specs))
	for _, spec := range specs {
		transfer := t.newTransfer(spec, resolveFileName(spec))
		t.insert(pkg, transfer, len(pkg.Children))
		out = append(out, transfer)
	}
	t.Refresh(pkg.ID)
	return out, nil
}

func (t *Tree) findArchivePackage(name, suffix string) *Node {
	for _, pid := range t.root.Children {
		pkg := t.nodes[pid]
		if pkg.Name == name && pkg.Suffix == suffix && !pkg.CancelRequested && !pkg.Status.IsTerminal() {
			return pkg
		}
	}
	return nil
}

func (t *Tree) newPackage(name, suffix string, spec TransferSpec) *Node {
	pkg := &Node{
		ID:              t.newID(),
		Kind:            KindPackage,
		Status:          StatusPaused,
		Priority:        spec.Priority,
		Name:            name,
		Suffix:          suffix,
		Category:        spec.Category,
		CreateSubfolder: spec.CreateSubfolder,
	}
	t.insert(t.root, pkg, len(t.root.Children))
	return pkg
}

func (t *Tree) newTransfer(spec TransferSpec, fileName string) *Node {
	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	if method == "" {
		method = http.MethodGet
	}
	n := &Node{
		ID:                    t.newID(),
		Kind:                  KindTransfer,
		Status:                StatusPaused,
		Priority:              spec.Priority,
		Name:                  fileName,
		Category:              spec.Category,
		CreateSubfolder:       spec.CreateSubfolder,
		URL:                   strings.TrimSpace(spec.URL),
		RequestMethod:         method,
		RequestHeaders:        cloneHeaders(spec.Headers),
		PostData:              spec.PostData,
		FileName:              fileName,
		CustomCommand:         spec.CustomCommand,
		CustomCommandOverride: spec.CustomCommandOverride,
		UsePlugins:            spec.UsePlugins,
		PluginID:              spec.PluginID,
		Size:                  spec.Size,
	}
	if t.incompleteDir != "" {
		n.DownloadPath = filepath.Join(t.incompleteDir, n.ID)
	}
	return n
}

func resolveFileName(spec TransferSpec) string {
	if name := strings.TrimSpace(spec.FileName); name != "" {
		return SanitizeFileName(name)
	}
	return FileNameFromURL(spec.URL)
}

func (t *Tree) insert(parent, child *Node, index int) {
	child.Parent = parent.ID
	parent.Children = slices.Insert(parent.Children, index, child.ID)
	t.nodes[child.ID] = child
	t.emit(Change{Type: ChangeInserted, NodeID: child.ID, ParentID: parent.ID, Index: index})
}

// Move transplants count rows starting at srcIndex of srcParent to dstIndex of
// dstParent. dstIndex is counted before the rows are removed. Both parents must
// be of the same kind and able to hold children; on any violation the tree is
// left unchanged and Move returns false.
func (t *Tree) Move(srcParentID string, srcIndex, count int, dstParentID string, dstIndex int) bool {
	src, dst := t.nodes[srcParentID], t.nodes[dstParentID]
	if src == nil || dst == nil {
		return false
	}
	if src.Kind != dst.Kind || !src.CanHaveChildren() || !dst.CanHaveChildren() {
		return false
	}
	if count < 1 || srcIndex < 0 || srcIndex+count > len(src.Children) {
		return false
	}
	if dstIndex < 0 || dstIndex > len(dst.Children) {
		return false
	}

	moving := slices.Clone(src.Children[srcIndex : srcIndex+count])

	if src == dst {
		if dstIndex >= srcIndex && dstIndex <= srcIndex+count {
			return true
		}
		remaining := slices.Delete(slices.Clone(src.Children), srcIndex, srcIndex+count)
		at := dstIndex
		if dstIndex > srcIndex {
			at -= count
		}
		src.Children = slices.Insert(remaining, at, moving...)
		for i, id := range moving {
			t.emit(Change{Type: ChangeMoved, NodeID: id, ParentID: src.ID, Index: at + i})
		}
		return true
	}

	src.Children = slices.Delete(src.Children, srcIndex, srcIndex+count)
	dst.Children = slices.Insert(dst.Children, dstIndex, moving...)
	for i, id := range moving {
		t.nodes[id].Parent = dst.ID
		t.emit(Change{Type: ChangeMoved, NodeID: id, ParentID: dst.ID, Index: dstIndex + i})
	}
	if src.Kind == KindPackage {
		if len(src.Children) == 0 {
			t.Remove(src.ID)
		} else {
			t.Refresh(src.ID)
		}
	}
	if dst.Kind == KindPackage {
		t.Refresh(dst.ID)
	}
	return true
}

// MoveTo moves a single node under destParentID at destIndex.
func (t *Tree) MoveTo(sourceID, destParentID string, destIndex int) bool {
	n := t.nodes[sourceID]
	if n == nil || n.Kind == KindRoot {
		return false
	}
	return t.Move(n.Parent, t.IndexOf(sourceID), 1, destParentID, destIndex)
}

// Remove detaches id and its subtree. Removing a transfer refreshes its
// package's aggregate.
func (t *Tree) Remove(id string) bool {
	n := t.nodes[id]
	if n == nil || n.Kind == KindRoot {
		return false
	}
	parent := t.nodes[n.Parent]
	index := slices.Index(parent.Children, id)
	if index >= 0 {
		parent.Children = slices.Delete(parent.Children, index, index+1)
	}
	for _, cid := range n.Children {
		delete(t.nodes, cid)
	}
	delete(t.nodes, id)
	t.emit(Change{Type: ChangeRemoved, NodeID: id, ParentID: parent.ID, Index: index})
	if parent.Kind == KindPackage {
		t.Refresh(parent.ID)
	}
	return true
}

// SetStatus assigns a transfer status and refreshes the parent aggregate.
// Package statuses are derived and cannot be set directly.
func (t *Tree) SetStatus(id string, status Status) error {
	n := t.nodes[id]
	if n == nil {
		return ErrNotFound
	}
	if n.Kind != KindTransfer || !status.ValidFor(KindTransfer) {
		return fmt.Errorf("%w: %s cannot hold status %q", ErrInvalidTransition, n.Kind, status)
	}
	if n.Status == status {
		return nil
	}
	n.Status = status
	t.emit(Change{Type: ChangeChanged, NodeID: id, ParentID: n.Parent, Index: t.IndexOf(id), Aspect: "status"})
	t.Refresh(n.Parent)
	return nil
}

// Touch reports an attribute change on id.
func (t *Tree) Touch(id, aspect string) {
	n := t.nodes[id]
	if n == nil {
		return
	}
	t.emit(Change{Type: ChangeChanged, NodeID: id, ParentID: n.Parent, Index: t.IndexOf(id), Aspect: aspect})
}

// Refresh recomputes a package's status and progress from its children and
// returns the resulting status. Non-packages are returned unchanged.
func (t *Tree) Refresh(id string) Status {
	pkg := t.nodes[id]
	if pkg == nil || pkg.Kind != KindPackage {
		if pkg == nil {
			return ""
		}
		return pkg.Status
	}
	statuses := make([]Status, 0, len(pkg.Children))
	var done, total int64
	var sum int
	for _, cid := range pkg.Children {
		child := t.nodes[cid]
		statuses = append(statuses, child.Status)
		done += child.BytesTransferred
		total += child.Size
		sum += child.TransferProgress()
	}
	status := Aggregate(statuses, pkg.CancelRequested)
	progress := 0
	switch {
	case total > 0:
		progress = int(min(done*100/total, 100))
	case len(pkg.Children) > 0:
		progress = sum / len(pkg.Children)
	}
	if status != pkg.Status {
		pkg.Status = status
		t.emit(Change{Type: ChangeChanged, NodeID: pkg.ID, ParentID: RootID, Index: t.IndexOf(pkg.ID), Aspect: "status"})
	}
	if progress != pkg.Progress {
		pkg.Progress = progress
		t.emit(Change{Type: ChangeChanged, NodeID: pkg.ID, ParentID: RootID, Index: t.IndexOf(pkg.ID), Aspect: "progress"})
	}
	return status
}

func (t *Tree) emit(c Change) {
	if t.notify != nil {
		t.notify(c)
	}
}
