package queue

import "time"

// Kind tags the three node variants.
type Kind int

const (
	KindRoot Kind = iota
	KindPackage
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindPackage:
		return "package"
	case KindTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// RootID is the ID of the tree's root node.
const RootID = ""

// InteractionKind distinguishes captcha and settings requests.
type InteractionKind string

const (
	InteractionCaptcha  InteractionKind = "captcha"
	InteractionSettings InteractionKind = "settings"
)

// SettingsField describes one input of a settings request.
type SettingsField struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Value   any      `json:"value,omitempty"`
	Options []string `json:"options,omitempty"`
}

// Interaction is a pending request for human or automated input.
type Interaction struct {
	Kind        InteractionKind `json:"kind"`
	PluginID    string          `json:"plugin_id,omitempty"`
	CaptchaType string          `json:"captcha_type,omitempty"`
	Data        string          `json:"data,omitempty"`
	Title       string          `json:"title,omitempty"`
	Fields      []SettingsField `json:"fields,omitempty"`
	Callback    string          `json:"callback"`
	Deadline    time.Time       `json:"deadline"`
}

// Node is one entry of the transfer tree. Parent and Children hold IDs into
// the owning Tree's arena.
type Node struct {
	ID       string
	Kind     Kind
	Parent   string
	Children []string

	Status          Status
	Priority        Priority
	Name            string
	Category        string
	CreateSubfolder bool
	ErrorString     string

	URL                   string
	RequestMethod         string
	RequestHeaders        map[string]string
	PostData              string
	DownloadPath          string
	FileName              string
	CustomCommand         string
	CustomCommandOverride bool
	UsePlugins            bool
	PluginID              string
	PluginIconPath        string
	BytesTransferred      int64
	Size                  int64
	Speed                 int64
	Interaction           *Interaction
	WaitUntil             time.Time
	// Attempt increments on every activation; async callbacks carry it so
	// stale results can be recognized.
	Attempt uint64

	Suffix          string
	Progress        int
	CancelRequested bool
}

func (n *Node) CanHaveChildren() bool {
	return n.Kind == KindRoot || n.Kind == KindPackage
}

// CanStart reports whether queue() may move the node to Queued.
func (n *Node) CanStart() bool {
	if n.Kind == KindRoot {
		return false
	}
	switch n.Status {
	case StatusPaused, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// CanPause reports whether pause() applies to the node.
func (n *Node) CanPause() bool {
	if n.Kind == KindRoot {
		return false
	}
	switch n.Status {
	case StatusQueued,
		StatusConnecting,
		StatusDownloading,
		StatusWaitingInactive,
		StatusAwaitingCaptchaResponse,
		StatusAwaitingSettingsResponse:
		return true
	default:
		return false
	}
}

// CanCancel reports whether cancel() applies to the node.
func (n *Node) CanCancel() bool {
	if n.Kind == KindRoot {
		return false
	}
	return !n.Status.IsTerminal() && n.Status != StatusCanceling
}

// TransferProgress returns 0-100 from bytes transferred and size.
func (n *Node) TransferProgress() int {
	if n.Status == StatusCompleted {
		return 100
	}
	if n.Size <= 0 || n.BytesTransferred <= 0 {
		return 0
	}
	if n.BytesTransferred >= n.Size {
		return 100
	}
	return int(n.BytesTransferred * 100 / n.Size)
}

func cloneHeaders(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
