package queue

import "time"

// Record is the flat, serializable projection of a Node. It is the shape the
// API returns and the shape the store persists.
type Record struct {
	ID              string   `json:"id"`
	Kind            string   `json:"kind"`
	ParentID        string   `json:"parent_id,omitempty"`
	Name            string   `json:"name"`
	Suffix          string   `json:"suffix,omitempty"`
	Status          Status   `json:"status"`
	Priority        Priority `json:"priority"`
	Category        string   `json:"category,omitempty"`
	CreateSubfolder bool     `json:"create_subfolder"`
	Progress        int      `json:"progress"`
	ErrorString     string   `json:"error_string,omitempty"`
	CancelRequested bool     `json:"cancel_requested,omitempty"`

	URL                   string            `json:"url,omitempty"`
	RequestMethod         string            `json:"request_method,omitempty"`
	RequestHeaders        map[string]string `json:"request_headers,omitempty"`
	PostData              string            `json:"post_data,omitempty"`
	DownloadPath          string            `json:"download_path,omitempty"`
	FileName              string            `json:"file_name,omitempty"`
	CustomCommand         string            `json:"custom_command,omitempty"`
	CustomCommandOverride bool              `json:"custom_command_override,omitempty"`
	UsePlugins            bool              `json:"use_plugins,omitempty"`
	PluginID              string            `json:"plugin_id,omitempty"`
	PluginIconPath        string            `json:"plugin_icon_path,omitempty"`
	BytesTransferred      int64             `json:"bytes_transferred"`
	Size                  int64             `json:"size"`
	Speed                 int64             `json:"speed"`
	Interaction           *Interaction      `json:"interaction,omitempty"`
	WaitUntil             *time.Time        `json:"wait_until,omitempty"`

	Children []Record `json:"children,omitempty"`
}

// IsPackage reports whether the record describes a package.
func (r Record) IsPackage() bool { return r.Kind == KindPackage.String() }

// ToRecord projects n. Children are included only for packages when
// includeChildren is set.
func (t *Tree) ToRecord(n *Node, includeChildren bool) Record {
	rec := Record{
		ID:                    n.ID,
		Kind:                  n.Kind.String(),
		ParentID:              n.Parent,
		Name:                  n.Name,
		Suffix:                n.Suffix,
		Status:                n.Status,
		Priority:              n.Priority,
		Category:              n.Category,
		CreateSubfolder:       n.CreateSubfolder,
		ErrorString:           n.ErrorString,
		CancelRequested:       n.CancelRequested,
		URL:                   n.URL,
		RequestMethod:         n.RequestMethod,
		RequestHeaders:        cloneHeaders(n.RequestHeaders),
		PostData:              n.PostData,
		DownloadPath:          n.DownloadPath,
		FileName:              n.FileName,
		CustomCommand:         n.CustomCommand,
		CustomCommandOverride: n.CustomCommandOverride,
		UsePlugins:            n.UsePlugins,
		PluginID:              n.PluginID,
		PluginIconPath:        n.PluginIconPath,
		BytesTransferred:      n.BytesTransferred,
		Size:                  n.Size,
		Speed:                 n.Speed,
	}
	if n.Kind == KindPackage {
		rec.Progress = n.Progress
	} else {
		rec.Progress = n.TransferProgress()
	}
	if n.Interaction != nil {
		cp := *n.Interaction
		rec.Interaction = &cp
	}
	if !n.WaitUntil.IsZero() {
		wait := n.WaitUntil
		rec.WaitUntil = &wait
	}
	if n.Kind == KindPackage {
		var bytes, size, speed int64
		for _, child := range t.children(n) {
			bytes += child.BytesTransferred
			size += child.Size
			speed += child.Speed
			if includeChildren {
				rec.Children = append(rec.Children, t.ToRecord(child, false))
			}
		}
		rec.BytesTransferred, rec.Size, rec.Speed = bytes, size, speed
	}
	return rec
}

// Record returns the projection of id.
func (t *Tree) Record(id string, includeChildren bool) (Record, error) {
	n := t.nodes[id]
	if n == nil || n.Kind == KindRoot {
		return Record{}, ErrNotFound
	}
	return t.ToRecord(n, includeChildren), nil
}

// Records returns a window of packages in tree order.
func (t *Tree) Records(offset, limit int, includeChildren bool) []Record {
	pkgs := t.root.Children
	if offset < 0 {
		offset = 0
	}
	if offset >= len(pkgs) {
		return []Record{}
	}
	end := len(pkgs)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	out := make([]Record, 0, end-offset)
	for _, id := range pkgs[offset:end] {
		out = append(out, t.ToRecord(t.nodes[id], includeChildren))
	}
	return out
}
