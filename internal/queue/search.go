package queue

import (
	"fmt"
	"strconv"

	"dlq/internal/textutil"
)

var searchFields = map[string]func(*Node) string{
	"id":              func(n *Node) string { return n.ID },
	PropName:          func(n *Node) string { return n.Name },
	"status":          func(n *Node) string { return string(n.Status) },
	PropPriority:      func(n *Node) string { return strconv.Itoa(int(n.Priority)) },
	PropCategory:      func(n *Node) string { return n.Category },
	PropURL:           func(n *Node) string { return n.URL },
	PropFileName:      func(n *Node) string { return n.FileName },
	"download_path":   func(n *Node) string { return n.DownloadPath },
	"plugin_id":       func(n *Node) string { return n.PluginID },
	"error_string":    func(n *Node) string { return n.ErrorString },
	PropRequestMethod: func(n *Node) string { return n.RequestMethod },
	"suffix":          func(n *Node) string { return n.Suffix },
}

// Search returns the nodes, packages and transfers alike, whose property
// matches value under mode, in tree order.
func (t *Tree) Search(property, value string, mode textutil.MatchMode) ([]*Node, error) {
	field, ok := searchFields[property]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, property)
	}
	matcher, err := textutil.NewMatcher(mode, value)
	if err != nil {
		return nil, err
	}
	var out []*Node
	t.Walk(func(n *Node) bool {
		if matcher.Match(field(n)) {
			out = append(out, n)
		}
		return true
	})
	return out, nil
}
