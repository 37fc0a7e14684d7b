package queue

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Property names accepted by SetProperty. They match Record's JSON names.
const (
	PropName                  = "name"
	PropCategory              = "category"
	PropCreateSubfolder       = "create_subfolder"
	PropPriority              = "priority"
	PropFileName              = "file_name"
	PropURL                   = "url"
	PropRequestMethod         = "request_method"
	PropRequestHeaders        = "request_headers"
	PropPostData              = "post_data"
	PropCustomCommand         = "custom_command"
	PropCustomCommandOverride = "custom_command_override"
	PropUsePlugins            = "use_plugins"
)

// propertySetter checks value against n and returns the assignment to
// perform. It must not modify the tree.
type propertySetter func(t *Tree, n *Node, value any) (func(), bool)

var packageSetters = map[string]propertySetter{
	PropName:            setName,
	PropCategory:        setCategory,
	PropCreateSubfolder: setCreateSubfolder,
	PropPriority:        setPriority,
}

var transferSetters = map[string]propertySetter{
	PropName:                  setName,
	PropCategory:              setCategory,
	PropCreateSubfolder:       setCreateSubfolder,
	PropPriority:              setPriority,
	PropFileName:              setFileName,
	PropURL:                   setURL,
	PropRequestMethod:         setRequestMethod,
	PropRequestHeaders:        setRequestHeaders,
	PropPostData:              setString(func(n *Node) *string { return &n.PostData }),
	PropCustomCommand:         setString(func(n *Node) *string { return &n.CustomCommand }),
	PropCustomCommandOverride: setBool(func(n *Node) *bool { return &n.CustomCommandOverride }),
	PropUsePlugins:            setBool(func(n *Node) *bool { return &n.UsePlugins }),
}

func settersFor(kind Kind) map[string]propertySetter {
	switch kind {
	case KindPackage:
		return packageSetters
	case KindTransfer:
		return transferSetters
	default:
		return nil
	}
}

// IsWritable reports whether name can be set on a node of kind.
func IsWritable(kind Kind, name string) bool {
	_, ok := settersFor(kind)[name]
	return ok
}

// SetProperty assigns one property. It returns false without changing anything
// when the name is unknown or read-only for the node kind, or the value has the
// wrong type.
func (t *Tree) SetProperty(id, name string, value any) (bool, error) {
	return t.SetProperties(id, map[string]any{name: value})
}

// SetProperties assigns several properties. Every name and value is checked
// before anything is written, so a false result leaves the node untouched.
// Accepted values are applied in name order.
func (t *Tree) SetProperties(id string, props map[string]any) (bool, error) {
	n := t.nodes[id]
	if n == nil || n.Kind == KindRoot {
		return false, ErrNotFound
	}
	setters := settersFor(n.Kind)
	names := make([]string, 0, len(props))
	for name := range props {
		if _, ok := setters[name]; !ok {
			return false, nil
		}
		names = append(names, name)
	}
	slices.Sort(names)

	staged := make([]func(), 0, len(names))
	for _, name := range names {
		apply, ok := setters[name](t, n, props[name])
		if !ok {
			return false, nil
		}
		staged = append(staged, apply)
	}
	for i, apply := range staged {
		apply()
		t.Touch(id, names[i])
	}
	return true, nil
}

func setName(_ *Tree, n *Node, value any) (func(), bool) {
	s, ok := asString(value)
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return nil, false
	}
	return func() { n.Name = s }, true
}

func setCategory(t *Tree, n *Node, value any) (func(), bool) {
	s, ok := asString(value)
	if !ok {
		return nil, false
	}
	s = strings.TrimSpace(s)
	return func() {
		n.Category = s
		t.propagate(n, func(child *Node) { child.Category = s }, PropCategory)
	}, true
}

func setCreateSubfolder(t *Tree, n *Node, value any) (func(), bool) {
	b, ok := asBool(value)
	if !ok {
		return nil, false
	}
	return func() {
		n.CreateSubfolder = b
		t.propagate(n, func(child *Node) { child.CreateSubfolder = b }, PropCreateSubfolder)
	}, true
}

func setPriority(t *Tree, n *Node, value any) (func(), bool) {
	p, ok := asPriority(value)
	if !ok {
		return nil, false
	}
	return func() {
		n.Priority = p
		t.propagate(n, func(child *Node) { child.Priority = p }, PropPriority)
	}, true
}

func setFileName(_ *Tree, n *Node, value any) (func(), bool) {
	s, ok := asString(value)
	if !ok || strings.TrimSpace(s) == "" || n.Status.IsActive() {
		return nil, false
	}
	name := SanitizeFileName(s)
	return func() {
		n.FileName = name
		n.Name = name
	}, true
}

func setURL(_ *Tree, n *Node, value any) (func(), bool) {
	s, ok := asString(value)
	s = strings.TrimSpace(s)
	if !ok || s == "" || n.Status.IsActive() {
		return nil, false
	}
	return func() { n.URL = s }, true
}

func setRequestMethod(_ *Tree, n *Node, value any) (func(), bool) {
	s, ok := asString(value)
	s = strings.ToUpper(strings.TrimSpace(s))
	if !ok || s == "" {
		return nil, false
	}
	return func() { n.RequestMethod = s }, true
}

func setRequestHeaders(_ *Tree, n *Node, value any) (func(), bool) {
	headers, ok := asHeaders(value)
	if !ok {
		return nil, false
	}
	return func() { n.RequestHeaders = headers }, true
}

func setString(field func(*Node) *string) propertySetter {
	return func(_ *Tree, n *Node, value any) (func(), bool) {
		s, ok := asString(value)
		if !ok {
			return nil, false
		}
		return func() { *field(n) = s }, true
	}
}

func setBool(field func(*Node) *bool) propertySetter {
	return func(_ *Tree, n *Node, value any) (func(), bool) {
		b, ok := asBool(value)
		if !ok {
			return nil, false
		}
		return func() { *field(n) = b }, true
	}
}

func (t *Tree) propagate(n *Node, apply func(*Node), aspect string) {
	if n.Kind != KindPackage {
		return
	}
	for _, cid := range n.Children {
		apply(t.nodes[cid])
		t.Touch(cid, aspect)
	}
}

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	default:
		return false, false
	}
}

func asPriority(value any) (Priority, bool) {
	switch v := value.(type) {
	case Priority:
		return v, v.Valid()
	case int:
		return Priority(v), Priority(v).Valid()
	case int64:
		return Priority(v), Priority(v).Valid()
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return Priority(int(v)), Priority(int(v)).Valid()
	case json.Number:
		return ParsePriority(v.String())
	case string:
		return ParsePriority(v)
	default:
		return 0, false
	}
}

// asHeaders accepts a string map, a JSON object, or "Key: Value" lines.
func asHeaders(value any) (map[string]string, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case map[string]string:
		return cloneHeaders(v), true
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, raw := range v {
			s, ok := asString(raw)
			if !ok {
				s = fmt.Sprint(raw)
			}
			out[k] = s
		}
		return out, true
	case string:
		return ParseHeaderLines(v)
	default:
		return nil, false
	}
}

// ParseHeaderLines parses "Key: Value" lines. Blank lines are ignored.
func ParseHeaderLines(text string) (map[string]string, bool) {
	out := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, false
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	if len(out) == 0 {
		return nil, true
	}
	return out, true
}
