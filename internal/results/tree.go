// Package results turns scraped content into views: an expandable tree
// over arbitrary JSON, link and image discovery, and flat rows for
// processing and export.
package results

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// Kind is the JSON type of a tree node
type Kind string

const (
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindNull    Kind = "null"
)

// RootPath is the structural path of the top-level value
const RootPath = "$"

// Node is one value in the tree. Children are built on demand from the
// underlying value, so a large document costs nothing until expanded.
type Node struct {
	Path  string
	Key   string
	Kind  Kind
	value any
}

// Value returns the underlying decoded value
func (n Node) Value() any {
	return n.value
}

// Expandable reports whether the node has children
func (n Node) Expandable() bool {
	return n.Kind == KindObject || n.Kind == KindArray
}

// Len returns the number of children, or zero for leaves
func (n Node) Len() int {
	switch v := n.value.(type) {
	case *types.Row:
		return v.Len()
	case map[string]any:
		return len(v)
	case []any:
		return len(v)
	}
	return 0
}

// Children materialises the node's direct children. Object keys keep
// their order for ordered rows and are sorted for plain maps.
func (n Node) Children() []Node {
	switch v := n.value.(type) {
	case *types.Row:
		out := make([]Node, 0, v.Len())
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			out = append(out, newNode(childPath(n.Path, k), k, child))
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Node, 0, len(keys))
		for _, k := range keys {
			out = append(out, newNode(childPath(n.Path, k), k, v[k]))
		}
		return out
	case []any:
		out := make([]Node, 0, len(v))
		for i, child := range v {
			out = append(out, newNode(fmt.Sprintf("%s[%d]", n.Path, i), "["+strconv.Itoa(i)+"]", child))
		}
		return out
	}
	return nil
}

func newNode(path, key string, v any) Node {
	return Node{Path: path, Key: key, Kind: kindOf(v), value: v}
}

func kindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case *types.Row, map[string]any:
		return KindObject
	case []any:
		return KindArray
	case string:
		return KindString
	case bool:
		return KindBoolean
	case json.Number, float64, float32, int, int32, int64, uint, uint32, uint64:
		return KindNumber
	}
	return KindString
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func childPath(parent, key string) string {
	if identifier.MatchString(key) {
		return parent + "." + key
	}
	return parent + "[" + strconv.Quote(key) + "]"
}

// Tree is a lazily expanded view over a decoded JSON value. Every
// container starts expanded; expansion state is stored per path so
// toggling one node leaves its siblings alone.
type Tree struct {
	root      Node
	collapsed map[string]bool
}

// NewTree wraps a decoded value. Objects may be *types.Row (ordered) or
// map[string]any.
func NewTree(value any) *Tree {
	return &Tree{
		root:      newNode(RootPath, "", value),
		collapsed: make(map[string]bool),
	}
}

// ParseTree decodes raw JSON keeping object key order and wraps it
func ParseTree(data []byte) (*Tree, error) {
	v, err := DecodeOrdered(data)
	if err != nil {
		return nil, err
	}
	return NewTree(v), nil
}

// Root returns the top-level node
func (t *Tree) Root() Node {
	return t.root
}

// Expanded reports whether the node at path is expanded
func (t *Tree) Expanded(path string) bool {
	return !t.collapsed[path]
}

// SetExpanded sets the expansion state of the node at path
func (t *Tree) SetExpanded(path string, expanded bool) {
	if expanded {
		delete(t.collapsed, path)
		return
	}
	t.collapsed[path] = true
}

// Toggle flips the node at path and returns its new state
func (t *Tree) Toggle(path string) bool {
	expanded := !t.Expanded(path)
	t.SetExpanded(path, expanded)
	return expanded
}

// CollapseAll collapses every container below the root down to depth
// levels; depth 0 collapses the root itself
func (t *Tree) CollapseAll(depth int) {
	var walk func(n Node, level int)
	walk = func(n Node, level int) {
		if !n.Expandable() {
			return
		}
		if level >= depth {
			t.collapsed[n.Path] = true
			return
		}
		for _, c := range n.Children() {
			walk(c, level+1)
		}
	}
	walk(t.root, 0)
}

// Render writes an indented view of the tree. Collapsed containers are
// shown with their size and not descended into.
func (t *Tree) Render(w io.Writer) error {
	var buf bytes.Buffer
	t.render(&buf, t.root, 0)
	_, err := w.Write(buf.Bytes())
	return err
}

func (t *Tree) render(buf *bytes.Buffer, n Node, depth int) {
	indent := strings.Repeat("  ", depth)
	label := n.Key
	if label == "" {
		label = n.Path
	}

	if !n.Expandable() {
		fmt.Fprintf(buf, "%s%s: %s <%s>\n", indent, label, leafText(n.value), n.Kind)
		return
	}

	open, unit := "{", "keys"
	if n.Kind == KindArray {
		open, unit = "[", "items"
	}
	if !t.Expanded(n.Path) {
		fmt.Fprintf(buf, "%s+ %s %s%d %s...\n", indent, label, open, n.Len(), unit)
		return
	}
	fmt.Fprintf(buf, "%s- %s %s%d %s\n", indent, label, open, n.Len(), unit)
	for _, c := range n.Children() {
		t.render(buf, c, depth+1)
	}
}

func leafText(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		b, err := types.MarshalNoEscape(x)
		if err != nil {
			return x
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

// DecodeOrdered decodes JSON with every object as a *types.Row so key
// order survives at all depths. Numbers decode as json.Number.
func DecodeOrdered(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to decode content: trailing data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch x := tok.(type) {
	case json.Delim:
		switch x {
		case '{':
			row := types.NewRow()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected key %v", kt)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				row.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return row, nil
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", x)
	}
	return tok, nil
}
