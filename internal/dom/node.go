// Package dom provides the DOM-like fragment tree that templates, template
// clones and mount points are built from.
//
// Nodes are addressed structurally: PathOf computes the child-index path from
// a root to a descendant and Resolve walks the same path in another tree. A
// clone produced by Clone has the same shape as its source, so a path taken
// in a template resolves to the corresponding node in every clone.
package dom

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Node is an element or a comment.
type Node struct {
	Tag      string
	ID       string
	Attrs    map[string]string
	Text     string
	Comment  bool
	Children []*Node
	Parent   *Node
}

// NewElement returns a detached element node.
func NewElement(tag, id string) *Node {
	return &Node{Tag: tag, ID: id, Attrs: map[string]string{}}
}

// NewComment returns a detached comment node. Comments mark placeholders.
func NewComment(text string) *Node {
	return &Node{Comment: true, Text: text}
}

// Append adds children to n and returns n.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		c.Detach()
		c.Parent = n
		n.Children = append(n.Children, c)
	}
	return n
}

// Clone returns a deep copy of n. The copy is detached.
func (n *Node) Clone() *Node {
	c := &Node{
		Tag:     n.Tag,
		ID:      n.ID,
		Text:    n.Text,
		Comment: n.Comment,
	}
	if n.Attrs != nil {
		c.Attrs = make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			c.Attrs[k] = v
		}
	}
	for _, child := range n.Children {
		cc := child.Clone()
		cc.Parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

// PathOf returns the child-index path from n to target. An empty path means
// target is n itself.
func (n *Node) PathOf(target *Node) ([]int, bool) {
	var rev []int
	for cur := target; cur != n; cur = cur.Parent {
		if cur == nil || cur.Parent == nil {
			return nil, false
		}
		idx := slices.Index(cur.Parent.Children, cur)
		if idx < 0 {
			return nil, false
		}
		rev = append(rev, idx)
	}
	slices.Reverse(rev)
	return rev, true
}

// Resolve walks path from n.
func (n *Node) Resolve(path []int) (*Node, error) {
	cur := n
	for depth, idx := range path {
		if idx < 0 || idx >= len(cur.Children) {
			return nil, fmt.Errorf("path %v: no child %d at depth %d", path, idx, depth)
		}
		cur = cur.Children[idx]
	}
	return cur, nil
}

// Locate finds the node in clone that corresponds to target in n.
func (n *Node) Locate(target *Node, clone *Node) (*Node, error) {
	path, ok := n.PathOf(target)
	if !ok {
		return nil, fmt.Errorf("node %s is not inside template %s", target.Label(), n.Label())
	}
	return clone.Resolve(path)
}

// ReplaceWith puts other at n's position and detaches n. A detached n is
// left unchanged.
func (n *Node) ReplaceWith(other *Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	other.Detach()
	idx := slices.Index(parent.Children, n)
	parent.Children[idx] = other
	other.Parent = parent
	n.Parent = nil
}

// After inserts other as the next sibling of n.
func (n *Node) After(other *Node) error {
	parent := n.Parent
	if parent == nil {
		return fmt.Errorf("cannot insert after detached node %s", n.Label())
	}
	other.Detach()
	idx := slices.Index(parent.Children, n)
	parent.Children = slices.Insert(parent.Children, idx+1, other)
	other.Parent = parent
	return nil
}

// Detach removes n from its parent.
func (n *Node) Detach() {
	parent := n.Parent
	if parent == nil {
		return
	}
	if idx := slices.Index(parent.Children, n); idx >= 0 {
		parent.Children = slices.Delete(parent.Children, idx, idx+1)
	}
	n.Parent = nil
}

// Attached reports whether n has a parent.
func (n *Node) Attached() bool {
	return n.Parent != nil
}

// FindByID returns the first node, in document order, whose ID is id.
func (n *Node) FindByID(id string) *Node {
	if n.ID == id && !n.Comment {
		return n
	}
	for _, c := range n.Children {
		if found := c.FindByID(id); found != nil {
			return found
		}
	}
	return nil
}

// Label is a short human readable identification used in errors.
func (n *Node) Label() string {
	switch {
	case n.Comment:
		return "<!--" + n.Text + "-->"
	case n.ID != "":
		return n.Tag + "#" + n.ID
	default:
		return n.Tag
	}
}

// Render serializes n as compact HTML-like markup. Attributes are emitted in
// sorted order.
func (n *Node) Render() string {
	var b strings.Builder
	n.render(&b)
	return b.String()
}

func (n *Node) render(b *strings.Builder) {
	if n.Comment {
		b.WriteString("<!--")
		b.WriteString(n.Text)
		b.WriteString("-->")
		return
	}
	b.WriteString("<")
	b.WriteString(n.Tag)
	if n.ID != "" {
		fmt.Fprintf(b, " id=%q", n.ID)
	}
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%q", k, n.Attrs[k])
	}
	b.WriteString(">")
	b.WriteString(n.Text)
	for _, c := range n.Children {
		c.render(b)
	}
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteString(">")
}
