package engine

import (
	"github.com/roach88/vdb/internal/ast"
	"github.com/roach88/vdb/internal/dom"
	"github.com/roach88/vdb/internal/value"
)

// Socket is a named observation point inside a node's template.
type Socket struct {
	ID      string
	Element *dom.Node
}

// Node is one level of the static iteration tree produced by the
// preprocessor. The root node describes the whole binding and has no
// SourceID; every other node describes one repeated region.
//
// Template is the fragment cloned per instance. Placeholders are comment
// markers inside Template, one per child node in the same order; instances
// of child i are inserted after Placeholders[i]. Spec elements, sockets
// and placeholders all point into Template.
type Node struct {
	SourceID string // scope slot driving the repetition
	EntryID  string // scope variable exposing the entry value, if any
	KeyID    string // scope variable exposing the key, if any
	Own      []string

	Template     *dom.Node
	Placeholders []*dom.Node
	Sockets      []Socket
	Spec         *ast.Scope
	Children     []*Node
}

// validate checks the structural assumptions of the tree rooted at n.
func (n *Node) validate(root bool) error {
	if n.Template == nil {
		return structureError("iteration node %q has no template", n.SourceID)
	}
	if !root && n.SourceID == "" {
		return structureError("nested iteration node has no source id")
	}
	if len(n.Placeholders) != len(n.Children) {
		return structureError("iteration node %q has %d placeholders for %d children",
			n.SourceID, len(n.Placeholders), len(n.Children))
	}
	for _, p := range n.Placeholders {
		if p == n.Template {
			return structureError("placeholder of %q is its template root", n.SourceID)
		}
		if _, ok := n.Template.PathOf(p); !ok {
			return structureError("placeholder %s is outside the template of %q", p.Label(), n.SourceID)
		}
	}
	for _, s := range n.Sockets {
		if _, ok := n.Template.PathOf(s.Element); !ok {
			return structureError("socket %q is outside the template of %q", s.ID, n.SourceID)
		}
	}
	for _, sc := range n.Spec.All() {
		if sc.Element == nil {
			continue
		}
		if _, ok := n.Template.PathOf(sc.Element); !ok {
			return structureError("scope element %s is outside the template of %q", sc.Element.Label(), n.SourceID)
		}
	}
	for _, c := range n.Children {
		if err := c.validate(false); err != nil {
			return err
		}
	}
	return nil
}

// socketIDs collects every socket id declared in the tree.
func (n *Node) socketIDs(out map[string]bool) {
	for _, s := range n.Sockets {
		out[s.ID] = true
	}
	for _, c := range n.Children {
		c.socketIDs(out)
	}
}

// link is the live mirror of one repeated region inside one instance.
type link struct {
	node   *Node
	parent *link     // link owning owner; nil for the root link
	owner  *instance // instance the region lives in; nil for the root link

	sourceID    string
	collection  value.Value // plain snapshot of the last reconciled collection
	instances   []*instance
	observerID  int
	placeholder *dom.Node
}

// boundSocket is a socket resolved inside one instance's clone.
type boundSocket struct {
	id      string
	element *dom.Node
}

// instance is one concrete repetition of a link.
type instance struct {
	key     value.Value
	keyID   string
	entryID string

	template     *dom.Node
	spec         *ast.Scope
	renames      map[string]string
	placeholders []*dom.Node
	sockets      []boundSocket
	links        []*link
	wiring       []wire
}

// find returns the index of the instance whose key matches key.
func (l *link) find(key value.Value) int {
	for i, inst := range l.instances {
		if sameKey(inst.key, key) {
			return i
		}
	}
	return -1
}

// sameKey compares keys by their text form so Int(1) and String("1") from
// different collection shapes address the same instance.
func sameKey(a, b value.Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return value.Text(a) == value.Text(b)
}

// keyPath returns the keys of inst and its ancestor instances, innermost
// first. The root instance contributes no key.
func (l *link) keyPath(inst *instance) []value.Value {
	var keys []value.Value
	if l.parent == nil {
		return keys
	}
	keys = append(keys, inst.key)
	for cur := l; cur.parent != nil && cur.parent.parent != nil; cur = cur.parent {
		keys = append(keys, cur.owner.key)
	}
	return keys
}
