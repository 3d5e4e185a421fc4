// Package ast holds the binding description the engine consumes: nested
// scopes anchored on template elements, each declaring directional bindings
// between variables.
package ast

import (
	"fmt"
	"strings"

	"github.com/roach88/vdb/internal/dom"
)

// Binding operators.
const (
	OpRight = "->"
	OpLeft  = "<-"
)

// Variable is one endpoint of a binding.
//
// With a namespace the endpoint is the adapter (or scope) named NS, addressed
// at [ID, Path...]. Without one the endpoint is the adapter named ID at the
// empty path.
type Variable struct {
	NS   string
	ID   string
	Path []string
}

func (v Variable) String() string {
	var b strings.Builder
	if v.NS != "" {
		b.WriteString(v.NS)
		b.WriteString(":")
	}
	b.WriteString(v.ID)
	for _, p := range v.Path {
		b.WriteString(".")
		b.WriteString(p)
	}
	return b.String()
}

// Binding is a single arrow between two variables. Connectors are listed in
// syntactic order, left to right.
type Binding struct {
	Left       Variable
	Op         string
	Connectors []string
	Right      Variable
}

func (b Binding) String() string {
	parts := []string{b.Left.String(), b.Op}
	for _, c := range b.Connectors {
		parts = append(parts, c, b.Op)
	}
	parts = append(parts, b.Right.String())
	return strings.Join(parts, " ")
}

// Scope anchors bindings on a template element. Nested scopes are anchored
// on descendants of that element.
type Scope struct {
	Element  *dom.Node
	Bindings []Binding
	Scopes   []*Scope
}

// Clone deep-copies the scope tree. Elements are shared.
func (s *Scope) Clone() *Scope {
	if s == nil {
		return nil
	}
	c := &Scope{Element: s.Element}
	if s.Bindings != nil {
		c.Bindings = make([]Binding, len(s.Bindings))
		for i, b := range s.Bindings {
			c.Bindings[i] = b.clone()
		}
	}
	for _, child := range s.Scopes {
		c.Scopes = append(c.Scopes, child.Clone())
	}
	return c
}

func (b Binding) clone() Binding {
	b.Left.Path = append([]string(nil), b.Left.Path...)
	b.Right.Path = append([]string(nil), b.Right.Path...)
	b.Connectors = append([]string(nil), b.Connectors...)
	return b
}

// All returns s and every nested scope, depth-first in declaration order.
func (s *Scope) All() []*Scope {
	if s == nil {
		return nil
	}
	out := []*Scope{s}
	for _, child := range s.Scopes {
		out = append(out, child.All()...)
	}
	return out
}

// Rename rewrites the ID of every variable in namespace ns that has an entry
// in renames. It walks nested scopes.
func (s *Scope) Rename(ns string, renames map[string]string) {
	for _, scope := range s.All() {
		for i := range scope.Bindings {
			b := &scope.Bindings[i]
			renameVar(&b.Left, ns, renames)
			renameVar(&b.Right, ns, renames)
		}
	}
}

func renameVar(v *Variable, ns string, renames map[string]string) {
	if v.NS != ns {
		return
	}
	if to, ok := renames[v.ID]; ok {
		v.ID = to
	}
}

// Variables returns every variable of s and its nested scopes, in order.
func (s *Scope) Variables() []Variable {
	var out []Variable
	for _, scope := range s.All() {
		for _, b := range scope.Bindings {
			out = append(out, b.Left, b.Right)
		}
	}
	return out
}

// Validate checks the structural assumptions the engine relies on.
func (b Binding) Validate() error {
	switch b.Op {
	case OpRight, OpLeft:
	case "":
		return fmt.Errorf("binding %s: missing operator", b)
	default:
		return fmt.Errorf("binding %s: cannot interpret operator %q", b, b.Op)
	}
	if b.Left.ID == "" && b.Left.NS == "" {
		return fmt.Errorf("binding %s: empty left endpoint", b)
	}
	if b.Right.ID == "" && b.Right.NS == "" {
		return fmt.Errorf("binding %s: empty right endpoint", b)
	}
	return nil
}
