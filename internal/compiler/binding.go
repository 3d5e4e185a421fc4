package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/vdb/internal/ast"
	"github.com/roach88/vdb/internal/dom"
)

// variablePattern matches ns:id.path or a bare adapter name.
var variablePattern = regexp.MustCompile(`^(?:([^:\s.]+):)?([^:\s.]+)((?:\.[^:\s.]+)*)$`)

// parseScopes collects the scope entries of one level into a scope tree
// anchored on tpl. Entries naming the same node are merged in order.
//
// Each binding is either a struct
//
//	{left: {ns: "$", id: "items"}, op: "->", connectors: ["trim"], right: {ns: "@", id: "items"}}
//
// or the equivalent text form "$:items -> trim -> @:items".
func parseScopes(v cue.Value, tpl *dom.Node, ids map[string]*dom.Node) (*ast.Scope, error) {
	scopesVal := v.LookupPath(cue.ParsePath("scopes"))
	if !scopesVal.Exists() {
		return nil, nil
	}
	iter, err := scopesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	root := &ast.Scope{Element: tpl}
	nested := make(map[*dom.Node]*ast.Scope)
	for iter.Next() {
		sv := iter.Value()
		nodeID, err := optionalString(sv, "node")
		if err != nil {
			return nil, err
		}
		el, err := resolveNode(sv, "node", nodeID, tpl, ids)
		if err != nil {
			return nil, err
		}

		scope := root
		if el != tpl {
			scope = nested[el]
			if scope == nil {
				scope = &ast.Scope{Element: el}
				nested[el] = scope
				root.Scopes = append(root.Scopes, scope)
			}
		}

		bindings, err := parseBindings(sv)
		if err != nil {
			return nil, err
		}
		scope.Bindings = append(scope.Bindings, bindings...)
	}
	return root, nil
}

func parseBindings(v cue.Value) ([]ast.Binding, error) {
	bindingsVal := v.LookupPath(cue.ParsePath("bindings"))
	if !bindingsVal.Exists() {
		return nil, nil
	}
	iter, err := bindingsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ast.Binding
	for iter.Next() {
		bv := iter.Value()
		var b ast.Binding
		if text, err := bv.String(); err == nil {
			b, err = ParseBinding(text)
			if err != nil {
				return nil, &CompileError{Field: "binding", Message: err.Error(), Pos: bv.Pos()}
			}
		} else {
			b, err = parseBindingStruct(bv)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func parseBindingStruct(v cue.Value) (ast.Binding, error) {
	var b ast.Binding
	var err error

	if b.Left, err = parseVariable(v, "left"); err != nil {
		return b, err
	}
	if b.Right, err = parseVariable(v, "right"); err != nil {
		return b, err
	}
	if b.Op, err = optionalString(v, "op"); err != nil {
		return b, err
	}
	if b.Connectors, err = stringList(v, "connectors"); err != nil {
		return b, err
	}

	if err := b.Validate(); err != nil {
		return b, &CompileError{Field: "binding", Message: err.Error(), Pos: v.Pos()}
	}
	return b, nil
}

func parseVariable(v cue.Value, field string) (ast.Variable, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return ast.Variable{}, &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	var out ast.Variable
	var err error
	if out.NS, err = optionalString(fv, "ns"); err != nil {
		return out, err
	}
	if out.ID, err = requiredString(fv, "id"); err != nil {
		return out, err
	}
	if out.Path, err = stringList(fv, "path"); err != nil {
		return out, err
	}
	return out, nil
}

// ParseBinding parses the text form of a binding:
//
//	left op [connector op ...] right
//
// where every op is the same arrow ("->" or "<-") and each endpoint is
// either ns:id[.path...] or a bare adapter name.
func ParseBinding(text string) (ast.Binding, error) {
	fields := strings.Fields(text)
	if len(fields) < 3 || len(fields)%2 == 0 {
		return ast.Binding{}, fmt.Errorf("binding %q: expected endpoints separated by arrows", text)
	}

	b := ast.Binding{Op: fields[1]}
	for i := 1; i < len(fields); i += 2 {
		if fields[i] != b.Op {
			return ast.Binding{}, fmt.Errorf("binding %q: mixed operators %q and %q", text, b.Op, fields[i])
		}
	}
	for i := 2; i < len(fields)-1; i += 2 {
		b.Connectors = append(b.Connectors, fields[i])
	}

	var err error
	if b.Left, err = ParseVariable(fields[0]); err != nil {
		return ast.Binding{}, fmt.Errorf("binding %q: %w", text, err)
	}
	if b.Right, err = ParseVariable(fields[len(fields)-1]); err != nil {
		return ast.Binding{}, fmt.Errorf("binding %q: %w", text, err)
	}
	if err := b.Validate(); err != nil {
		return ast.Binding{}, err
	}
	return b, nil
}

// ParseVariable parses one binding endpoint.
func ParseVariable(text string) (ast.Variable, error) {
	m := variablePattern.FindStringSubmatch(text)
	if m == nil {
		return ast.Variable{}, fmt.Errorf("invalid endpoint %q", text)
	}
	v := ast.Variable{NS: m[1], ID: m[2]}
	if m[3] != "" {
		if v.NS == "" {
			return ast.Variable{}, fmt.Errorf("endpoint %q: a path needs a namespace", text)
		}
		v.Path = strings.Split(m[3][1:], ".")
	}
	return v, nil
}
