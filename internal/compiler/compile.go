package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/vdb/internal/dom"
	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/value"
)

// Description is a compiled binding description: the iteration tree the
// engine consumes plus the optional initial model.
type Description struct {
	Tree  *engine.Node
	Model value.Value
}

// Compile parses a CUE value into a Description.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value must have a template and may declare root scopes, regions and
// an initial model:
//
//	template: {tag: "ul", id: "list", children: [{tag: "li", id: "item"}]}
//	regions: [{source: "items", entry: "item", anchor: "item", scopes: [...]}]
//	scopes: [{node: "", bindings: ["$:items -> @:items"]}]
//	model: {items: ["a", "b"]}
func Compile(v cue.Value) (*Description, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	tplVal := v.LookupPath(cue.ParsePath("template"))
	if !tplVal.Exists() {
		return nil, &CompileError{
			Field:   "template",
			Message: "template is required",
			Pos:     v.Pos(),
		}
	}
	ids := make(map[string]*dom.Node)
	tpl, err := parseTemplate(tplVal, ids)
	if err != nil {
		return nil, err
	}

	tree := &engine.Node{Template: tpl}
	if err := compileLevel(v, tree, ids); err != nil {
		return nil, err
	}

	desc := &Description{Tree: tree}
	modelVal := v.LookupPath(cue.ParsePath("model"))
	if modelVal.Exists() {
		var raw any
		if err := modelVal.Decode(&raw); err != nil {
			return nil, formatCUEError(err)
		}
		desc.Model, err = value.FromGo(raw)
		if err != nil {
			return nil, &CompileError{Field: "model", Message: err.Error(), Pos: modelVal.Pos()}
		}
	}
	return desc, nil
}

// CompileString compiles CUE source text. Positions in errors carry filename.
func CompileString(src, filename string) (*Description, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileString(src, cue.Filename(filename)))
}

// CompileFile compiles a single CUE file.
func CompileFile(path string) (*Description, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read binding description: %w", err)
	}
	return CompileString(string(src), path)
}

// compileLevel fills n from the regions, sockets and scopes declared in v.
// Regions are cut out of the template first so that sockets and scopes of
// this level can only address nodes that stay in it.
func compileLevel(v cue.Value, n *engine.Node, ids map[string]*dom.Node) error {
	if regions := v.LookupPath(cue.ParsePath("regions")); regions.Exists() {
		iter, err := regions.List()
		if err != nil {
			return formatCUEError(err)
		}
		for iter.Next() {
			child, marker, err := compileRegion(iter.Value(), n.Template, ids)
			if err != nil {
				return err
			}
			n.Children = append(n.Children, child)
			n.Placeholders = append(n.Placeholders, marker)
		}
	}

	sockets, err := parseSockets(v, n.Template, ids)
	if err != nil {
		return err
	}
	n.Sockets = sockets

	spec, err := parseScopes(v, n.Template, ids)
	if err != nil {
		return err
	}
	n.Spec = spec
	return nil
}

// compileRegion detaches the anchor node from parent, leaving a comment
// marker in its place, and compiles the region around the detached node.
func compileRegion(v cue.Value, parent *dom.Node, ids map[string]*dom.Node) (*engine.Node, *dom.Node, error) {
	source, err := requiredString(v, "source")
	if err != nil {
		return nil, nil, err
	}
	anchorID, err := requiredString(v, "anchor")
	if err != nil {
		return nil, nil, err
	}

	anchor, err := resolveNode(v, "anchor", anchorID, parent, ids)
	if err != nil {
		return nil, nil, err
	}
	if anchor == parent {
		return nil, nil, &CompileError{
			Field:   "anchor",
			Message: fmt.Sprintf("region %q cannot be anchored on its enclosing template root %q", source, anchorID),
			Pos:     v.Pos(),
		}
	}

	n := &engine.Node{SourceID: source}
	if n.EntryID, err = optionalString(v, "entry"); err != nil {
		return nil, nil, err
	}
	if n.KeyID, err = optionalString(v, "key"); err != nil {
		return nil, nil, err
	}
	if n.Own, err = stringList(v, "own"); err != nil {
		return nil, nil, err
	}

	marker := dom.NewComment(source)
	anchor.ReplaceWith(marker)
	n.Template = anchor

	if err := compileLevel(v, n, ids); err != nil {
		return nil, nil, err
	}
	return n, marker, nil
}

// parseTemplate builds a detached fragment from a template node value and
// records every id in ids. Ids must be unique across the description.
func parseTemplate(v cue.Value, ids map[string]*dom.Node) (*dom.Node, error) {
	tag, err := requiredString(v, "tag")
	if err != nil {
		return nil, err
	}
	id, err := optionalString(v, "id")
	if err != nil {
		return nil, err
	}
	n := dom.NewElement(tag, id)
	if id != "" {
		if _, dup := ids[id]; dup {
			return nil, &CompileError{
				Field:   "id",
				Message: fmt.Sprintf("duplicate node id %q", id),
				Pos:     v.Pos(),
			}
		}
		ids[id] = n
	}
	if n.Text, err = optionalString(v, "text"); err != nil {
		return nil, err
	}

	if attrs := v.LookupPath(cue.ParsePath("attrs")); attrs.Exists() {
		iter, err := attrs.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			n.Attrs[iter.Selector().Unquoted()] = s
		}
	}

	if children := v.LookupPath(cue.ParsePath("children")); children.Exists() {
		iter, err := children.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			child, err := parseTemplate(iter.Value(), ids)
			if err != nil {
				return nil, err
			}
			n.Append(child)
		}
	}
	return n, nil
}

func parseSockets(v cue.Value, tpl *dom.Node, ids map[string]*dom.Node) ([]engine.Socket, error) {
	socketsVal := v.LookupPath(cue.ParsePath("sockets"))
	if !socketsVal.Exists() {
		return nil, nil
	}
	iter, err := socketsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var sockets []engine.Socket
	for iter.Next() {
		sv := iter.Value()
		id, err := requiredString(sv, "id")
		if err != nil {
			return nil, err
		}
		nodeID, err := optionalString(sv, "node")
		if err != nil {
			return nil, err
		}
		el, err := resolveNode(sv, "node", nodeID, tpl, ids)
		if err != nil {
			return nil, err
		}
		sockets = append(sockets, engine.Socket{ID: id, Element: el})
	}
	return sockets, nil
}

// resolveNode finds the node named id inside tpl. The empty id names tpl.
func resolveNode(v cue.Value, field, id string, tpl *dom.Node, ids map[string]*dom.Node) (*dom.Node, error) {
	if id == "" {
		return tpl, nil
	}
	n, ok := ids[id]
	if !ok {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unknown node %q", id),
			Pos:     v.Pos(),
		}
	}
	if _, inside := tpl.PathOf(n); !inside {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("node %q is not part of template %s", id, tpl.Label()),
			Pos:     v.Pos(),
		}
	}
	return n, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{
			Field:   field,
			Message: field + " must be non-empty",
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

