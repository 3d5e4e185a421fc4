package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vdb/internal/ast"
	"github.com/roach88/vdb/internal/dom"
	"github.com/roach88/vdb/internal/testutil"
	"github.com/roach88/vdb/internal/value"
)

func scopeVar(id string, path ...string) ast.Variable {
	return ast.Variable{NS: DefaultPrefix, ID: id, Path: path}
}

func modelVar(id string, path ...string) ast.Variable {
	return ast.Variable{NS: "$", ID: id, Path: path}
}

func viewVar(name string) ast.Variable {
	return ast.Variable{ID: name}
}

func arrow(left, right ast.Variable, connectors ...string) ast.Binding {
	return ast.Binding{Left: left, Op: ast.OpRight, Connectors: connectors, Right: right}
}

func strs(ss ...string) value.Seq {
	out := make(value.Seq, len(ss))
	for i, s := range ss {
		out[i] = value.String(s)
	}
	return out
}

// listFixture binds model "items" to a <ul> with one <li> per entry. The
// entry text is bound to the element text and each <li> is socket "row".
//
//	<ul id="list"><!--items--> li* </ul>
func listFixture(t *testing.T, data value.Value) (*testutil.Env, *Node) {
	t.Helper()
	env := testutil.NewEnv(data)

	root := dom.NewElement("ul", "list")
	marker := dom.NewComment("items")
	root.Append(marker)
	li := dom.NewElement("li", "item")

	return env, &Node{
		Template:     root,
		Placeholders: []*dom.Node{marker},
		Spec: &ast.Scope{Element: root, Bindings: []ast.Binding{
			arrow(modelVar("items"), scopeVar("items")),
		}},
		Children: []*Node{{
			SourceID: "items",
			EntryID:  "item",
			KeyID:    "idx",
			Template: li,
			Sockets:  []Socket{{ID: "row", Element: li}},
			Spec: &ast.Scope{Element: li, Bindings: []ast.Binding{
				arrow(scopeVar("item"), viewVar("text")),
			}},
		}},
	}
}

// nestedFixture renders scope slot "groups" as sections, each repeating its
// own "rows" as paragraphs. Rows carry socket "cell".
//
//	<div id="root"><!--groups--> section(<!--rows--> p*)* </div>
func nestedFixture(t *testing.T) (*testutil.Env, *Node) {
	t.Helper()
	env := testutil.NewEnv(nil)

	root := dom.NewElement("div", "root")
	groupsMarker := dom.NewComment("groups")
	root.Append(groupsMarker)

	section := dom.NewElement("section", "group")
	rowsMarker := dom.NewComment("rows")
	section.Append(rowsMarker)

	p := dom.NewElement("p", "row")

	return env, &Node{
		Template:     root,
		Placeholders: []*dom.Node{groupsMarker},
		Spec:         &ast.Scope{Element: root},
		Children: []*Node{{
			SourceID:     "groups",
			EntryID:      "group",
			Own:          []string{"rows"},
			Template:     section,
			Placeholders: []*dom.Node{rowsMarker},
			Spec: &ast.Scope{Element: section, Bindings: []ast.Binding{
				arrow(scopeVar("group", "rows"), scopeVar("rows")),
			}},
			Children: []*Node{{
				SourceID: "rows",
				EntryID:  "row",
				Template: p,
				Sockets:  []Socket{{ID: "cell", Element: p}},
				Spec: &ast.Scope{Element: p, Bindings: []ast.Binding{
					arrow(scopeVar("row"), viewVar("text")),
				}},
			}},
		}},
	}
}

// scopeFixture is a bare root with the given bindings on its element.
func scopeFixture(t *testing.T, data value.Value, bindings ...ast.Binding) (*testutil.Env, *Node) {
	t.Helper()
	env := testutil.NewEnv(data)
	root := dom.NewElement("div", "root")
	return env, &Node{
		Template: root,
		Spec:     &ast.Scope{Element: root, Bindings: bindings},
	}
}

func newBinding(t *testing.T, env *testutil.Env, tree *Node, opts ...Option) *Binding {
	t.Helper()
	base := []Option{
		WithRegistry(env.Registry),
		WithModel(env.Model),
		WithRunIDGenerator(NewFixedGenerator("run-1")),
	}
	b, err := New(tree, append(base, opts...)...)
	require.NoError(t, err)
	return b
}

// mountBinding mounts b into a fresh page and returns the page.
func mountBinding(t *testing.T, b *Binding) *dom.Node {
	t.Helper()
	page := dom.NewElement("body", "")
	page.Append(dom.NewElement("div", "mount"))
	require.NoError(t, b.Mount(page.Children[0]))
	return page
}

func firstLink(b *Binding) *link {
	return b.root.instances[0].links[0]
}

func keysOf(l *link) []value.Value {
	out := make([]value.Value, len(l.instances))
	for i, inst := range l.instances {
		out[i] = inst.key
	}
	return out
}

func textsOf(l *link) []string {
	out := make([]string, len(l.instances))
	for i, inst := range l.instances {
		out[i] = inst.template.Text
	}
	return out
}

func ints(ns ...int) []value.Value {
	out := make([]value.Value, len(ns))
	for i, n := range ns {
		out[i] = value.Int(n)
	}
	return out
}

func setModel(t *testing.T, env *testutil.Env, path value.Path, v value.Value) {
	t.Helper()
	require.NoError(t, env.ModelAd.Set(env.Model, path, v))
}
