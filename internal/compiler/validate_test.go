package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vdb/internal/ast"
	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/testutil"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValid(t *testing.T) {
	desc, err := CompileString(listSrc, "list.cue")
	require.NoError(t, err)

	env := testutil.NewEnv(nil)
	errs := Validate(desc.Tree, env.Registry, engine.DefaultPrefix)
	assert.Empty(t, errs, "valid description should have no errors")
}

func TestValidateCollectsAll(t *testing.T) {
	desc, err := CompileString(`
		template: {tag: "ul", children: [{tag: "li", id: "li", children: [{tag: "b", id: "b"}]}]}
		regions: [{
			source: "items", entry: "items", key: "k", own: ["k"], anchor: "li"
			sockets: [{id: "row"}, {id: "row", node: "b"}]
			scopes: [{bindings: ["@:items -> shout -> html"]}]
		}]
		scopes: [{bindings: ["nope:items -> @:items"]}]
	`, "bad.cue")
	require.NoError(t, err)

	env := testutil.NewEnv(nil)
	errs := Validate(desc.Tree, env.Registry, engine.DefaultPrefix)
	assert.Equal(t, []string{
		ErrUnknownAdapter,   // nope
		ErrNameClash,        // entry == source
		ErrNameClash,        // own == key
		ErrDuplicateSocket,  // row twice
		ErrUnknownAdapter,   // html
		ErrUnknownConnector, // shout
	}, codes(errs))

	assert.Equal(t, "root/items.entry", errs[1].Field)
	assert.Contains(t, errs[0].Message, `"nope"`)
	assert.Contains(t, errs[0].Error(), "[E100]")
}

func TestValidateInvalidOperatorAndEmptyEndpoint(t *testing.T) {
	desc, err := CompileString(`template: {tag: "p"}`, "p.cue")
	require.NoError(t, err)
	b, err := ParseBinding("$:a -> text")
	require.NoError(t, err)
	b.Op = "=>"
	b.Right.ID = ""
	desc.Tree.Spec = &ast.Scope{Element: desc.Tree.Template, Bindings: []ast.Binding{b}}

	env := testutil.NewEnv(nil)
	errs := Validate(desc.Tree, env.Registry, engine.DefaultPrefix)
	assert.Equal(t, []string{ErrInvalidOperator, ErrEmptyEndpoint}, codes(errs))
}

func TestValidateCustomPrefix(t *testing.T) {
	desc, err := CompileString(`
		template: {tag: "p"}
		scopes: [{bindings: ["$:a -> ~:a"]}]
	`, "p.cue")
	require.NoError(t, err)

	env := testutil.NewEnv(nil)
	assert.Empty(t, Validate(desc.Tree, env.Registry, "~"))
	assert.Equal(t, []string{ErrUnknownAdapter}, codes(Validate(desc.Tree, env.Registry, engine.DefaultPrefix)))
}
