package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/store"
)

// scenarioWithSpec writes spec into a temp dir and returns a scenario
// pointing at it.
func scenarioWithSpec(t *testing.T, spec string, s Scenario) *Scenario {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.cue")
	require.NoError(t, os.WriteFile(path, []byte(spec), 0o644))
	s.Spec = path
	if s.Name == "" {
		s.Name = t.Name()
	}
	return &s
}

const titleSpec = `
template: {tag: "p", id: "title"}
scopes: [{bindings: ["$:title -> text"]}]
model: {title: "hi"}
`

const listSpec = `
template: {tag: "ul", id: "list", children: [{tag: "li", id: "item"}]}
regions: [{
	source: "items", entry: "item", anchor: "item"
	sockets: [{id: "row"}]
	scopes: [{bindings: ["@:item -> text"]}]
}]
scopes: [{bindings: ["$:items -> @:items"]}]
model: {items: ["a", "b"]}
`

func TestRun_MinimalScenario(t *testing.T) {
	scenario := scenarioWithSpec(t, titleSpec, Scenario{
		Expect: &Expectation{Render: `<p id="title">hi</p>`},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, DefaultRunID, result.RunID)
	assert.Equal(t, `<p id="title">hi</p>`, result.Render)

	require.Len(t, result.Trace, 1)
	assert.Equal(t, engine.TraceEvent{
		Seq:    1,
		RunID:  DefaultRunID,
		Kind:   engine.TracePropagate,
		Source: "$:title",
		Sink:   "text",
		Value:  `{"$ref":"model:title"}`,
	}, result.Trace[0])
}

func TestRun_ModelOverride(t *testing.T) {
	scenario := scenarioWithSpec(t, titleSpec, Scenario{
		Model:  map[string]any{"title": "override"},
		Expect: &Expectation{Render: `<p id="title">override</p>`, Model: map[string]any{"title": "override"}},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FailedExpectations(t *testing.T) {
	scenario := scenarioWithSpec(t, listSpec, Scenario{
		Steps: []Step{{
			SetModel: &SetModel{Path: "items.0", Value: "z"},
			Expect:   &Expectation{Render: `<ul id="list"></ul>`},
		}},
		Expect: &Expectation{
			Scope:   map[string]any{"items": []any{"a", "b"}},
			Model:   map[string]any{"items": []any{"a"}},
			Sockets: map[string]int{"row": 3, "cell": 1},
		},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "steps[0]: render: expected")
	assert.Equal(t, `expect: scope items: expected ["a","b"], got ["z","b"]`, result.Errors[1])
	assert.Equal(t, `expect: model: expected {"items":["a"]}, got {"items":["z","b"]}`, result.Errors[2])
	assert.Contains(t, result.Errors[3], `expect: socket cell:`)
	assert.Equal(t, "expect: socket row: expected 3 instances, got 2", result.Errors[4], "sockets are live without a mount")
}

func TestRun_SetScope(t *testing.T) {
	scenario := scenarioWithSpec(t, listSpec, Scenario{
		Steps: []Step{{SetScope: &SetScope{ID: "items", Value: []any{"x"}}}},
		Expect: &Expectation{
			Render: `<ul id="list"><!--items--><li id="item">x</li></ul>`,
			Scope:  map[string]any{"items": []any{"x"}, "missing": nil},
			Model:  map[string]any{"items": []any{"a", "b"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Kind: "remove", Count: 1},
		},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SetViewNth(t *testing.T) {
	scenario := scenarioWithSpec(t, `
template: {tag: "ul", children: [{tag: "li", id: "row"}]}
regions: [{
	source: "rows", entry: "row", anchor: "row"
	scopes: [{bindings: ["@:row.name -> value", "value -> @:row.name"]}]
}]
scopes: [{bindings: ["$:rows -> @:rows"]}]
model: {rows: [{name: "a"}, {name: "b"}]}
`, Scenario{
		Steps: []Step{{SetView: &SetView{Node: "row", Nth: 1, Value: "B"}}},
		Expect: &Expectation{
			Model: map[string]any{"rows": []any{
				map[string]any{"name": "a"},
				map[string]any{"name": "B"},
			}},
		},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_StepErrors(t *testing.T) {
	tests := []struct {
		name string
		step Step
		msg  string
	}{
		{"unknown view adapter", Step{SetView: &SetView{Node: "title", Adapter: "html", Value: "x"}}, `unknown view adapter "html"`},
		{"node not found", Step{SetView: &SetView{Node: "nope", Value: "x"}}, `node "nope" occurrence 0 not found`},
		{"occurrence out of range", Step{SetView: &SetView{Node: "title", Nth: 1, Value: "x"}}, "(1 present)"},
		{"unsupported value", Step{SetModel: &SetModel{Path: "title", Value: struct{}{}}}, "unsupported type"},
		{"no action", Step{}, "step has no action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := scenarioWithSpec(t, titleSpec, Scenario{Steps: []Step{tt.step}})
			_, err := Run(scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "steps[0]")
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestRun_CompileError(t *testing.T) {
	scenario := scenarioWithSpec(t, `scopes: []`, Scenario{})
	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile spec")
}

func TestRun_Deterministic(t *testing.T) {
	scenario := scenarioWithSpec(t, listSpec, Scenario{
		Steps: []Step{
			{SetModel: &SetModel{Path: "items.2", Value: "c"}},
			{Mount: true},
		},
	})

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, first.Trace, second.Trace)
	assert.NotEmpty(t, first.Trace)
}

func TestRunWithStore_JournalsRun(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	scenario := scenarioWithSpec(t, titleSpec, Scenario{
		RunID: "journaled",
		Steps: []Step{{SetModel: &SetModel{Path: "title", Value: "yo"}}},
	})

	ctx := context.Background()
	result, err := RunWithStore(ctx, st, scenario)
	require.NoError(t, err)

	run, err := st.ReadRun(ctx, "journaled")
	require.NoError(t, err)
	assert.Equal(t, scenario.Name, run.Label)
	assert.Equal(t, map[string]string{"prefix": "@"}, run.Options)
	assert.Len(t, run.SpecHash, 64)
	assert.Equal(t, len(result.Trace), run.Events)
	assert.Equal(t, 2, run.Events)

	_, err = RunWithStore(ctx, st, scenario)
	assert.NoError(t, err, "an existing run id is reused, events are not duplicated")
}

func TestResult_AddError(t *testing.T) {
	result := NewResult("r")
	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)

	result.AddError("boom")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}
