package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/store"
)

func runCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRun_RendersView(t *testing.T) {
	out, err := runCmd(t, "text", "--run-id", "r1", titleSpec)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Run r1: 1 event(s)")
	assert.Contains(t, out, `<p id="title">hi</p>`)
}

func TestRun_List(t *testing.T) {
	out, err := runCmd(t, "json", "--run-id", "r1", listSpec)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		RunID  string    `json:"run_id"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "r1", resp.RunID)
	assert.Equal(t,
		`<ul id="list"><!--items--><li id="item" class="row">a</li><li id="item" class="row">b</li></ul>`,
		resp.Data.Render)
	assert.Equal(t, map[string]any{"items": []any{" a ", "b"}}, resp.Data.Model)
	assert.Empty(t, resp.Data.Trace, "trace is only printed with --trace")
	assert.Positive(t, resp.Data.Events)
}

func TestRun_ModelOverride(t *testing.T) {
	model := writeFile(t, t.TempDir(), "model.json", `{"title": "from file"}`)

	out, err := runCmd(t, "text", "--model", model, titleSpec)
	require.NoError(t, err)
	assert.Contains(t, out, `<p id="title">from file</p>`)
}

func TestRun_ModelErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.json", `{"title":`)

	out, err := runCmd(t, "text", "--model", bad, titleSpec)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeBadInput)

	out, err = runCmd(t, "text", "--model", filepath.Join(dir, "absent.json"), titleSpec)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestRun_TraceFlag(t *testing.T) {
	out, err := runCmd(t, "text", "--trace", "--run-id", "r1", titleSpec)
	require.NoError(t, err)
	assert.Contains(t, out, "[1] propagate source=$:title sink=text")
}

func TestRun_MissingSpec(t *testing.T) {
	out, err := runCmd(t, "text", filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "spec file not found")
}

func TestRun_GeneratedRunID(t *testing.T) {
	out, err := runCmd(t, "text", titleSpec)
	require.NoError(t, err)
	assert.Regexp(t, `✓ Run [0-9a-f-]{36}: 1 event\(s\)`, out)
}

func TestExecuteRun_JournalsEvents(t *testing.T) {
	ctx := t.Context()
	st, err := store.Open(filepath.Join(t.TempDir(), "vdb.db"))
	require.NoError(t, err)
	defer st.Close()

	spec, err := LoadSpec(listSpec)
	require.NoError(t, err)

	result, err := executeRun(ctx, runParams{
		Spec:   spec,
		Model:  spec.Description.Model,
		RunID:  "journaled",
		Label:  "list",
		Prefix: engine.DefaultPrefix,
		Mount:  false,
		Store:  st,
	})
	require.NoError(t, err)

	run, err := st.ReadRun(ctx, "journaled")
	require.NoError(t, err)
	assert.Equal(t, "list", run.Label)
	assert.Equal(t, store.SpecHash(spec.Source), run.SpecHash)
	assert.Equal(t, map[string]string{"prefix": "@", "spec": listSpec, "mount": "false"}, run.Options)
	// Teardown removals are journaled after the result is taken: two
	// removes and the two socket removals of the unmounted rows.
	assert.Equal(t, result.Events+4, run.Events)

	events, err := st.ReadEvents(ctx, store.Filter{RunID: "journaled", Kinds: []engine.TraceKind{engine.TraceAdd}})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "items", events[0].Source)
	assert.Equal(t, "0", events[0].Key)
	assert.Equal(t, "1", events[1].Key)
}
