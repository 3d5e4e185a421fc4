package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompile_SingleFile(t *testing.T) {
	out, err := compileCmd(t, "text", titleSpec)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 1 spec(s): 0 region(s), 1 binding(s), 0 socket(s)")
	assert.Contains(t, out, `template: <p id="title"></p>`)
	assert.Contains(t, out, "binding p#title: $:title -> text")
}

func TestCompile_Directory(t *testing.T) {
	out, err := compileCmd(t, "text", specsDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 3 spec(s): 1 region(s), 5 binding(s), 1 socket(s)")
	assert.Contains(t, out, "region items entry=item key=idx")
	assert.Contains(t, out, "binding li#item: @:item -> trim -> text")
	assert.Contains(t, out, "socket row")
}

func TestCompile_JSONOutput(t *testing.T) {
	out, err := compileCmd(t, "json", listSpec)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Specs, 1)

	spec := resp.Data.Specs[0]
	assert.Equal(t, listSpec, spec.Path)
	assert.Equal(t, `<ul id="list"><!--items--></ul>`, spec.Template)
	assert.Equal(t, []string{"ul#list: $:items -> @:items"}, spec.Bindings)
	require.Len(t, spec.Regions, 1)

	region := spec.Regions[0]
	assert.Equal(t, "items", region.Source)
	assert.Equal(t, "item", region.Entry)
	assert.Equal(t, "idx", region.Key)
	assert.Equal(t, `<li id="item" class="row"></li>`, region.Template)
	assert.Equal(t, []string{"row"}, region.Sockets)
	assert.Equal(t, map[string]any{"items": []any{" a ", "b"}}, spec.Model)
}

func TestCompile_OutputFile(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "compiled.json")

	out, err := compileCmd(t, "text", "-o", outPath, titleSpec)
	require.NoError(t, err)
	assert.Contains(t, out, "Output written to "+outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Specs, 1)
	assert.Equal(t, []string{"p#title: $:title -> text"}, result.Specs[0].Bindings)
}

func TestCompile_PathErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantMsg string
	}{
		{
			name:    "missing path",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") },
			wantMsg: "path not found",
		},
		{
			name:    "empty directory",
			path:    func(t *testing.T) string { return t.TempDir() },
			wantMsg: "no CUE files found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := compileCmd(t, "text", tt.path(t))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.wantMsg)
		})
	}
}

func TestCompile_InvalidSpec(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.cue", `
template: {tag: "p", id: "title"}
scopes: [{node: "missing", bindings: ["$:title -> text"]}]
`)

	out, err := compileCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Compilation failed with 1 error(s)")
	assert.Contains(t, out, ErrCodeNode)
	assert.Contains(t, out, `unknown node "missing"`)
}

func TestCompile_CollectsAllErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.cue", `scopes: []`)
	writeFile(t, dir, "b.cue", `template: {tag: "p"`)

	out, err := compileCmd(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTemplate, resp.Error.Code)
	assert.Equal(t, "compilation failed with 2 error(s)", resp.Error.Message)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := map[string]string{
		"cue":        ErrCodeSyntax,
		"tag":        ErrCodeTemplate,
		"anchor":     ErrCodeRegion,
		"own":        ErrCodeRegion,
		"node":       ErrCodeNode,
		"connectors": ErrCodeBinding,
		"model":      ErrCodeModel,
		"elsewhere":  ErrCodeGeneric,
	}
	for field, want := range tests {
		assert.Equal(t, want, MapFieldToErrorCode(field), field)
	}
}

func TestLoadError_Format(t *testing.T) {
	assert.Equal(t, "E005: spec file not found: x.cue",
		(&LoadError{Code: ErrCodeNotFound, Message: "spec file not found: x.cue"}).Error())
	assert.Equal(t, "x.cue: E201: template: template is required",
		(&LoadError{Path: "x.cue", Code: ErrCodeTemplate, Message: "template: template is required"}).Error())
}

func TestLoadSpec_Missing(t *testing.T) {
	_, err := LoadSpec(filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

func TestFindCUEFiles_Sorted(t *testing.T) {
	files, err := FindCUEFiles(specsDir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(specsDir, "form.cue"),
		filepath.Join(specsDir, "list.cue"),
		filepath.Join(specsDir, "title.cue"),
	}, files)
}
