package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vdb/internal/store"
)

func testCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

const failingScenario = `name: wrong_title
spec: title.cue
expect:
  render: '<p id="title">nope</p>'
`

func TestTest_AllScenariosPass(t *testing.T) {
	out, err := testCmd(t, "text", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ list_append")
	assert.Contains(t, out, "✓ title_text")
	assert.Contains(t, out, "Test Summary: 4 passed, 0 failed, 4 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTest_Filter(t *testing.T) {
	out, err := testCmd(t, "json", "--filter", "list_*", scenariosDir)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "list_append", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "list-append-run", resp.Data.Scenarios[0].RunID)
}

func TestTest_FilterMatchesNothing(t *testing.T) {
	out, err := testCmd(t, "text", "--filter", "zzz*", scenariosDir)
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTest_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, err := testCmd(t, "text", "--specs", specsDir, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_title")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTest_FailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, err := testCmd(t, "json", "--specs", specsDir, dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestTest_BrokenScenarioFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\nspec: absent.cue\nexpect:\n  render: x\n")

	out, err := testCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed to load scenario")
}

func TestTest_CommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"missing path", []string{filepath.Join(t.TempDir(), "nope")}, "Error [E005]"},
		{"bad filter", []string{"--filter", "[", scenariosDir}, "invalid filter pattern"},
		{"update without golden dir", []string{"--update", scenariosDir}, "--update needs a golden directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := testCmd(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.wantMsg)
		})
	}
}

func TestTest_GoldenUpdateThenMatch(t *testing.T) {
	golden := t.TempDir()

	out, err := testCmd(t, "text", "--golden-dir", golden, "--update", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ form_input (golden updated)")
	assert.FileExists(t, goldenFilePath(golden, "form_input"))

	out, err = testCmd(t, "json", "--golden-dir", golden, scenariosDir)
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	for _, sr := range resp.Data.Scenarios {
		assert.Equal(t, "match", sr.Golden, sr.Name)
	}
}

func TestTest_GoldenMismatch(t *testing.T) {
	golden := t.TempDir()
	require.NoError(t, os.WriteFile(goldenFilePath(golden, "title_text"), []byte("{}"), 0o644))

	out, err := testCmd(t, "text", "--golden-dir", golden, "--filter", "title_*", scenariosDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ title_text")
	assert.Contains(t, out, "does not match golden file")
}

func TestTest_SharedGoldenFile(t *testing.T) {
	out, err := testCmd(t, "json", "--golden-dir", "../harness/testdata/golden", "--filter", "title_text", scenariosDir)
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "match", resp.Data.Scenarios[0].Golden)
}

func TestTest_JournalsRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "vdb.db")

	_, err := testCmd(t, "text", "--db", db, scenariosDir)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(t.Context())
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Contains(t, ids, "golden-run")
	assert.Contains(t, ids, "list-append-run")
	assert.Len(t, ids, 4)
}
