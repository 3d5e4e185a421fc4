package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	specsDir     = "../../testdata/specs"
	scenariosDir = "../../testdata/scenarios"
	titleSpec    = "../../testdata/specs/title.cue"
	listSpec     = "../../testdata/specs/list.cue"
)

// execute runs the full vdb command tree with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// recordRun journals one run of spec into dbPath under runID.
func recordRun(t *testing.T, dbPath, spec, runID string) {
	t.Helper()
	_, err := execute(t, "run", "--db", dbPath, "--run-id", runID, spec)
	require.NoError(t, err)
}
