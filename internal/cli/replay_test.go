package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vdb/internal/store"
)

func replayCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestReplay_RerunIsDeterministic(t *testing.T) {
	db := journal(t)

	out, err := replayCmd(t, "text", "--db", db, "run-b")
	require.NoError(t, err)
	assert.Contains(t, out, "Left:  run-b")
	assert.Contains(t, out, "✓ Runs are identical")
	assert.NotContains(t, out, "Warning")

	// The rerun is journaled next to the original.
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.ListRuns(t.Context())
	require.NoError(t, err)
	require.Len(t, runs, 3)
}

func TestReplay_RerunJSON(t *testing.T) {
	db := journal(t)

	out, err := replayCmd(t, "json", "--db", db, "run-a")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		RunID  string       `json:"run_id"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Deterministic)
	assert.True(t, resp.Data.SameSpec)
	assert.Nil(t, resp.Data.Divergence)
	assert.Equal(t, "run-a", resp.Data.Left.ID)
	assert.NotEqual(t, "run-a", resp.RunID)
	assert.Equal(t, resp.RunID, resp.Data.Right.ID)
	assert.Equal(t, "replay of run-a", resp.Data.Right.Label)
	assert.Equal(t, resp.Data.Left.Events, resp.Data.Right.Events)
}

func TestReplay_CompareDivergingRuns(t *testing.T) {
	db := journal(t)

	out, err := replayCmd(t, "text", "--db", db, "run-a", "run-b")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Warning: runs were recorded from different descriptions")
	assert.Contains(t, out, "✗ Runs diverge at seq 1")
	assert.Contains(t, out, "left:  propagate source=$:title")
}

func TestReplay_CompareDivergingRunsJSON(t *testing.T) {
	db := journal(t)

	out, err := replayCmd(t, "json", "--db", db, "run-a", "run-b")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_DETERMINISM", resp.Error.Code)
}

func TestReplay_Errors(t *testing.T) {
	db := journal(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.WriteRun(t.Context(), store.Run{ID: "bare", SpecHash: "h"}))
	require.NoError(t, st.Close())

	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"unknown run", []string{"--db", db, "nope"}, "Error [E005]"},
		{"unknown second run", []string{"--db", db, "run-a", "nope"}, "Error [E005]"},
		{"no spec path", []string{"--db", db, "bare"}, "no recorded spec path"},
		{"missing database", []string{"--db", filepath.Join(t.TempDir(), "absent.db"), "run-a"}, "database not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := replayCmd(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.wantMsg)
		})
	}
}
