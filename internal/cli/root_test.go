package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "vdb", cmd.Use)
	assert.Contains(t, cmd.Long, "data bindings")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "run", "diff", "trace", "replay", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"compile", []string{"output"}},
		{"validate", []string{"prefix"}},
		{"run", []string{"db", "model", "run-id", "label", "prefix", "no-mount", "trace"}},
		{"trace", []string{"db", "run", "latest", "kind", "source", "sink"}},
		{"replay", []string{"db"}},
		{"test", []string{"update", "filter", "specs", "golden-dir", "db"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)
			for _, name := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(name), "flag --%s", name)
			}
		})
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, "--format", "invalid", "compile", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFileSetsFormat(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "vdb.toml", "format = \"json\"\n")

	out, err := execute(t, "--config", cfg, "compile", titleSpec)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestFormatFlagOverridesConfig(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "vdb.toml", "format = \"json\"\n")

	out, err := execute(t, "--config", cfg, "--format", "text", "compile", titleSpec)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled 1 spec(s)")
}

func TestInvalidConfigFile(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "vdb.toml", "colour = \"red\"\n")

	_, err := execute(t, "--config", cfg, "compile", titleSpec)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown keys colour")
}

func TestConfigDatabaseUsedByRun(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "vdb.db")
	cfg := writeFile(t, dir, "vdb.toml", "db = \""+db+"\"\n")

	_, err := execute(t, "--config", cfg, "run", "--run-id", "r1", titleSpec)
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "trace")
	require.NoError(t, err)
	assert.Contains(t, out, "r1")
}
