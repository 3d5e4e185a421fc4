package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vdb/internal/harness"
	"github.com/roach88/vdb/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	SpecsDir  string // base directory for relative spec paths
	GoldenDir string
	Database  string
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	RunID  string   `json:"run_id,omitempty"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "missing"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario.yaml|scenarios-dir>",
		Short: "Run binding scenarios",
		Long: `Run YAML binding scenarios through the harness.

Each scenario compiles its binding description, activates it over in-memory
adapters, applies its steps and checks its expectations and trace
assertions. With a golden directory (--golden-dir or golden_dir in the
config) the trace snapshot of every scenario is compared with
<golden-dir>/<name>.golden; --update rewrites those files.

With --db every scenario is journaled to the trace database under its
run_id, or its name when it sets none. A run id already present in the
database is not rewritten.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  vdb test ./testdata/scenarios
  vdb test ./testdata/scenarios --filter "list_*"
  vdb test ./testdata/scenarios --golden-dir ./testdata/golden --update
  vdb test ./testdata/scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.SpecsDir, "specs", "", "resolve relative spec paths against this directory")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden snapshot directory (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal scenario runs to this SQLite database")

	return cmd
}

func runTests(opts *TestOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	files, err := harness.FindScenarios(path)
	var notFound *harness.ScenarioNotFoundError
	if errors.As(err, &notFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScanError, fmt.Sprintf("failed to find scenarios: %v", err), nil)
	}
	if files, err = filterScenarios(files, opts.Filter); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
	}

	if opts.Update && opts.goldenDir() == "" {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, "--update needs a golden directory (--golden-dir or golden_dir in the config)", nil)
	}

	var st *store.Store
	if db := opts.database(opts.Database); db != "" {
		if st, err = store.Open(db); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("opening database: %v", err), nil)
		}
		defer st.Close()
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := runScenario(opts, st, file, cmd)
		if formatter.Format != "json" {
			writeScenarioResult(formatter.Writer, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter.Writer, result)
}

// filterScenarios keeps the files whose name without extension matches the
// glob pattern. An empty pattern keeps everything.
func filterScenarios(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out = append(out, f)
		}
	}
	return out, nil
}

// runScenario loads, executes and golden-checks a single scenario.
func runScenario(opts *TestOptions, st *store.Store, file string, cmd *cobra.Command) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), Path: file}

	var scenario *harness.Scenario
	var err error
	if opts.SpecsDir != "" {
		scenario, err = harness.LoadScenarioWithBasePath(file, opts.SpecsDir)
	} else {
		scenario, err = harness.LoadScenario(file)
	}
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = scenario.Name

	var result *harness.Result
	if st != nil {
		if scenario.RunID == "" {
			scenario.RunID = scenario.Name
		}
		result, err = harness.RunWithStore(commandContext(cmd), st, scenario, harness.WithLogger(opts.logger()))
	} else {
		result, err = harness.Run(scenario, harness.WithLogger(opts.logger()))
	}
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.RunID = result.RunID
	sr.Errors = result.Errors
	sr.Pass = result.Pass

	if dir := opts.goldenDir(); dir != "" {
		status, err := checkGolden(dir, scenario.Name, result, opts.Update)
		sr.Golden = status
		if err != nil {
			sr.Errors = append(sr.Errors, err.Error())
			sr.Pass = false
		}
	}
	return sr
}

func (o *TestOptions) goldenDir() string {
	if o.GoldenDir != "" {
		return o.GoldenDir
	}
	return o.Config.GoldenDir
}

// goldenFilePath returns the golden snapshot path of a scenario.
func goldenFilePath(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

// checkGolden compares the snapshot of result with its golden file, or
// rewrites the file when update is set. A missing golden file is not an
// error.
func checkGolden(dir, name string, result *harness.Result, update bool) (string, error) {
	snapshot := harness.TraceSnapshot{
		ScenarioName: name,
		RunID:        result.RunID,
		Render:       result.Render,
		Trace:        result.Trace,
	}
	data, err := snapshot.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal trace: %w", err)
	}

	path := goldenFilePath(dir, name)
	if update {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write golden file: %w", err)
		}
		return "updated", nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "missing", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return "mismatch", fmt.Errorf("trace does not match golden file %s (run with --update to regenerate)", path)
	}
	return "match", nil
}

func writeScenarioResult(w io.Writer, sr ScenarioResult) {
	status := "✓"
	if !sr.Pass {
		status = "✗"
	}
	suffix := ""
	if sr.Golden == "updated" {
		suffix = " (golden updated)"
	}
	fmt.Fprintf(w, "%s %s%s\n", status, sr.Name, suffix)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := formatter.encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(w io.Writer, result TestResult) error {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
