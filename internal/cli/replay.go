package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/store"
	"github.com/roach88/vdb/internal/value"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string

	// RunIDGenerator allows overriding the id of the replayed run (for
	// testing). If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// ReplayResult is the comparison of two journaled runs.
type ReplayResult struct {
	Left          RunSummary         `json:"left"`
	Right         RunSummary         `json:"right"`
	SameSpec      bool               `json:"same_spec"`
	Deterministic bool               `json:"deterministic"`
	Divergence    *DivergenceSummary `json:"divergence,omitempty"`
}

// DivergenceSummary is the first event where two runs disagree. A nil side
// means that run ended first.
type DivergenceSummary struct {
	Seq   int64       `json:"seq"`
	Left  *TraceEntry `json:"left,omitempty"`
	Right *TraceEntry `json:"right,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <run-id> [other-run-id]",
		Short: "Re-run a journaled binding and verify determinism",
		Long: `Verify that a binding run is reproducible.

With one run id the recorded description is compiled again from the path
stored with the run, executed with the same model, prefix and mount
setting under a new run id, and the two event streams are compared. With
two run ids the recorded runs are compared directly. Run ids are ignored
when comparing events; every other field must match at every sequence
number.

Exit codes:
  0 - The runs are identical
  1 - The runs diverge
  2 - Command error (database not found, unknown run, etc.)

Examples:
  vdb replay --db ./vdb.db 0190...
  vdb replay --db ./vdb.db 0190... 0191... --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (default from config)")

	return cmd
}

func runReplay(opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	st, err := openJournal(opts.database(opts.Database))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	defer st.Close()

	left := args[0]
	right := ""
	if len(args) == 2 {
		right = args[1]
	} else {
		right, err = rerun(opts, st, left, cmd)
		if err != nil {
			var exitErr *ExitError
			if errors.As(err, &exitErr) {
				return err
			}
			return formatter.Fail(ExitCommandError, ErrCodeBuildFailed, err.Error(), nil)
		}
	}

	cmp, err := st.CompareRuns(ctx, left, right)
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	return outputReplay(formatter, replayResult(cmp))
}

// rerun executes the description recorded with runID again and returns the
// id of the new run.
func rerun(opts *ReplayOptions, st *store.Store, runID string, cmd *cobra.Command) (string, error) {
	ctx := commandContext(cmd)
	formatter := opts.formatter(cmd)

	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return "", formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if err != nil {
		return "", err
	}

	path := run.Options["spec"]
	if path == "" {
		return "", formatter.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("run %s has no recorded spec path; pass two run ids to compare recorded runs", runID), nil)
	}
	spec, err := LoadSpec(path)
	if err != nil {
		return "", err
	}

	model := spec.Description.Model
	if modelPath := run.Options["model"]; modelPath != "" {
		data, err := os.ReadFile(modelPath)
		if err != nil {
			return "", fmt.Errorf("reading model: %w", err)
		}
		if model, err = value.ParseJSON(data); err != nil {
			return "", fmt.Errorf("parsing model: %w", err)
		}
	}

	gen := opts.RunIDGenerator
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	prefix := run.Options["prefix"]
	if prefix == "" {
		prefix = engine.DefaultPrefix
	}

	replayed, err := executeRun(ctx, runParams{
		Spec:      spec,
		Model:     model,
		ModelPath: run.Options["model"],
		RunID:     gen.Generate(),
		Label:     "replay of " + runID,
		Prefix:    prefix,
		Mount:     run.Options["mount"] != "false",
		Store:     st,
		Logger:    opts.logger(),
	})
	if err != nil {
		return "", err
	}
	formatter.VerboseLog("Replayed %s as %s (%d events)", runID, replayed.RunID, replayed.Events)
	return replayed.RunID, nil
}

func replayResult(cmp store.Comparison) ReplayResult {
	result := ReplayResult{
		Left:          summarizeRun(cmp.Left),
		Right:         summarizeRun(cmp.Right),
		SameSpec:      cmp.SameSpec,
		Deterministic: cmp.Deterministic,
	}
	if d := cmp.Divergence; d != nil {
		result.Divergence = &DivergenceSummary{Seq: d.Seq}
		if d.Left != nil {
			e := traceEntries([]engine.TraceEvent{*d.Left})[0]
			result.Divergence.Left = &e
		}
		if d.Right != nil {
			e := traceEntries([]engine.TraceEvent{*d.Right})[0]
			result.Divergence.Right = &e
		}
	}
	return result
}

// outputReplay prints the comparison. Diverging runs exit with code 1.
func outputReplay(formatter *OutputFormatter, result ReplayResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result, RunID: result.Right.ID}
		if !result.Deterministic {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    "E_DETERMINISM",
				Message: "determinism verification failed",
			}
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
	} else {
		writeReplayText(formatter.Writer, result)
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func writeReplayText(w io.Writer, result ReplayResult) {
	fmt.Fprintf(w, "Left:  %s (%d events)\n", result.Left.ID, result.Left.Events)
	fmt.Fprintf(w, "Right: %s (%d events)\n", result.Right.ID, result.Right.Events)
	if !result.SameSpec {
		fmt.Fprintln(w, "  Warning: runs were recorded from different descriptions")
	}
	fmt.Fprintln(w)

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Runs are identical")
		return
	}

	d := result.Divergence
	fmt.Fprintf(w, "✗ Runs diverge at seq %d\n", d.Seq)
	fmt.Fprintf(w, "  left:  %s\n", entryOrEnd(d.Left))
	fmt.Fprintf(w, "  right: %s\n", entryOrEnd(d.Right))
}

func entryOrEnd(e *TraceEntry) string {
	if e == nil {
		return "(end of run)"
	}
	return formatEntry(*e)
}
