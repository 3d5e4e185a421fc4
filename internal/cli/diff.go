package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/value"
)

// OpEntry is one step of an edit script.
type OpEntry struct {
	Kind     string `json:"kind"`
	Key      any    `json:"key"`
	AfterKey any    `json:"after_key,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// DiffResult holds the edit script turning the old document into the new one.
type DiffResult struct {
	Ops []OpEntry `json:"ops"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old.json> <new.json>",
		Short: "Print the edit script between two JSON documents",
		Long: `Compute the edit script the reconciliation engine applies when a
collection changes from the old document to the new one.

Arrays are aligned by minimum edit distance and produce add, remove and
replace operations on indexes, each valid against the array as mutated by
the previous operations. Objects are compared key by key.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runDiff(opts *RootOptions, oldPath, newPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	oldDoc, err := readJSONDocument(oldPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
	}
	newDoc, err := readJSONDocument(newPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
	}

	ops := engine.Diff(oldDoc, newDoc)
	result := DiffResult{Ops: make([]OpEntry, len(ops))}
	for i, op := range ops {
		result.Ops[i] = OpEntry{
			Kind:     string(op.Kind),
			Key:      value.ToGo(op.Key),
			AfterKey: value.ToGo(op.AfterKey),
			Value:    value.ToGo(op.Value),
		}
	}

	return formatter.Emit("", result, func(w io.Writer) {
		if len(ops) == 0 {
			fmt.Fprintln(w, "No changes")
			return
		}
		for _, op := range ops {
			fmt.Fprintln(w, formatOp(op))
		}
	})
}

func readJSONDocument(path string) (value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	v, err := value.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return v, nil
}

// formatOp renders an op as "kind key [after key] value". An add at the
// front of a collection shows "(first)".
func formatOp(op engine.Op) string {
	s := fmt.Sprintf("%-7s %s", op.Kind, value.Text(op.Key))
	if op.Kind == engine.OpAdd {
		if op.AfterKey == nil || op.AfterKey == value.Int(-1) {
			s += " (first)"
		} else {
			s += " after " + value.Text(op.AfterKey)
		}
	}
	if op.Kind != engine.OpRemove {
		data, err := value.MarshalCanonical(op.Value)
		if err != nil {
			s += " " + value.Text(op.Value)
		} else {
			s += " " + string(data)
		}
	}
	return s
}
