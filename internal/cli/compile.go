package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/value"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledSpec summarizes one compiled binding description.
type CompiledSpec struct {
	Path     string          `json:"path"`
	Template string          `json:"template"`
	Sockets  []string        `json:"sockets,omitempty"`
	Bindings []string        `json:"bindings,omitempty"`
	Regions  []RegionSummary `json:"regions,omitempty"`
	Model    any             `json:"model,omitempty"`
}

// RegionSummary describes one repeated region of the iteration tree.
type RegionSummary struct {
	Source   string          `json:"source"`
	Entry    string          `json:"entry,omitempty"`
	Key      string          `json:"key,omitempty"`
	Own      []string        `json:"own,omitempty"`
	Template string          `json:"template"`
	Sockets  []string        `json:"sockets,omitempty"`
	Bindings []string        `json:"bindings,omitempty"`
	Regions  []RegionSummary `json:"regions,omitempty"`
}

// CompilationResult holds every compiled description.
type CompilationResult struct {
	Specs []CompiledSpec `json:"specs"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	SpecCount    int
	RegionCount  int
	BindingCount int
	SocketCount  int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <spec.cue|specs-dir>",
		Short: "Compile binding descriptions and print their structure",
		Long: `Compile CUE binding descriptions into templates, iteration trees and
bindings.

Each .cue file is compiled on its own. The result lists the root template,
its bindings and sockets, and every repeated region with its scope names.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	specs, loadErrors := LoadSpecs(path, LoadModeCollectAll)
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{}
	for _, spec := range specs {
		formatter.VerboseLog("Compiled %s", spec.Path)
		result.Specs = append(result.Specs, summarize(spec))
	}
	stats := calculateStats(result)

	if opts.Output != "" {
		if err := writeResultToFile(result, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return formatter.Emit("", result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Compiled %d spec(s): %d region(s), %d binding(s), %d socket(s)\n",
			stats.SpecCount, stats.RegionCount, stats.BindingCount, stats.SocketCount)
		if opts.Output != "" {
			fmt.Fprintf(w, "  Output written to %s\n", opts.Output)
			return
		}
		for _, s := range result.Specs {
			fmt.Fprintf(w, "\n%s\n  template: %s\n", s.Path, s.Template)
			writeLevel(w, "  ", s.Bindings, s.Sockets, s.Regions)
		}
	})
}

func writeLevel(w io.Writer, indent string, bindings, sockets []string, regions []RegionSummary) {
	for _, b := range bindings {
		fmt.Fprintf(w, "%sbinding %s\n", indent, b)
	}
	for _, s := range sockets {
		fmt.Fprintf(w, "%ssocket %s\n", indent, s)
	}
	for _, r := range regions {
		fmt.Fprintf(w, "%sregion %s", indent, r.Source)
		if r.Entry != "" {
			fmt.Fprintf(w, " entry=%s", r.Entry)
		}
		if r.Key != "" {
			fmt.Fprintf(w, " key=%s", r.Key)
		}
		fmt.Fprintf(w, ": %s\n", r.Template)
		writeLevel(w, indent+"  ", r.Bindings, r.Sockets, r.Regions)
	}
}

// summarize flattens a compiled description for output.
func summarize(spec *LoadedSpec) CompiledSpec {
	tree := spec.Description.Tree
	out := CompiledSpec{
		Path:     spec.Path,
		Template: tree.Template.Render(),
		Sockets:  socketIDs(tree),
		Bindings: bindingTexts(tree),
		Regions:  regionSummaries(tree),
	}
	if spec.Description.Model != nil {
		out.Model = value.ToGo(spec.Description.Model)
	}
	return out
}

func regionSummaries(n *engine.Node) []RegionSummary {
	var out []RegionSummary
	for _, child := range n.Children {
		out = append(out, RegionSummary{
			Source:   child.SourceID,
			Entry:    child.EntryID,
			Key:      child.KeyID,
			Own:      child.Own,
			Template: child.Template.Render(),
			Sockets:  socketIDs(child),
			Bindings: bindingTexts(child),
			Regions:  regionSummaries(child),
		})
	}
	return out
}

func socketIDs(n *engine.Node) []string {
	var out []string
	for _, s := range n.Sockets {
		out = append(out, s.ID)
	}
	return out
}

// bindingTexts renders every binding of n as "element: binding".
func bindingTexts(n *engine.Node) []string {
	var out []string
	for _, scope := range n.Spec.All() {
		label := "(root)"
		if scope.Element != nil {
			label = scope.Element.Label()
		}
		for _, b := range scope.Bindings {
			out = append(out, label+": "+b.String())
		}
	}
	return out
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{SpecCount: len(result.Specs)}
	var walk func([]RegionSummary)
	walk = func(regions []RegionSummary) {
		for _, r := range regions {
			stats.RegionCount++
			stats.BindingCount += len(r.Bindings)
			stats.SocketCount += len(r.Sockets)
			walk(r.Regions)
		}
	}
	for _, s := range result.Specs {
		stats.BindingCount += len(s.Bindings)
		stats.SocketCount += len(s.Sockets)
		walk(s.Regions)
	}
	return stats
}

// writeResultToFile writes the compilation result as indented JSON.
func writeResultToFile(result *CompilationResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// outputCompileErrors reports load and compile errors. A path problem is a
// command error; a broken description is a check failure.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	exitCode := ExitFailure
	var details []CLIError
	for _, err := range errs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			details = append(details, CLIError{Code: loadErr.Code, Message: loadErr.Error()})
			if isPathError(loadErr.Code) {
				exitCode = ExitCommandError
			}
			continue
		}
		details = append(details, CLIError{Code: ErrCodeGeneric, Message: err.Error()})
	}

	if formatter.Format == "json" {
		return formatter.Fail(exitCode, details[0].Code, fmt.Sprintf("compilation failed with %d error(s)", len(details)), details)
	}

	fmt.Fprintf(formatter.Writer, "✗ Compilation failed with %d error(s):\n", len(details))
	for _, d := range details {
		fmt.Fprintf(formatter.Writer, "  %s\n", d.Message)
	}
	return NewExitError(exitCode, fmt.Sprintf("compilation failed with %d error(s)", len(details)))
}

func isPathError(code string) bool {
	switch code {
	case ErrCodeNotFound, ErrCodeNoFiles, ErrCodeScanError, ErrCodeLoadFailed:
		return true
	default:
		return false
	}
}
