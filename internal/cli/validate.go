package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vdb/internal/compiler"
	"github.com/roach88/vdb/internal/registry"
	"github.com/roach88/vdb/internal/testutil"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Prefix string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <spec.cue|specs-dir>",
		Short: "Check binding descriptions against the built-in adapters",
		Long: `Validate CUE binding descriptions.

Each description is compiled, then every binding is checked against the
built-in adapter registry: "$" for the model and "text", "value", "attr"
for the view, plus the "trim" connector. Feedback loops between bindings
are reported as warnings; they do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "scope namespace prefix (default from config, else \"@\")")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	specs, loadErrors := LoadSpecs(path, LoadModeCollectAll)
	if len(specs) == 0 && len(loadErrors) == 1 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) && isPathError(loadErr.Code) {
			return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
	}

	result := validateSpecs(specs, opts.prefix(opts.Prefix), testutil.NewEnv(nil).Registry, formatter)
	for _, err := range loadErrors {
		result.Errors = append(result.Errors, loadValidationError(err))
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result, len(specs))
}

// validateSpecs runs the registry checks and the cycle analysis on every
// compiled description.
func validateSpecs(specs []*LoadedSpec, prefix string, reg *registry.Registry, formatter *OutputFormatter) ValidationResult {
	var result ValidationResult
	for _, spec := range specs {
		formatter.VerboseLog("Validating %s", spec.Path)
		for _, e := range compiler.Validate(spec.Description.Tree, reg, prefix) {
			e.Field = spec.Path + ": " + e.Field
			result.Errors = append(result.Errors, e)
		}
		result.Warnings = append(result.Warnings, compiler.AnalyzeCycles(spec.Description.Tree, prefix)...)
	}
	return result
}

func loadValidationError(err error) compiler.ValidationError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return compiler.ValidationError{
			Field:   "load",
			Message: loadErr.Error(),
			Code:    loadErr.Code,
		}
	}
	return compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult, count int) error {
	return formatter.Emit("", result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ All specs valid (%d checked)\n", count)
		writeWarnings(w, result.Warnings)
	})
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		_ = formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		})
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range errs {
		fmt.Fprintf(w, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}
	writeWarnings(w, result.Warnings)

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

func writeWarnings(w io.Writer, warnings []compiler.CycleWarning) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "  %s: %s (%s)\n", warn.Level, warn.Message, strings.Join(warn.Path, " -> "))
	}
}

// ValidateSpecsDir validates every description under path against the
// built-in adapters, using the default scope prefix.
func ValidateSpecsDir(path string) ([]compiler.ValidationError, error) {
	specs, loadErrors := LoadSpecs(path, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	silent := &OutputFormatter{Format: "text", Writer: io.Discard}
	opts := &RootOptions{}
	result := validateSpecs(specs, opts.prefix(""), testutil.NewEnv(nil).Registry, silent)
	return result.Errors, nil
}
