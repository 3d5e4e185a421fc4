package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue/token"

	"github.com/roach88/vdb/internal/compiler"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadedSpec is one compiled binding description.
type LoadedSpec struct {
	Path        string
	Source      []byte
	Description *compiler.Description
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Path    string
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpec reads and compiles a single binding description file.
func LoadSpec(path string) (*LoadedSpec, error) {
	src, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("spec file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading spec: %v", err)}
	}

	desc, err := compiler.CompileString(string(src), path)
	if err != nil {
		loadErr := convertCompileError(err)
		loadErr.Path = path
		return nil, loadErr
	}
	return &LoadedSpec{Path: path, Source: src, Description: desc}, nil
}

// LoadSpecs compiles the binding description at path, or every .cue file
// below it when path is a directory. Each file is compiled on its own.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadSpecs(path string, mode LoadMode) ([]*LoadedSpec, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing path: %v", err)}}
	}

	files := []string{path}
	if info.IsDir() {
		files, err = FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(files) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
	}

	var specs []*LoadedSpec
	var errs []error
	for _, file := range files {
		spec, err := LoadSpec(file)
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return specs, errs
			}
			continue
		}
		specs = append(specs, spec)
	}
	return specs, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths in
// lexical order.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // Spec read failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // Binding construction failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeBadInput    = "E008" // Malformed JSON input
	ErrCodeStore       = "E009" // Trace journal error

	// Description errors
	ErrCodeSyntax   = "E200" // CUE syntax or evaluation error
	ErrCodeTemplate = "E201" // Malformed template node
	ErrCodeRegion   = "E202" // Malformed region
	ErrCodeNode     = "E203" // Unresolved node reference
	ErrCodeBinding  = "E204" // Malformed binding
	ErrCodeModel    = "E205" // Unsupported model value
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "cue":
		return ErrCodeSyntax
	case "template", "tag", "text", "id":
		return ErrCodeTemplate
	case "source", "anchor", "entry", "key", "own":
		return ErrCodeRegion
	case "node":
		return ErrCodeNode
	case "binding", "op", "connectors", "left", "right", "ns", "path":
		return ErrCodeBinding
	case "model":
		return ErrCodeModel
	default:
		return ErrCodeGeneric
	}
}
