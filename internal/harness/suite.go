package harness

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a requested scenario path doesn't
// exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// FindScenarios expands path into scenario files. A file is returned as is;
// a directory is walked for *.yaml and *.yml files, sorted.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	paths := []string{}
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find scenarios in %s: %w", path, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// SuiteResult summarizes a batch of scenario runs.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents one scenario that failed to load, run or pass.
type ScenarioFailure struct {
	Name         string `json:"name,omitempty"`
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// RunSuite loads and runs every scenario file in paths.
// Failures are collected; an error is returned only for misuse.
//
// For each path:
// 1. Load the scenario, resolving its spec relative to the file
// 2. Run it via harness.Run
// 3. Record pass or failure
func RunSuite(paths []string, opts ...Option) (*SuiteResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios to run")
	}

	result := &SuiteResult{}
	for _, path := range paths {
		result.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail("", path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := Run(scenario, opts...)
		if err != nil {
			result.fail(scenario.Name, path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !runResult.Pass {
			result.fail(scenario.Name, path, fmt.Sprintf("scenario checks failed: %s", strings.Join(runResult.Errors, "; ")))
			continue
		}

		result.Passed++
	}

	return result, nil
}

func (r *SuiteResult) fail(name, path, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Name: name, ScenarioPath: path, Error: msg})
}
