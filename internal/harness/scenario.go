package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vdb/internal/engine"
)

// Scenario defines a scripted binding run.
// A scenario compiles one binding description, activates it against the
// in-memory adapters, applies its steps and checks the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Spec is the path to the CUE binding description.
	// Relative paths are resolved against the scenario file location.
	Spec string `yaml:"spec"`

	// Model replaces the description's model when set.
	Model any `yaml:"model,omitempty"`

	// RunID is the fixed run id stamped on trace events.
	// If empty, DefaultRunID is used so golden traces stay stable.
	RunID string `yaml:"run_id,omitempty"`

	// Prefix overrides the scope namespace (default "@").
	Prefix string `yaml:"prefix,omitempty"`

	// Steps run in order after activation.
	Steps []Step `yaml:"steps"`

	// Expect is checked after the last step.
	Expect *Expectation `yaml:"expect,omitempty"`

	// Assertions validate the recorded trace.
	// Supported types: trace_contains, trace_order, trace_count
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is a single scripted action. Exactly one action field is set.
type Step struct {
	SetModel *SetModel `yaml:"set_model,omitempty"`
	SetScope *SetScope `yaml:"set_scope,omitempty"`
	SetView  *SetView  `yaml:"set_view,omitempty"`
	Pause    bool      `yaml:"pause,omitempty"`
	Resume   bool      `yaml:"resume,omitempty"`
	Mount    bool      `yaml:"mount,omitempty"`
	Unmount  bool      `yaml:"unmount,omitempty"`

	// Expect is checked right after this step.
	Expect *Expectation `yaml:"expect,omitempty"`
}

// SetModel writes a model value through the model adapter, notifying
// observers of related paths. An empty path replaces the whole model.
type SetModel struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// SetScope writes a whole scope slot.
type SetScope struct {
	ID    string `yaml:"id"`
	Value any    `yaml:"value"`
}

// SetView simulates a user edit of a view element.
type SetView struct {
	// Node is the element id. Repeated regions clone ids; Nth picks the
	// occurrence in document order.
	Node string `yaml:"node"`
	Nth  int    `yaml:"nth,omitempty"`

	// Adapter is the view adapter name (default "value").
	Adapter string `yaml:"adapter,omitempty"`
	Path    string `yaml:"path,omitempty"`
	Value   any    `yaml:"value"`
}

// Expectation describes observable state. Unset fields are not checked.
type Expectation struct {
	// Render is the rendered root template.
	Render string `yaml:"render,omitempty"`

	// Scope maps root scope ids to their dereferenced values.
	Scope map[string]any `yaml:"scope,omitempty"`

	// Model is the whole model tree.
	Model any `yaml:"model,omitempty"`

	// Sockets maps socket ids to their live instance counts.
	Sockets map[string]int `yaml:"sockets,omitempty"`
}

// Assertion validates the recorded trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event matches kind and every non-empty field
	// - "trace_order": kinds appear as a subsequence of the trace
	// - "trace_count": exactly Count events match kind and fields
	Type string `yaml:"type"`

	// Kind is the trace event kind (used by trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Source, Sink, Key and Value narrow the match when non-empty.
	Source string `yaml:"source,omitempty"`
	Sink   string `yaml:"sink,omitempty"`
	Key    string `yaml:"key,omitempty"`
	Value  string `yaml:"value,omitempty"`

	// Count is the expected number of matches (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected kind order (used by trace_order).
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// DefaultRunID is the run id of scenarios that do not name one.
const DefaultRunID = "scenario-run"

var traceKinds = map[string]bool{
	string(engine.TracePropagate):    true,
	string(engine.TraceAdd):          true,
	string(engine.TraceRemove):       true,
	string(engine.TraceReplace):      true,
	string(engine.TraceSocketInsert): true,
	string(engine.TraceSocketRemove): true,
}

// LoadScenario reads and parses a scenario YAML file, resolving the spec
// path against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative spec path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Spec != "" && !filepath.IsAbs(scenario.Spec) && basePath != "" {
		scenario.Spec = filepath.Join(basePath, scenario.Spec)
	}

	if _, err := os.Stat(scenario.Spec); os.IsNotExist(err) {
		return nil, fmt.Errorf("invalid scenario: spec file not found: %s", scenario.Spec)
	}

	return scenario, nil
}

// ParseScenario decodes scenario YAML with strict field validation. The
// spec path is left as written and not checked for existence.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Spec == "" {
		return fmt.Errorf("spec is required")
	}

	if len(s.Steps) == 0 && s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("scenario checks nothing: add steps, expect or assertions")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that exactly one action is set.
func validateStep(index int, s *Step) error {
	actions := 0
	for _, set := range []bool{
		s.SetModel != nil, s.SetScope != nil, s.SetView != nil,
		s.Pause, s.Resume, s.Mount, s.Unmount,
	} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, actions)
	}

	if s.SetScope != nil && s.SetScope.ID == "" {
		return fmt.Errorf("steps[%d]: set_scope.id is required", index)
	}
	if s.SetView != nil {
		if s.SetView.Node == "" {
			return fmt.Errorf("steps[%d]: set_view.node is required", index)
		}
		if s.SetView.Nth < 0 {
			return fmt.Errorf("steps[%d]: set_view.nth must be non-negative", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for %s", index, a.Type)
		}
		if !traceKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown trace kind %q", index, a.Kind)
		}
		if a.Type == AssertTraceCount && a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
		for _, k := range a.Kinds {
			if !traceKinds[k] {
				return fmt.Errorf("assertions[%d]: unknown trace kind %q", index, k)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
