package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/value"
)

// GoldenDir is where golden traces live, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the observable outcome of a scenario run.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	RunID        string
	Render       string
	Trace        []engine.TraceEvent
}

// toCanonical converts a TraceSnapshot to a value tree for canonical JSON
// serialization. Event values are embedded as JSON, not as strings.
func (s *TraceSnapshot) toCanonical() value.Map {
	trace := make(value.Seq, len(s.Trace))
	for i, event := range s.Trace {
		m := value.Map{
			"kind": value.String(event.Kind),
			"seq":  value.Int(event.Seq),
		}
		if event.Source != "" {
			m["source"] = value.String(event.Source)
		}
		if event.Sink != "" {
			m["sink"] = value.String(event.Sink)
		}
		if event.Key != "" {
			m["key"] = value.String(event.Key)
		}
		if event.Value != "" {
			if v, err := value.ParseJSON([]byte(event.Value)); err == nil {
				m["value"] = v
			} else {
				m["value"] = value.String(event.Value)
			}
		}
		trace[i] = m
	}

	return value.Map{
		"scenario_name": value.String(s.ScenarioName),
		"run_id":        value.String(s.RunID),
		"render":        value.String(s.Render),
		"trace":         trace,
	}
}

// Marshal renders the snapshot as canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return value.MarshalCanonical(s.toCanonical())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		RunID:        result.RunID,
		Render:       result.Render,
		Trace:        result.Trace,
	}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
