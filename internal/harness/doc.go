// Package harness runs scripted scenarios against a binding.
//
// The harness compiles a CUE binding description, activates it over the
// in-memory adapters of package testutil, applies scripted steps and checks
// the resulting view, scope, model and socket state. Every run is journaled
// into an in-memory SQLite store; the trace is read back from the journal
// for assertions and golden comparison.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	spec: ../specs/list.cue
//	model: {items: [a, b]}
//	run_id: fixed-run
//	steps:
//	  - set_model: {path: items.2, value: c}
//	  - set_view: {node: name, adapter: value, value: bob}
//	  - set_scope: {id: items, value: []}
//	  - pause: true
//	  - resume: true
//	  - mount: true
//	    expect:
//	      sockets: {row: 3}
//	expect:
//	  render: '<ul id="list"><!--items--></ul>'
//	  scope: {items: []}
//	  model: {items: []}
//	assertions:
//	  - type: trace_count
//	    kind: add
//	    count: 3
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: an event matches the kind and every given field
//   - trace_order: kinds appear in order, gaps allowed
//   - trace_count: exactly N events match the kind and fields
//
// # Deterministic Testing
//
// Run ids are fixed (scenario.run_id or DefaultRunID) and trace seq numbers
// come from the binding's own logical clock, so identical scenarios produce
// identical traces for golden snapshot comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/list_append.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
