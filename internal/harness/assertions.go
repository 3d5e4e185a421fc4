package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/vdb/internal/engine"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string              // Assertion type for categorization
	Expected string              // Human-readable expected outcome
	Actual   string              // Human-readable actual outcome
	Trace    []engine.TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, formatEvent(event))
	}

	return buf.String()
}

func formatEvent(e engine.TraceEvent) string {
	parts := []string{string(e.Kind)}
	if e.Source != "" {
		parts = append(parts, "source="+e.Source)
	}
	if e.Sink != "" {
		parts = append(parts, "sink="+e.Sink)
	}
	if e.Key != "" {
		parts = append(parts, "key="+e.Key)
	}
	if e.Value != "" {
		parts = append(parts, "value="+e.Value)
	}
	return strings.Join(parts, " ")
}

// describe renders the match criteria of an assertion.
func describe(a Assertion) string {
	return formatEvent(engine.TraceEvent{
		Kind:   engine.TraceKind(a.Kind),
		Source: a.Source,
		Sink:   a.Sink,
		Key:    a.Key,
		Value:  a.Value,
	})
}

// matchEvent reports whether event has the assertion's kind and every
// non-empty field of the assertion (subset match).
func matchEvent(event engine.TraceEvent, a Assertion) bool {
	if string(event.Kind) != a.Kind {
		return false
	}
	for _, f := range []struct{ want, got string }{
		{a.Source, event.Source},
		{a.Sink, event.Sink},
		{a.Key, event.Key},
		{a.Value, event.Value},
	} {
		if f.want != "" && f.want != f.got {
			return false
		}
	}
	return true
}

// assertTraceContains checks if the trace contains an event matching the
// assertion.
func assertTraceContains(trace []engine.TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchEvent(event, assertion) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(assertion),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the kinds appear in the specified order.
// Kinds don't need to be consecutive (intervening events are allowed) and
// may repeat.
func assertTraceOrder(trace []engine.TraceEvent, assertion Assertion) error {
	next := 0
	lastPos := 0
	for i, event := range trace {
		if next == len(assertion.Kinds) {
			break
		}
		if string(event.Kind) == assertion.Kinds[next] {
			next++
			lastPos = i + 1 // 1-indexed for readability
		}
	}

	if next < len(assertion.Kinds) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("kinds in order: %v", assertion.Kinds),
			Actual:   fmt.Sprintf("%s not found after position %d", assertion.Kinds[next], lastPos),
			Trace:    trace,
		}
	}

	return nil
}

// assertTraceCount checks that exactly Count events match the assertion.
func assertTraceCount(trace []engine.TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, assertion) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, describe(assertion)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// EvaluateAssertions evaluates all assertions against the result's trace.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
