package engine

import (
	"fmt"

	"github.com/roach88/vdb/internal/value"
)

// TraceKind identifies what a trace event records.
type TraceKind string

const (
	TracePropagate    TraceKind = "propagate"
	TraceAdd          TraceKind = "add"
	TraceRemove       TraceKind = "remove"
	TraceReplace      TraceKind = "replace"
	TraceSocketInsert TraceKind = "socket-insert"
	TraceSocketRemove TraceKind = "socket-remove"
)

// TraceEvent is one observable step of a binding run. Seq orders events
// within a run.
type TraceEvent struct {
	Seq    int64
	RunID  string
	Kind   TraceKind
	Source string // binding source, or the driving slot for structural events
	Sink   string // binding sink, or the socket id for socket events
	Key    string
	Value  string // canonical JSON
}

// Tracer receives trace events. Implementations must not call back into the
// binding.
type Tracer interface {
	Record(TraceEvent) error
}

type nopTracer struct{}

func (nopTracer) Record(TraceEvent) error { return nil }

// TracerFunc adapts a function to Tracer.
type TracerFunc func(TraceEvent) error

// Record implements Tracer.
func (f TracerFunc) Record(e TraceEvent) error {
	return f(e)
}

func (b *Binding) trace(e TraceEvent) error {
	e.Seq = b.events.Next()
	e.RunID = b.runID
	if err := b.tracer.Record(e); err != nil {
		return fmt.Errorf("trace %s: %w", e.Kind, err)
	}
	return nil
}

// traceText renders v for a trace event. References render as markers.
func traceText(v value.Value) string {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return value.Text(v)
	}
	return string(data)
}

func keyText(k value.Value) string {
	if k == nil {
		return ""
	}
	return value.Text(k)
}
