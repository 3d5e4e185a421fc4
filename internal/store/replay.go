package store

import (
	"context"
	"fmt"

	"github.com/roach88/vdb/internal/engine"
)

// Divergence is the first point where two runs disagree.
type Divergence struct {
	Seq   int64
	Left  *engine.TraceEvent // nil when the left run ended first
	Right *engine.TraceEvent // nil when the right run ended first
}

// Comparison is the outcome of comparing two recorded runs.
type Comparison struct {
	Left, Right   Run
	SameSpec      bool
	Deterministic bool        // identical event streams
	Divergence    *Divergence // nil when Deterministic
}

// CompareRuns checks whether two runs produced the same journal. Run ids
// are ignored; every other event field must match at every seq.
func (s *Store) CompareRuns(ctx context.Context, left, right string) (Comparison, error) {
	var cmp Comparison
	var err error

	if cmp.Left, err = s.ReadRun(ctx, left); err != nil {
		return cmp, fmt.Errorf("compare runs: %w", err)
	}
	if cmp.Right, err = s.ReadRun(ctx, right); err != nil {
		return cmp, fmt.Errorf("compare runs: %w", err)
	}
	cmp.SameSpec = cmp.Left.SpecHash == cmp.Right.SpecHash

	a, err := s.ReadEvents(ctx, Filter{RunID: left})
	if err != nil {
		return cmp, fmt.Errorf("compare runs: %w", err)
	}
	b, err := s.ReadEvents(ctx, Filter{RunID: right})
	if err != nil {
		return cmp, fmt.Errorf("compare runs: %w", err)
	}

	cmp.Divergence = firstDivergence(a, b)
	cmp.Deterministic = cmp.Divergence == nil
	return cmp, nil
}

func firstDivergence(a, b []engine.TraceEvent) *Divergence {
	for i := 0; i < max(len(a), len(b)); i++ {
		switch {
		case i >= len(a):
			return &Divergence{Seq: b[i].Seq, Right: &b[i]}
		case i >= len(b):
			return &Divergence{Seq: a[i].Seq, Left: &a[i]}
		case !sameEvent(a[i], b[i]):
			return &Divergence{Seq: a[i].Seq, Left: &a[i], Right: &b[i]}
		}
	}
	return nil
}

func sameEvent(a, b engine.TraceEvent) bool {
	a.RunID, b.RunID = "", ""
	return a == b
}
