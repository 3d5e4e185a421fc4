package store

import (
	"context"
	"fmt"

	"github.com/roach88/vdb/internal/engine"
)

// Run is the header of one recorded binding run.
type Run struct {
	ID       string
	SpecHash string
	Label    string
	Options  map[string]string

	// Events is filled by reads; writes ignore it.
	Events int
}

// WriteRun inserts a run header. Uses ON CONFLICT(id) DO NOTHING for
// idempotency - re-recording a run id is silently ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("write run: empty run id")
	}
	optsJSON, err := marshalOptions(run.Options)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, spec_hash, label, options)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.SpecHash, run.Label, optsJSON)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEvent appends one trace event. The run must have been written first
// (foreign key constraint). A second event with the same (run_id, seq) is
// silently ignored.
func (s *Store) WriteEvent(ctx context.Context, e engine.TraceEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, kind, source, sink, key, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		e.RunID,
		e.Seq,
		string(e.Kind),
		e.Source,
		e.Sink,
		e.Key,
		e.Value,
	)
	if err != nil {
		return fmt.Errorf("write event %d: %w", e.Seq, err)
	}
	return nil
}

// Tracer returns an engine.Tracer that journals every event under ctx.
func (s *Store) Tracer(ctx context.Context) engine.Tracer {
	return engine.TracerFunc(func(e engine.TraceEvent) error {
		return s.WriteEvent(ctx, e)
	})
}
