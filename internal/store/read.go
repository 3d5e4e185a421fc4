package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/vdb/internal/engine"
)

// ErrRunNotFound is returned when a run id has no header row.
var ErrRunNotFound = errors.New("run not found")

// Filter narrows ReadEvents. Zero fields match everything.
type Filter struct {
	RunID  string
	Kinds  []engine.TraceKind
	Source string
	Sink   string
}

// ReadRun returns the header of one run with its event count.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.spec_hash, r.label, r.options,
		       (SELECT COUNT(*) FROM events e WHERE e.run_id = r.id)
		FROM runs r
		WHERE r.id = ?
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns every run header ordered by id. Run ids are UUIDv7, so
// id order is creation order.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.spec_hash, r.label, r.options,
		       (SELECT COUNT(*) FROM events e WHERE e.run_id = r.id)
		FROM runs r
		ORDER BY r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently created run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs ORDER BY id COLLATE BINARY DESC LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return s.ReadRun(ctx, id)
}

// ReadEvents returns the events of a run in seq order.
//
// Returns an empty slice (not nil) if no events match.
func (s *Store) ReadEvents(ctx context.Context, f Filter) ([]engine.TraceEvent, error) {
	if f.RunID == "" {
		return nil, fmt.Errorf("read events: run id is required")
	}

	query := strings.Builder{}
	query.WriteString(`
		SELECT run_id, seq, kind, source, sink, key, value
		FROM events
		WHERE run_id = ?`)
	args := []any{f.RunID}

	if len(f.Kinds) > 0 {
		query.WriteString(" AND kind IN (?" + strings.Repeat(", ?", len(f.Kinds)-1) + ")")
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	if f.Source != "" {
		query.WriteString(" AND source = ?")
		args = append(args, f.Source)
	}
	if f.Sink != "" {
		query.WriteString(" AND sink = ?")
		args = append(args, f.Sink)
	}
	query.WriteString(" ORDER BY seq ASC")

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []engine.TraceEvent{}
	for rows.Next() {
		var e engine.TraceEvent
		var kind string
		if err := rows.Scan(&e.RunID, &e.Seq, &kind, &e.Source, &e.Sink, &e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = engine.TraceKind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var opts string
	if err := sc.Scan(&run.ID, &run.SpecHash, &run.Label, &opts, &run.Events); err != nil {
		return Run{}, err
	}
	parsed, err := unmarshalOptions(opts)
	if err != nil {
		return Run{}, err
	}
	run.Options = parsed
	return run, nil
}
