package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/vdb/internal/engine"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEvent creates a propagate event with minimal required fields.
func createTestEvent(runID string, seq int64, source, sink, value string) engine.TraceEvent {
	return engine.TraceEvent{
		Seq:    seq,
		RunID:  runID,
		Kind:   engine.TracePropagate,
		Source: source,
		Sink:   sink,
		Value:  value,
	}
}
