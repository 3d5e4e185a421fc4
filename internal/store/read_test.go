package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vdb/internal/engine"
)

func seedRun(t *testing.T, s *Store, id string, events ...engine.TraceEvent) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, Run{ID: id, SpecHash: "hash-" + id}))
	for _, e := range events {
		e.RunID = id
		require.NoError(t, s.WriteEvent(ctx, e))
	}
}

func TestReadEvents_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	seedRun(t, s, "run-1",
		createTestEvent("", 3, "c", "", ""),
		createTestEvent("", 1, "a", "", ""),
		createTestEvent("", 2, "b", "", ""),
	)

	events, err := s.ReadEvents(context.Background(), Filter{RunID: "run-1"})
	require.NoError(t, err)
	var sources []string
	for _, e := range events {
		sources = append(sources, e.Source)
	}
	assert.Equal(t, []string{"a", "b", "c"}, sources)
}

func TestReadEvents_Filters(t *testing.T) {
	s := createTestStore(t)
	seedRun(t, s, "run-1",
		engine.TraceEvent{Seq: 1, Kind: engine.TracePropagate, Source: "$:items", Sink: "@:items"},
		engine.TraceEvent{Seq: 2, Kind: engine.TraceAdd, Source: "items", Key: "0"},
		engine.TraceEvent{Seq: 3, Kind: engine.TracePropagate, Source: "@:item", Sink: "text"},
		engine.TraceEvent{Seq: 4, Kind: engine.TraceRemove, Source: "items", Key: "0"},
	)
	seedRun(t, s, "run-2",
		engine.TraceEvent{Seq: 1, Kind: engine.TraceAdd, Source: "items", Key: "0"},
	)
	ctx := context.Background()

	tests := []struct {
		name string
		f    Filter
		seqs []int64
	}{
		{"all", Filter{RunID: "run-1"}, []int64{1, 2, 3, 4}},
		{"kinds", Filter{RunID: "run-1", Kinds: []engine.TraceKind{engine.TraceAdd, engine.TraceRemove}}, []int64{2, 4}},
		{"source", Filter{RunID: "run-1", Source: "items"}, []int64{2, 4}},
		{"sink", Filter{RunID: "run-1", Sink: "text"}, []int64{3}},
		{"combined", Filter{RunID: "run-1", Kinds: []engine.TraceKind{engine.TracePropagate}, Source: "@:item"}, []int64{3}},
		{"other run", Filter{RunID: "run-2"}, []int64{1}},
		{"no match", Filter{RunID: "run-1", Sink: "nope"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := s.ReadEvents(ctx, tt.f)
			require.NoError(t, err)
			seqs := []int64{}
			for _, e := range events {
				seqs = append(seqs, e.Seq)
				assert.Equal(t, tt.f.RunID, e.RunID)
			}
			assert.Equal(t, tt.seqs, seqs)
		})
	}
}

func TestReadEvents_RequiresRunID(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadEvents(context.Background(), Filter{})
	assert.Error(t, err)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	seedRun(t, s, "0192-b", createTestEvent("", 1, "a", "b", ""))
	seedRun(t, s, "0192-a")

	runs, err = s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "0192-a", runs[0].ID)
	assert.Equal(t, 0, runs[0].Events)
	assert.Equal(t, 1, runs[1].Events)
	assert.Equal(t, "hash-0192-b", runs[1].SpecHash)
	assert.Equal(t, map[string]string{}, runs[1].Options)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0192-b", latest.ID)
}
