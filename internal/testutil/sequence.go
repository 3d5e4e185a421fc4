package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/vdb/internal/value"
)

// Sequence is a resettable monotonic counter shared by the in-memory
// adapters, so writes across adapters can be totally ordered.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Sequence struct {
	mu  sync.Mutex
	seq int64
}

// NewSequence creates a sequence starting at 0. The first Next returns 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next increments and returns the next sequence number.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Current returns the current sequence number without incrementing.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset sets the sequence back to 0.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}

// Write is one adapter write recorded by a Journal.
type Write struct {
	Seq     int64
	Adapter string
	Target  string
	Path    string
	Value   string
}

func (w Write) String() string {
	return fmt.Sprintf("%d %s %s[%s]=%s", w.Seq, w.Adapter, w.Target, w.Path, w.Value)
}

// Journal records every adapter write in sequence order.
type Journal struct {
	mu     sync.Mutex
	seq    *Sequence
	writes []Write
}

// NewJournal creates a journal stamping writes from seq. A nil seq gets a
// private sequence.
func NewJournal(seq *Sequence) *Journal {
	if seq == nil {
		seq = NewSequence()
	}
	return &Journal{seq: seq}
}

func (j *Journal) record(adapter, target string, path value.Path, v value.Value) {
	if j == nil {
		return
	}
	w := Write{
		Seq:     j.seq.Next(),
		Adapter: adapter,
		Target:  target,
		Path:    path.String(),
		Value:   value.Text(v),
	}
	j.mu.Lock()
	j.writes = append(j.writes, w)
	j.mu.Unlock()
}

// Writes returns a copy of the recorded writes.
func (j *Journal) Writes() []Write {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Write(nil), j.writes...)
}

// Reset drops all recorded writes. The sequence keeps counting.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.writes = nil
}

// FixedRunIDGenerator always returns the same run id so golden traces are
// byte-identical across runs.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator returns a generator for id, or "test-run-default"
// when id is empty.
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
