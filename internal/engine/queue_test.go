package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropagationQueue_FIFO(t *testing.T) {
	q := newPropagationQueue()
	a, b, c := &Descriptor{}, &Descriptor{}, &Descriptor{}

	assert.True(t, q.Enqueue(b))
	assert.True(t, q.Enqueue(a))
	assert.True(t, q.Enqueue(c))

	got := q.Drain()
	assert.Equal(t, []*Descriptor{b, a, c}, got)
	assert.Equal(t, 0, q.Len())
}

func TestPropagationQueue_Deduplicates(t *testing.T) {
	q := newPropagationQueue()
	a := &Descriptor{}

	assert.True(t, q.Enqueue(a))
	assert.False(t, q.Enqueue(a))
	assert.Equal(t, 1, q.Len())

	q.Drain()
	assert.True(t, q.Enqueue(a), "drained descriptors may be queued again")
}

func TestPropagationQueue_Forget(t *testing.T) {
	q := newPropagationQueue()
	a, b := &Descriptor{}, &Descriptor{}
	q.Enqueue(a)
	q.Enqueue(b)

	q.Forget(a)
	q.Forget(&Descriptor{})
	assert.Equal(t, []*Descriptor{b}, q.Drain())
}
