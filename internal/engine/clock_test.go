package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_NewClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current(), "new clock should start at 0")
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(100)
	assert.Equal(t, int64(100), c.Current(), "clock should start at specified value")
	assert.Equal(t, int64(101), c.Next())
}

func TestClock_Next_Incrementing(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(3), c.Next())
	assert.Equal(t, int64(3), c.Current())
}

func TestClock_Next_Unique(t *testing.T) {
	c := NewClock()
	seen := make(map[int64]bool)
	for i := 0; i < 1000; i++ {
		seq := c.Next()
		assert.False(t, seen[seq], "seq %d generated twice", seq)
		seen[seq] = true
	}
}
