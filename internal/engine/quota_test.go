package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepthGuard_WithinLimit(t *testing.T) {
	g := newDepthGuard(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Enter("x"), "level %d should be allowed", i+1)
	}
	assert.Equal(t, 3, g.Current())

	err := g.Enter("x")
	require.Error(t, err)
	assert.True(t, IsDepthExceededError(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "3", e.Details["max_depth"])

	g.Leave()
	assert.NoError(t, g.Enter("x"))
}

func TestDepthGuard_ZeroDisables(t *testing.T) {
	g := newDepthGuard(0)
	for i := 0; i < 10000; i++ {
		require.NoError(t, g.Enter("x"))
	}
}
