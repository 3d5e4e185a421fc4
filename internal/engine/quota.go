package engine

import (
	"fmt"
)

// DefaultMaxDepth is the default bound on nested propagation.
//
// Propagation is re-entrant: a sink write may notify observers that
// propagate again on the same stack. The equality short-circuit in the
// scope store ends idempotent loops, but a pair of bindings that keep
// producing new values would recurse forever. The depth guard turns that
// into an error.
const DefaultMaxDepth = 256

// depthGuard tracks how deeply propagation calls are nested.
type depthGuard struct {
	max     int
	current int
}

func newDepthGuard(max int) *depthGuard {
	return &depthGuard{max: max}
}

// Enter increments the depth and fails once it exceeds the limit. Every
// successful Enter must be paired with Leave.
func (g *depthGuard) Enter(what string) error {
	if g.max > 0 && g.current >= g.max {
		return &Error{
			Code:    ErrCodeDepthExceeded,
			Message: fmt.Sprintf("propagation nested deeper than %d", g.max),
			ID:      what,
			Details: map[string]string{"max_depth": fmt.Sprintf("%d", g.max)},
		}
	}
	g.current++
	return nil
}

// Leave decrements the depth.
func (g *depthGuard) Leave() {
	g.current--
}

// Current returns the current nesting depth.
func (g *depthGuard) Current() int {
	return g.current
}
