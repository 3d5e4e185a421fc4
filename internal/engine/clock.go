package engine

// Clock is a monotonic counter owned by one Binding.
//
// A Binding keeps two clocks: one mints instance-private scope ids, the
// other stamps trace events. Counter lifetime equals the owning binding's
// lifetime; there is no process-wide state.
//
// Clock is not safe for concurrent use. Bindings are single-threaded.
type Clock struct {
	seq int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	return &Clock{seq: start}
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the last value handed out, without incrementing.
func (c *Clock) Current() int64 {
	return c.seq
}
