package batch

import "sync/atomic"

// Clock stamps job attempts with a per-batch sequence number. Attempts are
// ordered by seq, never by wall time; a resumed batch continues from the
// last recorded seq.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return NewClockAt(0)
}

// NewClockAt returns a clock whose first Next is last+1.
func NewClockAt(last int64) *Clock {
	c := new(Clock)
	c.last.Store(last)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current returns the last issued seq.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
