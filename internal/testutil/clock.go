package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a test clock.
var Epoch = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

// Clock is a thread-safe manual clock for tests.
//
// Each call to Now returns the current instant and then advances it by
// step, so successive calls are strictly increasing when step > 0.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock creates a clock at start that advances by step per reading.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the current instant without advancing.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
