package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every reading.
//
// The first call to Now() returns the start time; each later call returns
// the previous reading plus step. Two experiments started in sequence
// therefore always get distinct, ordered timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	reads int64
}

// DefaultStart is the first reading of clocks built by NewDeterministicClock.
var DefaultStart = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

// NewDeterministicClock creates a clock starting at DefaultStart that
// advances one second per reading.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultStart, time.Second)
}

// NewDeterministicClockAt creates a clock with an explicit start and step.
func NewDeterministicClockAt(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start, step: step}
}

// Now returns the next reading. Its signature matches time.Now so the
// method value can be injected wherever a clock function is accepted.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.reads) * c.step)
	c.reads++
	return t
}

// Peek returns the reading the next Now() call will produce.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.reads) * c.step)
}

// Reads returns how many times Now() has been called.
func (c *DeterministicClock) Reads() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Reset rewinds the clock so the next Now() returns the start time again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads = 0
}
