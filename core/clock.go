package core

import (
	"sync"
	"time"
)

// Clock supplies the timestamp every transaction is evaluated at.
type Clock interface {
	Now() int64
}

// MonotonicClock reads wall-clock seconds but never goes backwards.
type MonotonicClock struct {
	mu     sync.Mutex
	last   int64
	source func() time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{source: time.Now}
}

func (c *MonotonicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.source().Unix()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

func NewManualClock(start int64) *ManualClock { return &ManualClock{now: start} }

func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now += int64(d / time.Second)
	c.mu.Unlock()
}

// Set moves the clock to ts unless that would move it backwards.
func (c *ManualClock) Set(ts int64) {
	c.mu.Lock()
	if ts > c.now {
		c.now = ts
	}
	c.mu.Unlock()
}
