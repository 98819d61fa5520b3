package clock

import (
	"sync/atomic"
	"time"
)

// Clock provides time operations that can be mocked for testing
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// OffsetClock follows a remote authoritative clock by applying the offset
// observed in the last sync to a local clock
type OffsetClock struct {
	local  Clock
	offset atomic.Int64 // nanoseconds
}

// NewOffsetClock creates an OffsetClock over the given local clock
func NewOffsetClock(local Clock) *OffsetClock {
	return &OffsetClock{local: local}
}

// Now returns the estimated authoritative time
func (c *OffsetClock) Now() time.Time {
	return c.local.Now().Add(time.Duration(c.offset.Load()))
}

// Sync records a sample of the authoritative time
func (c *OffsetClock) Sync(authoritative time.Time) {
	c.offset.Store(int64(authoritative.Sub(c.local.Now())))
}

// Offset returns the current offset from the local clock
func (c *OffsetClock) Offset() time.Duration {
	return time.Duration(c.offset.Load())
}
