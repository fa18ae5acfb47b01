package identitytest

import (
	"sync"
	"time"
)

// Clock is a manually advanced clock shared between the fake server and the code under test.
type Clock struct {
	lock sync.Mutex
	now  time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}
