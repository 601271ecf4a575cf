// Package rtc provides the device time source: a settable software clock,
// optionally kept in step with a battery-backed DS3231 on the I2C bus.
package rtc

import (
	"sync"
	"time"
)

// Clock is the time source consumed by the scheduler, the command
// dispatcher and the retrieval window.
type Clock interface {
	Now() time.Time
	SetTime(t time.Time) error
}

// SystemClock derives time from a settable base plus the process monotonic
// clock, so readings never move backwards between set-time operations.
type SystemClock struct {
	mu   sync.Mutex
	base time.Time
	mark time.Time
}

func NewSystemClock() *SystemClock {
	now := time.Now()
	return &SystemClock{base: now.UTC(), mark: now}
}

func (c *SystemClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(time.Since(c.mark))
}

func (c *SystemClock) SetTime(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = t.UTC()
	c.mark = time.Now()
	return nil
}
