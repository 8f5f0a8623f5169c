// Package workflowtest provides a manually advanced clock for poll loop tests.
package workflowtest

import (
	"sync"
	"time"

	"github.com/katistix/cloudmigrate/internal/workflow"
)

// FakeClock fires timers only when Advance moves its virtual time forward.
// Callbacks run synchronously on the goroutine calling Advance.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *FakeClock
	seq      int
	due      time.Duration
	interval time.Duration
	fn       func()
	stopped  bool
}

func (t *fakeTimer) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

// NewFakeClock returns a clock at virtual time zero.
func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

var _ workflow.Clock = (*FakeClock)(nil)

func (c *FakeClock) Every(interval time.Duration, fn func()) workflow.Timer {
	return c.add(interval, interval, fn)
}

func (c *FakeClock) After(delay time.Duration, fn func()) workflow.Timer {
	return c.add(delay, 0, fn)
}

func (c *FakeClock) add(delay, interval time.Duration, fn func()) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, seq: c.seq, due: c.now + delay, interval: interval, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves virtual time forward by d, firing every timer that comes due
// in order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	for {
		next := c.nextDueLocked(target)
		if next == nil {
			break
		}
		c.now = next.due
		if next.interval > 0 {
			next.due += next.interval
		} else {
			next.stopped = true
		}
		fn := next.fn
		c.mu.Unlock()
		fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *FakeClock) nextDueLocked(limit time.Duration) *fakeTimer {
	var next *fakeTimer
	for _, t := range c.timers {
		if t.stopped || t.due > limit {
			continue
		}
		if next == nil || t.due < next.due || (t.due == next.due && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// Repeating returns the intervals of the active repeating timers.
func (c *FakeClock) Repeating() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && t.interval > 0 {
			out = append(out, t.interval)
		}
	}
	return out
}

// OneShot returns the remaining delays of the active one-shot timers.
func (c *FakeClock) OneShot() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && t.interval == 0 {
			out = append(out, t.due-c.now)
		}
	}
	return out
}

// Active is the number of timers still scheduled.
func (c *FakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
