package workflow

import (
	"sync"
	"time"
)

// Timer is a scheduled callback. Stop is idempotent.
type Timer interface {
	Stop()
}

// Clock schedules the poll loop's repeating timer and its ceiling timeout.
type Clock interface {
	// Every runs fn every interval until stopped. Ticks never overlap: a tick
	// that arrives while fn is still running is dropped.
	Every(interval time.Duration, fn func()) Timer
	// After runs fn once after delay unless stopped first.
	After(delay time.Duration, fn func()) Timer
}

// RealClock schedules with the runtime timers.
type RealClock struct{}

func (RealClock) Every(interval time.Duration, fn func()) Timer {
	t := &tickerTimer{ticker: time.NewTicker(interval), done: make(chan struct{})}
	go t.run(fn)
	return t
}

func (RealClock) After(delay time.Duration, fn func()) Timer {
	return afterTimer{time.AfterFunc(delay, fn)}
}

type tickerTimer struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTimer) run(fn func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

func (t *tickerTimer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

type afterTimer struct {
	timer *time.Timer
}

func (t afterTimer) Stop() { t.timer.Stop() }
