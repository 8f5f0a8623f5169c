package workflow_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katistix/cloudmigrate/internal/workflow"
)

func TestRealClockEveryDoesNotOverlap(t *testing.T) {
	var running, overlaps, calls atomic.Int32
	timer := workflow.RealClock{}.Every(2*time.Millisecond, func() {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(10 * time.Millisecond)
		calls.Add(1)
		running.Add(-1)
	})
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)

	timer.Stop()
	timer.Stop()
	require.Eventually(t, func() bool { return running.Load() == 0 }, time.Second, time.Millisecond)
	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, stopped, calls.Load(), "no ticks after Stop")
	assert.Zero(t, overlaps.Load())
}

func TestRealClockAfter(t *testing.T) {
	fired := make(chan string, 2)
	workflow.RealClock{}.After(time.Millisecond, func() { fired <- "due" })
	stopped := workflow.RealClock{}.After(20*time.Millisecond, func() { fired <- "stopped" })
	stopped.Stop()
	stopped.Stop()

	select {
	case name := <-fired:
		assert.Equal(t, "due", name)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, fired)
}
