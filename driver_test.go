package apidash

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDriver_FlushesOnTimer(t *testing.T) {
	var calls int32
	d := newDriver(20*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	d.start()
	defer d.stop(time.Second)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, 5*time.Millisecond)
}

func TestDriver_NudgeWakesImmediately(t *testing.T) {
	var calls int32
	d := newDriver(time.Hour, func() { atomic.AddInt32(&calls, 1) })
	d.start()
	defer d.stop(time.Second)

	d.nudge()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, 5*time.Millisecond)
}

func TestDriver_StopPreventsFurtherFlushes(t *testing.T) {
	var calls int32
	d := newDriver(5*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	d.start()
	d.stop(time.Second)

	before := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, before, atomic.LoadInt32(&calls))
}

func TestDriver_NudgeNeverBlocksWhenPending(t *testing.T) {
	d := newDriver(time.Hour, func() {})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.nudge()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nudge blocked")
	}
}
