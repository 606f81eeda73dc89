package coalesce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCount(t *testing.T, counter *int32, want int32, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(counter) >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("counter never reached %d, got %d", want, atomic.LoadInt32(counter))
}

func TestGossipFiresImmediatelyThenPeriodically(t *testing.T) {
	var gossipCount int32
	s := New(time.Hour, 20*time.Millisecond, func() {}, func() { atomic.AddInt32(&gossipCount, 1) })
	s.Start()
	defer s.Stop()

	waitForCount(t, &gossipCount, 1, 100*time.Millisecond)
	waitForCount(t, &gossipCount, 3, time.Second)
}

func TestSaveCoalescesBurstOfChanges(t *testing.T) {
	var saveCount int32
	s := New(20*time.Millisecond, time.Hour, func() { atomic.AddInt32(&saveCount, 1) }, func() {})
	s.Start()
	defer s.Stop()

	for i := 0; i < 10; i++ {
		s.OnChange("app::size")
		time.Sleep(2 * time.Millisecond)
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(&saveCount), "save should not fire while still inside the quiet period")
	waitForCount(t, &saveCount, 1, 200*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&saveCount), "a single quiet period should produce exactly one save")
}

func TestStopCancelsPendingSave(t *testing.T) {
	var saveCount int32
	s := New(20*time.Millisecond, time.Hour, func() { atomic.AddInt32(&saveCount, 1) }, func() {})
	s.Start()
	s.OnChange("app::size")
	s.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&saveCount))
}
