package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAfterTime_FiresAtScheduledInstant(t *testing.T) {
	fired := make(chan struct{})
	AfterTime(time.Now().Add(20*time.Millisecond), func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestAfterTime_StopBeforeFiringPreventsCallback(t *testing.T) {
	fired := make(chan struct{})
	ot := AfterTime(time.Now().Add(50*time.Millisecond), func() {
		close(fired)
	})

	stopped := ot.Stop()
	assert.True(t, stopped)

	select {
	case <-fired:
		t.Fatal("callback ran after Stop")
	case <-time.After(100 * time.Millisecond):
	}
	assert.False(t, ot.Fired())
}

func TestAfterTime_StopAfterFiringReturnsFalse(t *testing.T) {
	fired := make(chan struct{})
	ot := AfterTime(time.Now().Add(10*time.Millisecond), func() {
		close(fired)
	})

	<-fired
	time.Sleep(5 * time.Millisecond)
	assert.True(t, ot.Fired())
	assert.False(t, ot.Stop())
}

func TestAfterTime_PastInstantFiresImmediately(t *testing.T) {
	fired := make(chan struct{})
	AfterTime(time.Now().Add(-time.Second), func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer scheduled in the past did not fire promptly")
	}
}
