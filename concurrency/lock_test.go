package concurrency

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExclusiveLock_AcquireRelease(t *testing.T) {
	l := NewExclusiveLock()
	require.NoError(t, l.Acquire(context.Background()))
	l.Release()
}

func TestExclusiveLock_SecondAcquireBlocksUntilRelease(t *testing.T) {
	l := NewExclusiveLock()
	require.NoError(t, l.Acquire(context.Background()))

	var acquired int32
	done := make(chan struct{})
	go func() {
		_ = l.Acquire(context.Background())
		atomic.StoreInt32(&acquired, 1)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&acquired))

	l.Release()
	<-done
	assert.EqualValues(t, 1, atomic.LoadInt32(&acquired))
}

func TestExclusiveLock_AcquireRespectsContext(t *testing.T) {
	l := NewExclusiveLock()
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExclusiveLock_ReleaseWithoutAcquirePanics(t *testing.T) {
	l := NewExclusiveLock()
	assert.Panics(t, func() {
		l.Release()
	})
}
