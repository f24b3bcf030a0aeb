package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializes(t *testing.T) {
	lock := NewLock()
	ctx := context.Background()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lock.Acquire(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "holders must never overlap")
}

func TestLockAcquireCancelled(t *testing.T) {
	lock := NewLock()

	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = lock.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLockReleaseIdempotent(t *testing.T) {
	lock := NewLock()

	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release() // second call must not free another holder's slot

	release2, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	defer release2()

	_, ok := lock.TryAcquire()
	assert.False(t, ok, "lock should be held exactly once")
}

func TestTryAcquire(t *testing.T) {
	lock := NewLock()

	release, ok := lock.TryAcquire()
	require.True(t, ok)

	_, ok = lock.TryAcquire()
	assert.False(t, ok)

	release()

	release2, ok := lock.TryAcquire()
	assert.True(t, ok)
	release2()
}
