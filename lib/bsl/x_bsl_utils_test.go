package bsl

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpinMutex(t *testing.T) {
	mu := mutexFactory(xBslSpinMutex)
	require.IsType(t, new(spinMutex), mu)

	require.True(t, mu.tryLock(7))
	// Second acquisition fails until the holder releases.
	require.False(t, mu.tryLock(8))
	// Unlock with the wrong version leaves the lock held.
	require.False(t, mu.unlock(8))
	require.True(t, mu.unlock(7))
	require.True(t, mu.tryLock(8))
	require.True(t, mu.unlock(8))
}

func TestSpinMutexContention(t *testing.T) {
	mu := mutexFactory(xBslSpinMutex)
	counter := 0
	var wg sync.WaitGroup
	const workers = 16
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		ver := uint64(w + 1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				mu.lock(ver)
				counter++
				mu.unlock(ver)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, workers*1000, counter)
}

func TestGoSyncMutex(t *testing.T) {
	mu := mutexFactory(xBslGoMutex)
	require.IsType(t, &goSyncMutex{}, mu)

	require.True(t, mu.tryLock(1))
	require.False(t, mu.tryLock(2))
	require.True(t, mu.unlock(1))
	require.True(t, mu.tryLock(2))
	require.True(t, mu.unlock(2))
}

func TestMutexImplString(t *testing.T) {
	assert.Equal(t, "spin", xBslSpinMutex.String())
	assert.Equal(t, "native", xBslGoMutex.String())
	assert.Equal(t, "unknown", mutexImpl(0).String())
}

func TestAuxLockCoalescing(t *testing.T) {
	aux := newBslAux(4)
	blk := newBslBlock(0, 4, 4, xBslSpinMutex)
	other := newBslBlock(1, 4, 4, xBslSpinMutex)

	require.True(t, aux.lockOrCoalesce(blk, 5))
	// Same block again coalesces instead of deadlocking on try-lock.
	require.True(t, aux.lockOrCoalesce(blk, 5))
	require.True(t, aux.lockOrCoalesce(other, 5))
	require.Len(t, aux.held, 2)

	aux.unlockAll(5)
	require.Empty(t, aux.held)
	require.True(t, blk.mu.tryLock(6))
	require.True(t, other.mu.tryLock(6))
}
