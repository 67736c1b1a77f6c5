package id

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonotonicNonZeroID(t *testing.T) {
	gen, err := MonotonicNonZeroID()
	require.NoError(t, err)

	prev := uint64(0)
	for i := 0; i < 10000; i++ {
		v := gen.Number()
		require.NotZero(t, v)
		require.Greater(t, v, prev)
		prev = v
	}
	require.NotEmpty(t, gen.Str())
}

func TestMonotonicNonZeroIDConcurrentUniqueness(t *testing.T) {
	gen, err := MonotonicNonZeroID()
	require.NoError(t, err)

	const workers, each = 8, 10000
	results := make([][]uint64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		w := w
		go func() {
			defer wg.Done()
			ids := make([]uint64, 0, each)
			for i := 0; i < each; i++ {
				ids = append(ids, gen.Number())
			}
			results[w] = ids
		}()
	}
	wg.Wait()

	seen := make(map[uint64]struct{}, workers*each)
	for _, ids := range results {
		for _, v := range ids {
			require.NotZero(t, v)
			_, dup := seen[v]
			require.False(t, dup)
			seen[v] = struct{}{}
		}
	}
}
