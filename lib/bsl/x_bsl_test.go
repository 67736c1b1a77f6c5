package bsl

import (
	"bytes"
	"math"
	randv2 "math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// checkAnchorOrder walks every level and asserts strictly increasing
// anchors terminated by the tail sentinel.
func checkAnchorOrder(t *testing.T, skl *xBsl) {
	t.Helper()
	for l := int32(0); l < skl.maxLevel; l++ {
		prev := skl.head
		blk := prev.loadForward(l)
		for blk != nil {
			require.Greater(t, blk.anchor, prev.anchor, "level %d", l)
			prev = blk
			blk = blk.loadForward(l)
		}
		require.Equal(t, int64(math.MaxInt64), prev.anchor, "level %d must end at tail", l)
	}
}

// checkPyramid asserts the block set of each level is contained in the
// level below.
func checkPyramid(t *testing.T, skl *xBsl) {
	t.Helper()
	for l := int32(1); l < skl.maxLevel; l++ {
		lower := make(map[*bslBlock]struct{})
		for blk := skl.head; blk != nil; blk = blk.loadForward(l - 1) {
			lower[blk] = struct{}{}
		}
		for blk := skl.head; blk != nil; blk = blk.loadForward(l) {
			_, ok := lower[blk]
			require.True(t, ok, "level %d block anchor=%d missing from level %d", l, blk.anchor, l-1)
		}
	}
}

// checkOccupancy asserts no data block exceeds the configured capacity
// and that every entry key falls inside its block's anchor interval.
func checkOccupancy(t *testing.T, skl *xBsl) {
	t.Helper()
	for blk := skl.head; blk != nil; blk = blk.loadForward(0) {
		require.LessOrEqual(t, blk.length(), skl.maxBlockSize)
		next := blk.loadForward(0)
		for i := 0; i < len(blk.values); i++ {
			require.GreaterOrEqual(t, blk.values[i].key, blk.anchor)
			if next != nil {
				require.Less(t, blk.values[i].key, next.anchor)
			}
		}
	}
}

func checkInvariants(t *testing.T, lst BlockSkipList) {
	t.Helper()
	skl := lst.(*xBsl)
	checkAnchorOrder(t, skl)
	checkPyramid(t, skl)
	checkOccupancy(t, skl)
}

func TestBslOptionValidation(t *testing.T) {
	_, err := New(WithProbability(0.0))
	require.ErrorIs(t, err, ErrBslInvalidProbability)
	_, err = New(WithProbability(1.0))
	require.ErrorIs(t, err, ErrBslInvalidProbability)
	_, err = New(WithMaxLevel(1))
	require.ErrorIs(t, err, ErrBslInvalidMaxLevel)
	_, err = New(WithMaxLevel(33))
	require.ErrorIs(t, err, ErrBslInvalidMaxLevel)
	_, err = New(WithMaxBlockSize(1))
	require.ErrorIs(t, err, ErrBslInvalidBlockSize)
}

func TestBslEmpty(t *testing.T) {
	lst, err := New()
	require.NoError(t, err)
	defer func() { _ = lst.Close() }()

	require.True(t, lst.Empty())
	require.Equal(t, int64(0), lst.Len())
	require.Equal(t, uint64(0), lst.Size())
	require.Equal(t, NotFound, lst.Find(42))
	require.Equal(t, NotFound, lst.Remove(42))
	require.Equal(t, int64(1), lst.BlockCount())
}

func TestBslInsertFindUpdate(t *testing.T) {
	lst, err := New(WithMaxLevel(8), WithMaxBlockSize(4))
	require.NoError(t, err)
	defer func() { _ = lst.Close() }()

	lst.Insert(10, 100)
	lst.Insert(20, 200)
	lst.Insert(30, 300)
	require.Equal(t, int64(3), lst.Len())
	require.Equal(t, int64(100), lst.Find(10))
	require.Equal(t, int64(200), lst.Find(20))
	require.Equal(t, int64(300), lst.Find(30))
	require.Equal(t, NotFound, lst.Find(15))

	// Same key overwrites in place.
	lst.Insert(20, 222)
	require.Equal(t, int64(3), lst.Len())
	require.Equal(t, int64(222), lst.Find(20))

	checkInvariants(t, lst)
}

func TestBslSplits(t *testing.T) {
	lst, err := New(WithMaxLevel(8), WithMaxBlockSize(4))
	require.NoError(t, err)
	defer func() { _ = lst.Close() }()

	const n = 512
	for k := int64(0); k < n; k++ {
		lst.Insert(k, k*2)
	}
	require.Equal(t, int64(n), lst.Len())
	require.Greater(t, lst.BlockCount(), int64(1))
	for k := int64(0); k < n; k++ {
		require.Equal(t, k*2, lst.Find(k))
	}
	checkInvariants(t, lst)
}

func TestBslRemove(t *testing.T) {
	lst, err := New(WithMaxLevel(8), WithMaxBlockSize(4))
	require.NoError(t, err)
	defer func() { _ = lst.Close() }()

	for k := int64(0); k < 64; k++ {
		lst.Insert(k, k+1000)
	}
	require.Equal(t, int64(1042), lst.Remove(42))
	require.Equal(t, int64(63), lst.Len())
	require.Equal(t, NotFound, lst.Find(42))

	// Removing an absent key is idempotent.
	require.Equal(t, NotFound, lst.Remove(42))
	require.Equal(t, int64(63), lst.Len())

	for k := int64(0); k < 64; k++ {
		got := lst.Remove(k)
		if k == 42 {
			require.Equal(t, NotFound, got)
		} else {
			require.Equal(t, k+1000, got)
		}
	}
	require.True(t, lst.Empty())
	checkInvariants(t, lst)
}

func TestBslShuffledInsertFind(t *testing.T) {
	lst, err := New(WithProbability(0.25), WithMaxLevel(8), WithMaxBlockSize(4))
	require.NoError(t, err)
	defer func() { _ = lst.Close() }()

	keys := make([]int64, 1024)
	for i := range keys {
		keys[i] = int64(i + 1)
	}
	randv2.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
	for _, k := range keys {
		lst.Insert(k, k)
	}
	require.Equal(t, int64(1024), lst.Len())
	for k := int64(1); k <= 1024; k++ {
		require.Equal(t, k, lst.Find(k))
	}
	checkInvariants(t, lst)
}

func TestBslNegativeAndBoundaryKeys(t *testing.T) {
	lst, err := New(WithMaxLevel(8), WithMaxBlockSize(4))
	require.NoError(t, err)
	defer func() { _ = lst.Close() }()

	keys := []int64{math.MinInt64 + 2, -1024, -1, 0, 1, 1024, math.MaxInt64 - 1}
	for _, k := range keys {
		lst.Insert(k, k^0x5a5a)
	}
	for _, k := range keys {
		require.Equal(t, k^0x5a5a, lst.Find(k))
	}
	checkInvariants(t, lst)
}

func TestBslDump(t *testing.T) {
	lst, err := New(WithMaxLevel(4), WithMaxBlockSize(2))
	require.NoError(t, err)
	defer func() { _ = lst.Close() }()

	for k := int64(1); k <= 8; k++ {
		lst.Insert(k, k)
	}
	buf := &bytes.Buffer{}
	lst.Dump(buf)
	out := buf.String()
	require.Contains(t, out, "anchor=")
	require.Contains(t, out, "forward={")
	require.Contains(t, out, "values={")
}

func TestBslGoNativeMutex(t *testing.T) {
	lst, err := New(WithMaxLevel(8), WithMaxBlockSize(4), WithConcByGoNative())
	require.NoError(t, err)
	defer func() { _ = lst.Close() }()

	for k := int64(0); k < 256; k++ {
		lst.Insert(k, k)
	}
	for k := int64(0); k < 256; k++ {
		require.Equal(t, k, lst.Find(k))
	}
	checkInvariants(t, lst)
}
