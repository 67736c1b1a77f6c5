package bsl

import (
	"sync/atomic"
	"unsafe"
)

type bslEntry struct {
	key int64
	val int64
}

// bslBlock is the unit of storage and of skip-list routing. The anchor
// is immutable once the block is linked; entries stay unordered and are
// scanned linearly, which beats keeping sort order for block capacities
// in the hundreds. Sorting happens exactly once, at split time.
//
// The structural version counter is bumped under mu whenever any
// forward pointer of this block is rewritten or a split publishes a new
// right-hand neighbour. Optimistic descents cache it and restart on a
// mismatch.
type bslBlock struct {
	mu      segmentMutex
	forward []*bslBlock
	values  []bslEntry
	anchor  int64
	ver     atomic.Int64
}

func newBslBlock(anchor int64, levels int32, blockCap int64, e mutexImpl) *bslBlock {
	return &bslBlock{
		mu:      mutexFactory(e),
		forward: make([]*bslBlock, levels),
		values:  make([]bslEntry, 0, blockCap),
		anchor:  anchor,
	}
}

func (blk *bslBlock) loadVer() int64 {
	return blk.ver.Load()
}

// Caller must hold blk.mu.
func (blk *bslBlock) bumpVer() {
	blk.ver.Add(1)
}

func (blk *bslBlock) length() int64 {
	return int64(len(blk.values))
}

func (blk *bslBlock) full(maxBlockSize int64) bool {
	return blk.length() >= maxBlockSize
}

// insert overwrites in place on a key hit, otherwise appends. Returns
// whether a new entry was created. Caller must hold blk.mu and split
// before unlocking if the block filled up.
func (blk *bslBlock) insert(key, val int64) bool {
	for i := 0; i < len(blk.values); i++ {
		if blk.values[i].key == key {
			blk.values[i].val = val
			return false
		}
	}
	blk.values = append(blk.values, bslEntry{key: key, val: val})
	return true
}

// Caller must hold blk.mu.
func (blk *bslBlock) find(key int64) int64 {
	for i := 0; i < len(blk.values); i++ {
		if blk.values[i].key == key {
			return blk.values[i].val
		}
	}
	return NotFound
}

// remove swaps the hit slot with the last entry and truncates. Caller
// must hold blk.mu.
func (blk *bslBlock) remove(key int64) int64 {
	for i := 0; i < len(blk.values); i++ {
		if blk.values[i].key == key {
			val := blk.values[i].val
			last := len(blk.values) - 1
			blk.values[i] = blk.values[last]
			blk.values = blk.values[:last]
			return val
		}
	}
	return NotFound
}

func (blk *bslBlock) loadForward(l int32) *bslBlock {
	return (*bslBlock)(atomic.LoadPointer((*unsafe.Pointer)(unsafe.Pointer(&blk.forward[l]))))
}

func (blk *bslBlock) storeForward(l int32, next *bslBlock) {
	atomic.StorePointer((*unsafe.Pointer)(unsafe.Pointer(&blk.forward[l])), unsafe.Pointer(next))
}
