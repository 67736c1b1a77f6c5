package bsl

import (
	"runtime"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
)

// descend walks top-down and collects, per level, the pair
// (prev, curr) with prev.anchor <= key < curr.anchor and
// prev.forward[l] == curr, together with the versions both blocks
// carried when observed. Any version mismatch along the way restarts
// the whole walk; each restart was triggered by a committed split, so
// the walk makes progress in the absence of endless contention.
func (t *xBsl) descend(key int64, aux *bslAux) {
	for !t.descend0(key, aux) {
	}
}

func (t *xBsl) descend0(key int64, aux *bslAux) bool {
	top := t.maxLevel - 1
	prev := t.head
	pv := prev.loadVer()
	curr := prev.loadForward(top)
	cv := curr.loadVer()
	for l := top; l >= 0; l-- {
		if pv != prev.loadVer() || cv != curr.loadVer() || prev.loadForward(l) != curr {
			return false
		}
		for curr.anchor <= key {
			prev, pv = curr, cv
			curr = prev.loadForward(l)
			cv = curr.loadVer()
			if pv != prev.loadVer() || cv != curr.loadVer() || prev.loadForward(l) != curr {
				return false
			}
		}
		aux.prev[l], aux.pv[l] = prev, pv
		aux.curr[l], aux.cv[l] = curr, cv
		if l > 0 {
			curr = prev.loadForward(l - 1)
			cv = curr.loadVer()
		}
	}
	return true
}

// descendLookAhead advances while the block after curr still covers the
// key, so on exit curr[0] is the block containing key and prev[0] its
// level-0 predecessor. Used by Remove, so that the locked (prev, curr)
// pair at each level the victim occupies is the victim block and its
// predecessor.
func (t *xBsl) descendLookAhead(key int64, aux *bslAux) {
	for !t.descendLookAhead0(key, aux) {
	}
}

func (t *xBsl) descendLookAhead0(key int64, aux *bslAux) bool {
	top := t.maxLevel - 1
	prev := t.head
	pv := prev.loadVer()
	curr := prev.loadForward(top)
	cv := curr.loadVer()
	for l := top; l >= 0; l-- {
		if pv != prev.loadVer() || cv != curr.loadVer() || prev.loadForward(l) != curr {
			return false
		}
		for {
			next := curr.loadForward(l)
			if next == nil || next.anchor > key {
				break
			}
			prev, pv = curr, cv
			curr, cv = next, next.loadVer()
			if pv != prev.loadVer() || cv != curr.loadVer() || prev.loadForward(l) != curr {
				return false
			}
		}
		aux.prev[l], aux.pv[l] = prev, pv
		aux.curr[l], aux.cv[l] = curr, cv
		if l > 0 {
			curr = prev.loadForward(l - 1)
			cv = curr.loadVer()
		}
	}
	return true
}

// lockRange acquires the (prev, curr) locks for levels [0..top] by
// try-lock, top-down, prev before curr, coalescing blocks that repeat
// across levels. A failed try-lock releases everything this writer
// holds and retries the acquisition from the top without re-descending;
// blocking here instead would deadlock against writers locking an
// overlapping region in a different order. A version mismatch under
// locks means a concurrent split committed: release and report false so
// the caller re-descends.
func (t *xBsl) lockRange(aux *bslAux, top int32, ver uint64) bool {
	for {
		contended := false
		for l := top; l >= 0; l-- {
			if !aux.lockOrCoalesce(aux.prev[l], ver) || !aux.lockOrCoalesce(aux.curr[l], ver) {
				contended = true
				break
			}
			if aux.pv[l] != aux.prev[l].loadVer() ||
				aux.cv[l] != aux.curr[l].loadVer() ||
				aux.prev[l].loadForward(l) != aux.curr[l] {
				aux.unlockAll(ver)
				return false
			}
		}
		if !contended {
			return true
		}
		aux.unlockAll(ver)
		runtime.Gosched()
	}
}

func (t *xBsl) Insert(key, val int64) {
	tc := t.registry.Acquire()
	defer t.registry.Release(tc)
	aux := t.pool.loadAux()
	defer t.pool.releaseAux(aux)
	ver := t.optVer.Number()
	for {
		t.descend(key, aux)
		rlevel := t.randLevel()
		if !t.lockRange(aux, rlevel, ver) {
			continue
		}
		target := aux.prev[0]
		if target.insert(key, val) {
			atomic.AddInt64(&t.cardinality, 1)
		}
		if target.full(t.maxBlockSize) {
			t.split(aux, rlevel)
		}
		aux.unlockAll(ver)
		return
	}
}

// split halves the locked, full block aux.prev[0] and publishes the
// upper half as a fresh block linked at levels [0..rlevel]. Bumping the
// versions of both bracketing blocks per level forces every concurrent
// descent that cached them to restart; the new block needs no bump
// because nobody has observed it yet.
func (t *xBsl) split(aux *bslAux, rlevel int32) {
	target := aux.prev[0]
	sort.Slice(target.values, func(i, j int) bool {
		return target.values[i].key < target.values[j].key
	})
	mid := len(target.values) / 2
	pivot := target.values[mid].key
	next := newBslBlock(pivot, t.maxLevel, t.maxBlockSize, t.muType)
	next.values = append(next.values, target.values[mid:]...)
	target.values = target.values[:mid]

	for l := int32(0); l <= rlevel; l++ {
		next.storeForward(l, aux.curr[l])
		aux.curr[l].bumpVer()
		aux.prev[l].storeForward(l, next)
		aux.prev[l].bumpVer()
	}
	atomic.AddInt64(&t.blocks, 1)
	t.logger.Debug("[x-bsl] block split",
		zap.Int64("pivot", pivot),
		zap.Int32("rlevel", rlevel),
	)
}

// Find returns the value stored for key, or NotFound. The target block
// is locked for the duration of the scan so the entry array cannot be
// rewritten underneath it; lookups never touch the topology and bump no
// version.
func (t *xBsl) Find(key int64) int64 {
	tc := t.registry.Acquire()
	defer t.registry.Release(tc)
	aux := t.pool.loadAux()
	defer t.pool.releaseAux(aux)
	ver := t.optVer.Number()
	for {
		t.descend(key, aux)
		target := aux.prev[0]
		target.mu.lock(ver)
		if aux.pv[0] != target.loadVer() ||
			aux.cv[0] != aux.curr[0].loadVer() ||
			target.loadForward(0) != aux.curr[0] {
			target.mu.unlock(ver)
			continue
		}
		val := target.find(key)
		target.mu.unlock(ver)
		return val
	}
}

// Remove deletes key from its block and returns the removed value, or
// NotFound. Blocks are never unlinked here: emptied blocks stay routed
// and a future merge pass would hand them to the reclaimer.
func (t *xBsl) Remove(key int64) int64 {
	tc := t.registry.Acquire()
	defer t.registry.Release(tc)
	aux := t.pool.loadAux()
	defer t.pool.releaseAux(aux)
	ver := t.optVer.Number()
	for {
		t.descendLookAhead(key, aux)
		// The top level at which the victim block is present.
		rlevel := int32(0)
		for rlevel < t.maxLevel-1 && aux.curr[rlevel+1] == aux.curr[0] {
			rlevel++
		}
		if !t.lockRange(aux, rlevel, ver) {
			continue
		}
		val := aux.curr[0].remove(key)
		if val != NotFound {
			atomic.AddInt64(&t.cardinality, -1)
		}
		aux.unlockAll(ver)
		return val
	}
}
